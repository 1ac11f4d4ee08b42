package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/vod-stamp/chat"
	"github.com/onnwee/vod-stamp/db"
	"github.com/onnwee/vod-stamp/discordapi"
	"github.com/onnwee/vod-stamp/stream"
	"github.com/onnwee/vod-stamp/telemetry"
)

// DefaultCooldown is used when the store has no cooldown.
const DefaultCooldown = 30

// ThreadPoster posts into a Discord thread.
type ThreadPoster interface {
	SendMessage(ctx context.Context, channelID, content string) (*discordapi.Message, error)
}

// BookmarkJournal records accepted bookmarks.
type BookmarkJournal interface {
	RecordBookmark(ctx context.Context, bm db.Bookmark) (int64, error)
}

// FormatOffset renders d as <hours>h<minutes>m<seconds>s with truncated components and
// no padding. Hours are not wrapped at 24. Negative durations render as 0h0m0s.
func FormatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%dh%dm%ds", secs/3600, secs/60%60, secs%60)
}

// Sanitize strips every '@' and '/' so relayed comments cannot mention anyone or
// trigger markup.
func Sanitize(comment string) string {
	return strings.NewReplacer("@", "", "/", "").Replace(comment)
}

// Timestamp bookmarks the current moment of the live broadcast in its Discord thread.
type Timestamp struct {
	Env
	Prefix   string // matched case-insensitively
	State    *stream.State
	Cooldown *CooldownGate
	Threads  ThreadPoster
	Journal  BookmarkJournal // optional

	PostTimeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func (t *Timestamp) Name() string { return "timestamp" }

func (t *Timestamp) Match(text string) bool { return hasPrefixFold(text, t.Prefix) }

// Execute checks, in order: live, permission, blacklist, cooldown. Each failure but the
// cooldown gets one reply. Accepted bookmarks are confirmed in chat and then posted to
// the thread in the background.
func (t *Timestamp) Execute(ctx context.Context, msg *chat.Message) error {
	if t.isClosed() {
		return nil
	}
	snap := t.State.Snapshot()
	if !snap.Live() {
		telemetry.IncVec(telemetry.Bookmarks, "offline")
		t.Reply(msg, "the stream is offline.")
		return nil
	}
	if !Classify(msg.Badges).Allows(BookmarkTiers) {
		telemetry.IncVec(telemetry.Bookmarks, "denied")
		t.Reply(msg, noPermissionReply)
		return nil
	}
	if t.blacklisted(msg.User.Name) {
		telemetry.IncVec(telemetry.Bookmarks, "blacklisted")
		t.Reply(msg, "you have been blacklisted from using this command.")
		return nil
	}
	if !t.Cooldown.TryAcquire(msg.SentMs, t.Store.Int("cooldown", DefaultCooldown)) {
		telemetry.IncVec(telemetry.Bookmarks, "cooldown")
		return nil
	}
	telemetry.IncVec(telemetry.Bookmarks, "accepted")

	comment := Sanitize(strings.TrimSpace(msg.Text[len(t.Prefix):]))
	t.Reply(msg, `timestamp bookmarked: "`+comment+`"`)

	sent := msg.SentAt()
	offset := sent.Sub(snap.StartedAt)
	bm := db.Bookmark{
		BroadcastStartedAt: snap.StartedAt,
		Username:           msg.User.Name,
		Comment:            comment,
		OffsetSeconds:      int64(max(offset, 0) / time.Second),
		ThreadID:           snap.ThreadID,
		SentAt:             sent,
	}
	if snap.RecordingURL != "" {
		bm.Link = snap.RecordingURL + "?t=" + FormatOffset(offset)
	}

	if !t.track() {
		telemetry.LoggerWithCorr(ctx).Warn("shutting down; bookmark not posted", slog.String("user", bm.Username))
		return nil
	}
	go t.deliver(context.WithoutCancel(ctx), bm)
	return nil
}

// track registers a background post unless Close was called.
func (t *Timestamp) track() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.wg.Add(1)
	return true
}

func (t *Timestamp) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close stops accepting bookmarks. Posts already started still finish; use Wait.
func (t *Timestamp) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// deliver posts the bookmark into its thread and journals it. Failures are only logged.
func (t *Timestamp) deliver(ctx context.Context, bm db.Bookmark) {
	defer t.wg.Done()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "timestamp"), slog.String("user", bm.Username))
	timeout := t.PostTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if bm.ThreadID != "" && bm.Link != "" && t.Threads != nil {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		_, err := t.Threads.SendMessage(pctx, bm.ThreadID, bm.Link+" - "+bm.Username+": "+bm.Comment)
		cancel()
		if err != nil {
			telemetry.Inc(telemetry.ThreadPostFailures)
			log.Error("thread post failed", slog.String("thread_id", bm.ThreadID), slog.Any("err", err))
		}
	} else {
		log.Warn("no thread for current broadcast; bookmark not posted", slog.String("comment", bm.Comment))
	}

	if t.Journal != nil {
		jctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if _, err := t.Journal.RecordBookmark(jctx, bm); err != nil {
			log.Warn("journal bookmark failed", slog.Any("err", err))
		}
	}
}

// Wait blocks until every background post has finished.
func (t *Timestamp) Wait() { t.wg.Wait() }

func (t *Timestamp) blacklisted(user string) bool {
	for _, name := range t.Store.StringList("blacklist") {
		if strings.EqualFold(name, user) {
			return true
		}
	}
	return false
}
