package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/vod-stamp/discordapi"
	"github.com/onnwee/vod-stamp/store"
	"github.com/onnwee/vod-stamp/telemetry"
)

// Defaults for the announcement thread.
const (
	DefaultVODMessage     = "New VOD:"
	DefaultThreadName     = "Timestamps"
	DefaultScanLimit      = 50
	threadAutoArchiveMins = 1440
	defaultRequestTimeout = 10 * time.Second
)

// Discord is the subset of the Discord API used for announcements and threads.
type Discord interface {
	GetChannel(ctx context.Context, channelID string) (*discordapi.Channel, error)
	ListMessages(ctx context.Context, channelID string, limit int) ([]discordapi.Message, error)
	SendMessage(ctx context.Context, channelID, content string) (*discordapi.Message, error)
	StartThread(ctx context.Context, channelID, messageID, name string, autoArchiveMinutes int) (*discordapi.Channel, error)
}

// Resolution is the outcome of resolving a recording's thread. An empty ThreadID means
// the recording has no thread to post into.
type Resolution struct {
	ThreadID string
	Created  bool
}

// ThreadResolver finds or creates the announcement message and discussion thread for
// a recording. Already announced recordings are detected by scanning the most recent
// messages of the VOD channel, which makes Resolve safe to repeat.
type ThreadResolver struct {
	Discord        Discord
	Store          *store.Store // vodMessage
	ChannelID      string
	ThreadName     string
	ScanLimit      int
	SettleDelay    time.Duration // between the announcement and thread creation
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

func (r *ThreadResolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default().With(slog.String("component", "thread_resolver"))
}

func (r *ThreadResolver) timeout() time.Duration {
	if r.RequestTimeout > 0 {
		return r.RequestTimeout
	}
	return defaultRequestTimeout
}

// Resolve returns the thread for recordingURL, posting a new announcement and thread
// when none of the recent announcements mention it. A channel that cannot be found
// is logged and yields an unresolved result with a nil error; other API errors are
// returned so the caller can retry on its next cycle.
func (r *ThreadResolver) Resolve(ctx context.Context, recordingURL string) (Resolution, error) {
	ctx, span := telemetry.StartSpan(ctx, "stream", "thread.resolve")
	defer span.End()
	log := r.logger().With(slog.String("recording", recordingURL))

	cctx, cancel := context.WithTimeout(ctx, r.timeout())
	_, err := r.Discord.GetChannel(cctx, r.ChannelID)
	cancel()
	if errors.Is(err, discordapi.ErrNotFound) {
		log.Error("vod channel not found", slog.String("channel_id", r.ChannelID))
		return Resolution{}, nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return Resolution{}, fmt.Errorf("get vod channel: %w", err)
	}

	limit := r.ScanLimit
	if limit < DefaultScanLimit {
		limit = DefaultScanLimit
	}
	cctx, cancel = context.WithTimeout(ctx, r.timeout())
	msgs, err := r.Discord.ListMessages(cctx, r.ChannelID, limit)
	cancel()
	if err != nil {
		telemetry.RecordError(span, err)
		return Resolution{}, fmt.Errorf("list announcements: %w", err)
	}
	for _, m := range msgs {
		if !strings.Contains(m.Content, recordingURL) {
			continue
		}
		telemetry.Inc(telemetry.ThreadsReused)
		if m.Thread == nil {
			log.Info("recording already announced without a thread", slog.String("message_id", m.ID))
			return Resolution{}, nil
		}
		log.Info("reusing existing thread", slog.String("thread_id", m.Thread.ID))
		return Resolution{ThreadID: m.Thread.ID}, nil
	}

	text := DefaultVODMessage
	if r.Store != nil {
		text = r.Store.String("vodMessage", DefaultVODMessage)
	}
	cctx, cancel = context.WithTimeout(ctx, r.timeout())
	msg, err := r.Discord.SendMessage(cctx, r.ChannelID, text+" "+recordingURL)
	cancel()
	if err != nil {
		telemetry.RecordError(span, err)
		return Resolution{}, fmt.Errorf("post announcement: %w", err)
	}

	if r.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return Resolution{}, ctx.Err()
		case <-time.After(r.SettleDelay):
		}
	}

	name := r.ThreadName
	if name == "" {
		name = DefaultThreadName
	}
	cctx, cancel = context.WithTimeout(ctx, r.timeout())
	th, err := r.Discord.StartThread(cctx, r.ChannelID, msg.ID, name, threadAutoArchiveMins)
	cancel()
	if err != nil {
		// The announcement exists now; the next attempt finds it and reports no thread.
		telemetry.RecordError(span, err)
		return Resolution{}, fmt.Errorf("start thread: %w", err)
	}
	telemetry.Inc(telemetry.Announcements)
	telemetry.SetSpanSuccess(span)
	log.Info("announced recording", slog.String("message_id", msg.ID), slog.String("thread_id", th.ID))
	return Resolution{ThreadID: th.ID, Created: true}, nil
}
