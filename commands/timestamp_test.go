package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/vod-stamp/chat"
	"github.com/onnwee/vod-stamp/db"
	"github.com/onnwee/vod-stamp/store"
	"github.com/onnwee/vod-stamp/stream"
	"github.com/onnwee/vod-stamp/testutil"
)

const (
	threadID = "900"
	vodURL   = "https://www.twitch.tv/videos/555"
)

var broadcastStart = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

type memJournal struct {
	mu    sync.Mutex
	marks []db.Bookmark
}

func (j *memJournal) RecordBookmark(_ context.Context, bm db.Bookmark) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.marks = append(j.marks, bm)
	return int64(len(j.marks)), nil
}

func newStore(t *testing.T, body string) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write store: %v", err)
	}
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

type fixture struct {
	ts      *Timestamp
	chat    *testutil.ChatRecorder
	discord *testutil.MockDiscordServer
	journal *memJournal
	state   *stream.State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d := testutil.NewMockDiscordServer(t, threadID)
	rec := &testutil.ChatRecorder{}
	st := &stream.State{}
	st.Begin(broadcastStart, vodURL, threadID)
	j := &memJournal{}
	ts := &Timestamp{
		Env:      Env{Chat: rec, Store: newStore(t, "cooldown: 30\nblacklist: []\n")},
		Prefix:   "!timestamp ",
		State:    st,
		Cooldown: &CooldownGate{},
		Threads:  d.Client(),
		Journal:  j,
	}
	return &fixture{ts: ts, chat: rec, discord: d, journal: j, state: st}
}

func msgAt(user, text string, badges map[string]int, sent time.Time) *chat.Message {
	return &chat.Message{
		Channel: "fiend",
		User:    chat.User{Name: user, DisplayName: user},
		Text:    text,
		SentMs:  sent.UnixMilli(),
		Badges:  badges,
	}
}

var sub = map[string]int{"subscriber": 1}

func TestFormatOffset(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{3661 * time.Second, "1h1m1s"},
		{59 * time.Second, "0h0m59s"},
		{0, "0h0m0s"},
		{59*time.Second + 999*time.Millisecond, "0h0m59s"},
		{26*time.Hour + 5*time.Minute, "26h5m0s"},
		{-5 * time.Second, "0h0m0s"},
	}
	for _, tt := range tests {
		if got := FormatOffset(tt.d); got != tt.want {
			t.Errorf("FormatOffset(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"check out @bob /clip", "check out bob clip"},
		{"@@//", ""},
		{"a/b@c", "abc"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTimestampMatch(t *testing.T) {
	ts := &Timestamp{Prefix: "!timestamp "}
	for text, want := range map[string]bool{
		"!timestamp hi":     true,
		"!TIMESTAMP hi":     true,
		"!timestamp":        false,
		"!timestamps hi":    false,
		" !timestamp hi":    false,
		"!fiendotabot help": false,
	} {
		if got := ts.Match(text); got != want {
			t.Errorf("Match(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestTimestampAccepted(t *testing.T) {
	f := newFixture(t)
	sent := broadcastStart.Add(time.Hour + time.Minute + time.Second + 500*time.Millisecond)

	if err := f.ts.Execute(context.Background(), msgAt("alice", "!Timestamp check out @bob /clip", sub, sent)); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	f.ts.Wait()

	if got := f.chat.Last(); got != `@alice, timestamp bookmarked: "check out bob clip"` {
		t.Errorf("reply = %q", got)
	}
	posts := f.discord.Messages(threadID)
	want := vodURL + "?t=1h1m1s - alice: check out bob clip"
	if len(posts) != 1 || posts[0] != want {
		t.Fatalf("thread posts = %q, want [%q]", posts, want)
	}
	if len(f.journal.marks) != 1 || f.journal.marks[0].OffsetSeconds != 3661 || f.journal.marks[0].Link != vodURL+"?t=1h1m1s" {
		t.Errorf("journal = %+v", f.journal.marks)
	}
}

func TestTimestampOffline(t *testing.T) {
	f := newFixture(t)
	f.state.End()

	f.ts.Execute(context.Background(), msgAt("alice", "!timestamp hi", sub, broadcastStart.Add(time.Minute)))
	f.ts.Wait()

	if got := f.chat.Lines(); len(got) != 1 || got[0] != "@alice, the stream is offline." {
		t.Errorf("replies = %q", got)
	}
	if len(f.discord.Messages(threadID)) != 0 {
		t.Error("offline bookmark must not be posted")
	}
}

func TestTimestampPermission(t *testing.T) {
	f := newFixture(t)
	at := broadcastStart.Add(time.Minute)

	f.ts.Execute(context.Background(), msgAt("rando", "!timestamp hi", nil, at))
	if got := f.chat.Last(); got != "@rando, you do not have permission to use this command." {
		t.Errorf("regular reply = %q", got)
	}

	f.ts.Execute(context.Background(), msgAt("vipper", "!timestamp hi", map[string]int{"vip": 1}, at))
	f.ts.Wait()
	if got := f.chat.Last(); !strings.Contains(got, "timestamp bookmarked") {
		t.Errorf("vip reply = %q, want accepted", got)
	}
}

func TestTimestampBlacklist(t *testing.T) {
	f := newFixture(t)
	f.ts.Store.AddToList("blacklist", "alice")
	at := broadcastStart.Add(time.Minute)

	f.ts.Execute(context.Background(), msgAt("Alice", "!timestamp hi", sub, at))
	f.ts.Wait()
	if got := f.chat.Last(); got != "@Alice, you have been blacklisted from using this command." {
		t.Errorf("reply = %q", got)
	}
	if len(f.discord.Messages(threadID)) != 0 {
		t.Fatal("blacklisted bookmark must not be posted")
	}
	if f.ts.Cooldown.Last() != 0 {
		t.Error("blacklisted attempt must not consume the cooldown")
	}

	f.ts.Store.RemoveFromList("blacklist", "alice")
	f.ts.Execute(context.Background(), msgAt("Alice", "!timestamp hi", sub, at))
	f.ts.Wait()
	if got := len(f.discord.Messages(threadID)); got != 1 {
		t.Errorf("thread posts after unblacklist = %d, want 1", got)
	}
}

func TestTimestampCooldownIsSilent(t *testing.T) {
	f := newFixture(t)
	at := broadcastStart.Add(time.Minute)

	f.ts.Execute(context.Background(), msgAt("alice", "!timestamp one", sub, at))
	f.ts.Execute(context.Background(), msgAt("bob", "!timestamp two", sub, at.Add(10*time.Second)))
	f.ts.Execute(context.Background(), msgAt("carol", "!timestamp three", sub, at.Add(30*time.Second)))
	f.ts.Wait()

	if got := len(f.chat.Lines()); got != 2 {
		t.Errorf("replies = %q, want 2 (cooldown drop is silent)", f.chat.Lines())
	}
	if got := len(f.discord.Messages(threadID)); got != 2 {
		t.Errorf("thread posts = %d, want 2", got)
	}
}

func TestTimestampWithoutThreadIsDropped(t *testing.T) {
	f := newFixture(t)
	f.state.Begin(broadcastStart, "", "")

	f.ts.Execute(context.Background(), msgAt("alice", "!timestamp hi", sub, broadcastStart.Add(time.Minute)))
	f.ts.Wait()

	if got := f.chat.Last(); !strings.Contains(got, "timestamp bookmarked") {
		t.Errorf("reply = %q, want confirmation", got)
	}
	if len(f.discord.Messages(threadID)) != 0 {
		t.Error("no post expected without a thread")
	}
	if len(f.journal.marks) != 1 || f.journal.marks[0].Link != "" {
		t.Errorf("journal = %+v, want one entry without link", f.journal.marks)
	}
}

func TestTimestampThreadPostFailureIsContained(t *testing.T) {
	f := newFixture(t)
	f.discord.Fail("/channels/" + threadID)

	err := f.ts.Execute(context.Background(), msgAt("alice", "!timestamp hi", sub, broadcastStart.Add(time.Minute)))
	f.ts.Wait()
	if err != nil {
		t.Fatalf("Execute() error = %v, want nil", err)
	}
	if got := f.chat.Last(); !strings.Contains(got, "timestamp bookmarked") {
		t.Errorf("reply = %q", got)
	}
	if len(f.journal.marks) != 1 {
		t.Error("bookmark should still be journaled")
	}
}

func TestTimestampClosedIgnoresBookmarks(t *testing.T) {
	f := newFixture(t)
	sent := broadcastStart.Add(time.Minute)

	f.ts.Execute(context.Background(), msgAt("alice", "!timestamp before", sub, sent))
	f.ts.Close()
	f.ts.Execute(context.Background(), msgAt("bob", "!timestamp after", sub, sent.Add(time.Minute)))
	f.ts.Wait()

	if got := f.chat.Lines(); len(got) != 1 {
		t.Errorf("replies = %q, want only the bookmark accepted before Close", got)
	}
	if posts := f.discord.Messages(threadID); len(posts) != 1 || !strings.HasSuffix(posts[0], "alice: before") {
		t.Errorf("thread posts = %q", posts)
	}
	if len(f.journal.marks) != 1 {
		t.Errorf("journal = %+v, want one bookmark", f.journal.marks)
	}
}
