package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/vod-stamp/db"
	"github.com/onnwee/vod-stamp/stream"
)

type recordingJournal struct {
	mu      sync.Mutex
	started []db.Broadcast
	ended   []time.Time
}

func (r *recordingJournal) RecordBroadcast(_ context.Context, b db.Broadcast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, b)
	return nil
}

func (r *recordingJournal) EndBroadcast(_ context.Context, startedAt, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, startedAt)
	return nil
}

type recordingArchiver struct {
	mu       sync.Mutex
	archived []time.Time
}

func (r *recordingArchiver) Archive(_ context.Context, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archived = append(r.archived, startedAt)
	return nil
}

func (r *recordingArchiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.archived)
}

var t0 = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

func offline(start time.Time) stream.Transition {
	return stream.Transition{Kind: stream.WentOffline, Broadcast: stream.Snapshot{StartedAt: start}}
}

func TestTransitionJournalRecordsBroadcasts(t *testing.T) {
	j := &recordingJournal{}
	tj := newTransitionJournal(j, nil, "fiend")

	tj.Handle(context.Background(), stream.Transition{
		Kind:      stream.WentLive,
		Title:     "hi",
		Broadcast: stream.Snapshot{StartedAt: t0, RecordingURL: "https://www.twitch.tv/videos/555", ThreadID: "900"},
	})
	tj.Handle(context.Background(), offline(t0))
	tj.Close()
	tj.Wait()

	if len(j.started) != 1 || j.started[0].Channel != "fiend" || j.started[0].ThreadID != "900" || j.started[0].Title != "hi" {
		t.Errorf("recorded = %+v", j.started)
	}
	if len(j.ended) != 1 || !j.ended[0].Equal(t0) {
		t.Errorf("ended = %v", j.ended)
	}
}

func TestTransitionJournalArchivesAfterSettle(t *testing.T) {
	a := &recordingArchiver{}
	tj := newTransitionJournal(&recordingJournal{}, a, "fiend")
	tj.settle = 10 * time.Millisecond

	tj.Handle(context.Background(), offline(t0))
	if a.count() != 0 {
		t.Fatal("archived before the settle delay")
	}
	tj.Wait()
	if a.count() != 1 || !a.archived[0].Equal(t0) {
		t.Errorf("archived = %v", a.archived)
	}
}

func TestTransitionJournalCloseFlushesPendingExports(t *testing.T) {
	a := &recordingArchiver{}
	tj := newTransitionJournal(&recordingJournal{}, a, "fiend")
	tj.settle = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	tj.Handle(ctx, offline(t0))
	cancel()

	done := make(chan struct{})
	go func() {
		tj.Close()
		tj.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Close")
	}
	if a.count() != 1 {
		t.Fatalf("archived = %v, want the pending export", a.archived)
	}

	// Transitions after Close still export, without waiting.
	tj.Handle(context.Background(), offline(t0.Add(time.Hour)))
	if a.count() != 2 {
		t.Errorf("archived = %v, want the late export inline", a.archived)
	}
	tj.Close()
}
