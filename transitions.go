package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/vod-stamp/db"
	"github.com/onnwee/vod-stamp/stream"
	"github.com/onnwee/vod-stamp/telemetry"
)

type broadcastJournal interface {
	RecordBroadcast(ctx context.Context, b db.Broadcast) error
	EndBroadcast(ctx context.Context, startedAt, endedAt time.Time) error
}

type broadcastArchiver interface {
	Archive(ctx context.Context, startedAt time.Time) error
}

// transitionJournal records broadcasts as they start and end. Finished broadcasts
// are exported once settle has passed, so bookmark posts still in flight land in
// the export too.
type transitionJournal struct {
	journal  broadcastJournal
	archiver broadcastArchiver // nil disables exports
	channel  string
	settle   time.Duration

	mu     sync.Mutex
	closed bool
	flush  chan struct{}
	wg     sync.WaitGroup
}

func newTransitionJournal(journal broadcastJournal, archiver broadcastArchiver, channel string) *transitionJournal {
	return &transitionJournal{
		journal:  journal,
		archiver: archiver,
		channel:  channel,
		settle:   30 * time.Second,
		flush:    make(chan struct{}),
	}
}

// Handle is the monitor's transition hook.
func (j *transitionJournal) Handle(ctx context.Context, tr stream.Transition) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "journal"))
	switch tr.Kind {
	case stream.WentLive:
		err := j.journal.RecordBroadcast(ctx, db.Broadcast{
			Channel:      j.channel,
			StartedAt:    tr.Broadcast.StartedAt,
			Title:        tr.Title,
			RecordingURL: tr.Broadcast.RecordingURL,
			ThreadID:     tr.Broadcast.ThreadID,
		})
		if err != nil {
			log.Warn("record broadcast failed", slog.Any("err", err))
		}
	case stream.WentOffline:
		started := tr.Broadcast.StartedAt
		if err := j.journal.EndBroadcast(ctx, started, time.Now().UTC()); err != nil {
			log.Warn("end broadcast failed", slog.Any("err", err))
		}
		if j.archiver == nil {
			return
		}
		j.mu.Lock()
		if j.closed {
			j.mu.Unlock()
			// Close already flushed; export inline.
			j.archive(context.WithoutCancel(ctx), log, started)
			return
		}
		j.wg.Add(1)
		j.mu.Unlock()
		go func() {
			defer j.wg.Done()
			select {
			case <-time.After(j.settle):
			case <-j.flush:
			}
			j.archive(context.WithoutCancel(ctx), log, started)
		}()
	}
}

func (j *transitionJournal) archive(ctx context.Context, log *slog.Logger, started time.Time) {
	if err := j.archiver.Archive(ctx, started); err != nil {
		log.Error("archive broadcast failed", slog.Any("err", err))
	}
}

// Close cuts the settle delay short for pending exports. Wait for them with Wait.
func (j *transitionJournal) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.closed {
		j.closed = true
		close(j.flush)
	}
}

func (j *transitionJournal) Wait() { j.wg.Wait() }
