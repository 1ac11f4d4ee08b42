package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/vod-stamp/db"
	"github.com/onnwee/vod-stamp/stream"
)

// Journal is the read side of the bookmark journal.
type Journal interface {
	Ping(ctx context.Context) error
	SchemaVersion(ctx context.Context) (uint, bool, error)
	ListBookmarks(ctx context.Context, limit int) ([]db.Bookmark, error)
}

// Poller reports the stream monitor's progress.
type Poller interface {
	LastPoll() time.Time
	Interval() time.Duration
}

// Handlers holds dependencies for all HTTP handlers. Journal may be nil when
// persistence is disabled.
type Handlers struct {
	State   *stream.State
	Monitor Poller
	Journal Journal
	Channel string

	startedAt time.Time
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(state *stream.State, monitor Poller, journal Journal, channel string) *Handlers {
	return &Handlers{
		State:     state,
		Monitor:   monitor,
		Journal:   journal,
		Channel:   channel,
		startedAt: time.Now(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}

// HandleHealthz reports liveness; the process answering is enough.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz checks that the monitor polls on schedule and the journal is reachable
// with a clean schema.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"monitor", h.checkMonitor},
		{"journal", func() error { return h.checkJournal(r.Context()) }},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handlers) checkJournal(ctx context.Context) error {
	if h.Journal == nil {
		return nil
	}
	if err := h.Journal.Ping(ctx); err != nil {
		return err
	}
	version, dirty, err := h.Journal.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("schema dirty at version %d", version)
	}
	return nil
}

// checkMonitor fails when no poll completed within three intervals. A fresh
// process gets the same grace period from its start time.
func (h *Handlers) checkMonitor() error {
	if h.Monitor == nil {
		return nil
	}
	window := 3 * h.Monitor.Interval()
	last := h.Monitor.LastPoll()
	if last.IsZero() {
		if time.Since(h.startedAt) > window {
			return fmt.Errorf("no poll completed since start")
		}
		return nil
	}
	if age := time.Since(last); age > window {
		return fmt.Errorf("last poll %s ago", age.Round(time.Second))
	}
	return nil
}

type statusResponse struct {
	Channel      string     `json:"channel"`
	Live         bool       `json:"live"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	RecordingURL string     `json:"recording_url,omitempty"`
	ThreadID     string     `json:"thread_id,omitempty"`
	LastPoll     *time.Time `json:"last_poll,omitempty"`
}

// HandleStatus returns the current broadcast snapshot.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := h.State.Snapshot()
	resp := statusResponse{
		Channel:      h.Channel,
		Live:         snap.Live(),
		RecordingURL: snap.RecordingURL,
		ThreadID:     snap.ThreadID,
	}
	if snap.Live() {
		started := snap.StartedAt
		resp.StartedAt = &started
	}
	if h.Monitor != nil {
		if last := h.Monitor.LastPoll(); !last.IsZero() {
			resp.LastPoll = &last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleBookmarks lists the most recent journaled bookmarks (?limit=, default 50).
func (h *Handlers) HandleBookmarks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Journal == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	bms, err := h.Journal.ListBookmarks(r.Context(), limit)
	if err != nil {
		slog.Error("list bookmarks", slog.Any("err", err))
		http.Error(w, "failed to list bookmarks", http.StatusInternalServerError)
		return
	}
	if bms == nil {
		bms = []db.Bookmark{}
	}
	writeJSON(w, http.StatusOK, bms)
}
