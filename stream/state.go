// Package stream tracks the followed channel's broadcast: a poll loop detects live/offline
// transitions, links each broadcast's VOD to a Discord thread and exposes the result as a
// consistent snapshot for chat commands.
package stream

import (
	"sync"
	"time"
)

// Snapshot is a consistent copy of the broadcast state.
type Snapshot struct {
	StartedAt    time.Time `json:"started_at"` // zero while offline
	RecordingURL string    `json:"recording_url"`
	ThreadID     string    `json:"thread_id"`
}

// Live reports whether a broadcast is in progress.
func (s Snapshot) Live() bool { return !s.StartedAt.IsZero() }

// State is the broadcast state shared between the poll loop and chat handlers.
// All mutation goes through Begin and End; readers take a Snapshot.
type State struct {
	mu  sync.RWMutex
	cur Snapshot
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Begin records a new broadcast, replacing the recording and thread of the previous one.
func (s *State) Begin(startedAt time.Time, recordingURL, threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = Snapshot{StartedAt: startedAt.UTC(), RecordingURL: recordingURL, ThreadID: threadID}
}

// End marks the broadcast offline. The recording and thread are kept so bookmarks
// arriving just after the stream ends still land in the right place.
func (s *State) End() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cur
	s.cur.StartedAt = time.Time{}
	return prev
}
