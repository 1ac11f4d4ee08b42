package testutil

import "sync"

// ChatRecorder is a chat sender that keeps every line it is asked to say.
type ChatRecorder struct {
	mu    sync.Mutex
	lines []string
}

// Say records text; the channel is ignored.
func (r *ChatRecorder) Say(channel, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
}

// Lines returns everything said so far.
func (r *ChatRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Last returns the most recent line, or "".
func (r *ChatRecorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) == 0 {
		return ""
	}
	return r.lines[len(r.lines)-1]
}

// Reset forgets recorded lines.
func (r *ChatRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = nil
}
