package commands

import "sync"

// CooldownGate is a single-slot rate limiter keyed by platform send time in milliseconds.
type CooldownGate struct {
	mu   sync.Mutex
	last int64
}

// TryAcquire accepts sendMs iff it is at least cooldownSeconds after the last accepted
// send time, and records it on acceptance. The first call after startup always passes.
func (g *CooldownGate) TryAcquire(sendMs int64, cooldownSeconds int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sendMs < g.last+int64(cooldownSeconds)*1000 {
		return false
	}
	g.last = sendMs
	return true
}

// Last returns the last accepted send time.
func (g *CooldownGate) Last() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}
