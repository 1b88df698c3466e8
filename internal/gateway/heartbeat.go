package gateway

import (
	"sync"
	"time"
)

// tracker records heartbeat liveness for one connection. The heartbeat loop
// and the receive loop share it, so every access takes the lock.
type tracker struct {
	mu       sync.Mutex
	every    time.Duration
	lastSent time.Time
	lastAck  time.Time
	acked    bool
}

// reset arms the tracker for a new connection with the interval from Hello.
func (t *tracker) reset(every time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.every = every
	t.lastSent = time.Time{}
	t.lastAck = time.Time{}
	t.acked = true
}

func (t *tracker) interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.every
}

// sent marks a heartbeat in flight.
func (t *tracker) sent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = time.Now()
	t.acked = false
}

// ack clears the in-flight beat and returns its round-trip latency.
func (t *tracker) ack() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acked = true
	t.lastAck = time.Now()
	if t.lastSent.IsZero() {
		return 0
	}
	return t.lastAck.Sub(t.lastSent)
}

// alive reports whether the connection may carry another heartbeat: the
// previous one was acknowledged, or none has been sent yet.
func (t *tracker) alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acked || t.lastSent.IsZero()
}
