package gateway

import "time"

// Recorder receives session telemetry. Implementations must not block; the
// receive loop calls them inline.
type Recorder interface {
	// EventReceived is called for every Dispatch frame with its event name.
	EventReceived(event string)
	// HeartbeatLatency reports the round trip of an acknowledged heartbeat.
	HeartbeatLatency(d time.Duration)
	// Reconnected is called after a connection is dropped and the session
	// decides its next move; resumed is false when a fresh identify follows.
	Reconnected(resumed bool)
}

type nopRecorder struct{}

func (nopRecorder) EventReceived(string)           {}
func (nopRecorder) HeartbeatLatency(time.Duration) {}
func (nopRecorder) Reconnected(bool)               {}
