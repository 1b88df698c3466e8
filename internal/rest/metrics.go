package rest

import "time"

// Recorder receives scheduler observations. Implementations must be safe for
// concurrent use. The zero-cost nopRecorder is used unless the caller
// provides one (see internal/observability for the OpenTelemetry
// implementation).
type Recorder interface {
	// RequestDone is called once per completed request with the final status.
	RequestDone(method, routeKey string, status int, elapsed time.Duration)

	// RateLimited is called for every authoritative 429 correction.
	RateLimited(routeKey string, global bool, retryAfter time.Duration)

	// QuotaWait is called with the time a request spent blocked on the
	// global and per-bucket quotas before dispatch.
	QuotaWait(routeKey string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RequestDone(string, string, int, time.Duration) {}
func (nopRecorder) RateLimited(string, bool, time.Duration)        {}
func (nopRecorder) QuotaWait(string, time.Duration)                {}
