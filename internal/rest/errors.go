package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when a request kept receiving 429s until
	// the retry budget ran out.
	ErrRateLimited = errors.New("rate limit retry budget exhausted")

	// ErrTransportExhausted is returned when connection-level failures
	// persisted across every retry attempt.
	ErrTransportExhausted = errors.New("transport retry budget exhausted")

	// ErrClientClosed is returned to callers whose requests were still
	// waiting on a quota when the client shut down.
	ErrClientClosed = errors.New("client closed")

	// ErrRateLimitTimeout is returned when the caller's ceiling on total
	// wait and retry time elapsed while waiting on a quota.
	ErrRateLimitTimeout = errors.New("timed out waiting for rate limit")
)

// APIError is a non-2xx response from the server that is not retried:
// client errors, auth failures, and server errors that outlived the retry
// budget.
type APIError struct {
	Method   string
	Endpoint string
	Status   int
	Code     int    // service-specific error code, 0 when absent
	Message  string // service-supplied message, may be empty
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d (code %d): %s", e.Method, e.Endpoint, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.Endpoint, e.Status)
}

// newAPIError builds an APIError from a response body, tolerating bodies
// that are not the service's JSON error shape.
func newAPIError(method, endpoint string, status int, body []byte) *APIError {
	apiErr := &APIError{Method: method, Endpoint: endpoint, Status: status}

	var payload struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
	}
	return apiErr
}

// retryableTransport reports whether a round-trip error is a
// connection-level failure worth retrying, as opposed to a cancellation
// that must surface to the caller.
func retryableTransport(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
