package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RestRecorder implements the REST scheduler's Recorder interface on top of
// OpenTelemetry instruments: request counts and latency, 429 corrections,
// and time spent blocked on quotas.
type RestRecorder struct {
	requests    metric.Int64Counter
	duration    metric.Float64Histogram
	rateLimited metric.Int64Counter
	quotaWait   metric.Float64Histogram
}

// NewRestRecorder creates the REST instruments on the global meter provider.
func NewRestRecorder() (*RestRecorder, error) {
	meter := otel.Meter("concord/rest")

	requests, err := meter.Int64Counter(
		"rest.requests",
		metric.WithDescription("Number of completed REST requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"rest.request.duration",
		metric.WithDescription("End-to-end REST request duration including quota waits and retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	rateLimited, err := meter.Int64Counter(
		"rest.rate_limited",
		metric.WithDescription("Number of 429 responses received"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, err
	}

	quotaWait, err := meter.Float64Histogram(
		"rest.quota_wait",
		metric.WithDescription("Time requests spent blocked on rate-limit quotas before dispatch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &RestRecorder{
		requests:    requests,
		duration:    duration,
		rateLimited: rateLimited,
		quotaWait:   quotaWait,
	}, nil
}

// RequestDone records one completed request with its final status.
func (r *RestRecorder) RequestDone(method, routeKey string, status int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", routeKey),
		attribute.String("status", strconv.Itoa(status)),
	)
	ctx := context.Background()
	r.requests.Add(ctx, 1, attrs)
	r.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RateLimited records an authoritative 429 correction.
func (r *RestRecorder) RateLimited(routeKey string, global bool, retryAfter time.Duration) {
	scope := "bucket"
	if global {
		scope = "global"
	}
	r.rateLimited.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("route", routeKey),
		attribute.String("scope", scope),
	))
}

// QuotaWait records the time a request spent blocked before dispatch.
func (r *RestRecorder) QuotaWait(routeKey string, elapsed time.Duration) {
	r.quotaWait.Record(context.Background(), elapsed.Seconds(), metric.WithAttributes(
		attribute.String("route", routeKey),
	))
}
