package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GatewayRecorder implements the gateway session's Recorder interface on top
// of OpenTelemetry instruments: dispatched events, heartbeat round trips,
// and reconnect cycles.
type GatewayRecorder struct {
	events     metric.Int64Counter
	heartbeat  metric.Float64Histogram
	reconnects metric.Int64Counter
}

// NewGatewayRecorder creates the gateway instruments on the global meter
// provider.
func NewGatewayRecorder() (*GatewayRecorder, error) {
	meter := otel.Meter("concord/gateway")

	events, err := meter.Int64Counter(
		"gateway.events",
		metric.WithDescription("Number of Dispatch frames received"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	heartbeat, err := meter.Float64Histogram(
		"gateway.heartbeat.latency",
		metric.WithDescription("Heartbeat acknowledgement round-trip time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	reconnects, err := meter.Int64Counter(
		"gateway.reconnects",
		metric.WithDescription("Number of dropped connections by recovery kind"),
		metric.WithUnit("{reconnect}"),
	)
	if err != nil {
		return nil, err
	}

	return &GatewayRecorder{
		events:     events,
		heartbeat:  heartbeat,
		reconnects: reconnects,
	}, nil
}

// EventReceived counts one Dispatch frame by event name.
func (r *GatewayRecorder) EventReceived(event string) {
	r.events.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event", event),
	))
}

// HeartbeatLatency records one acknowledged heartbeat's round trip.
func (r *GatewayRecorder) HeartbeatLatency(d time.Duration) {
	r.heartbeat.Record(context.Background(), d.Seconds())
}

// Reconnected counts a dropped connection by whether a resume follows.
func (r *GatewayRecorder) Reconnected(resumed bool) {
	kind := "identify"
	if resumed {
		kind = "resume"
	}
	r.reconnects.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}
