// Package metrics holds the OpenTelemetry instruments for the dispatch
// pipeline. All record methods are safe on a nil *Metrics.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "alerticorn"

type Metrics struct {
	Received     metric.Int64Counter
	Dropped      metric.Int64Counter
	Sent         metric.Int64Counter
	Attempts     metric.Int64Counter
	SendDuration metric.Float64Histogram
}

// New creates the instruments on mp, or on the global provider when mp is nil.
func New(mp metric.MeterProvider) (*Metrics, error) {
	var meter metric.Meter
	if mp != nil {
		meter = mp.Meter(meterName)
	} else {
		meter = otel.Meter(meterName)
	}
	m := &Metrics{}
	var err error

	m.Received, err = meter.Int64Counter("alerticorn.events.received",
		metric.WithDescription("Events handed to the engine"))
	if err != nil {
		return nil, err
	}

	m.Dropped, err = meter.Int64Counter("alerticorn.events.dropped",
		metric.WithDescription("Events dropped before delivery, by reason"))
	if err != nil {
		return nil, err
	}

	m.Sent, err = meter.Int64Counter("alerticorn.notifications.sent",
		metric.WithDescription("Notifications delivered"))
	if err != nil {
		return nil, err
	}

	m.Attempts, err = meter.Int64Counter("alerticorn.transport.attempts",
		metric.WithDescription("HTTP POST attempts including retries"))
	if err != nil {
		return nil, err
	}

	m.SendDuration, err = meter.Float64Histogram("alerticorn.transport.duration_seconds",
		metric.WithDescription("Time to deliver a payload including retries"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordReceived(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.Received.Add(ctx, 1, metric.WithAttributes(attribute.String("event", kind)))
}

func (m *Metrics) RecordDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.Dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordDelivery records one finished Send, successful or not.
func (m *Metrics) RecordDelivery(ctx context.Context, platform string, attempts int, elapsed time.Duration, ok bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("platform", platform), attribute.Bool("ok", ok))
	m.Attempts.Add(ctx, int64(attempts), metric.WithAttributes(attribute.String("platform", platform)))
	m.SendDuration.Record(ctx, elapsed.Seconds(), attrs)
	if ok {
		m.Sent.Add(ctx, 1, metric.WithAttributes(attribute.String("platform", platform)))
	}
}
