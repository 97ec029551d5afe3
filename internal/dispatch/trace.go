package dispatch

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "alerticorn"

// WithTracerProvider replaces the global tracer provider for job spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// startNotifySpan covers one job; webhook requests nest under it.
func (e *Engine) startNotifySpan(ctx context.Context, j *job) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "notify",
		trace.WithAttributes(
			attribute.String("job.id", j.delivery.JobID),
			attribute.String("item.id", j.itemID),
			attribute.String("event.kind", string(j.kind)),
		),
	)
}

func endNotifySpan(span trace.Span, d Delivery) {
	span.SetAttributes(
		attribute.String("notify.state", d.State.String()),
		attribute.String("notify.platform", d.Platform),
		attribute.Int("notify.attempts", d.Attempts),
	)
	if d.State == Dropped && d.Reason != ReasonFiltered {
		span.SetStatus(codes.Error, d.Reason)
	}
	span.End()
}
