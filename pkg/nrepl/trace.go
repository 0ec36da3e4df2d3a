package nrepl

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// defaultTracerName is the tracer used when none is injected.
const defaultTracerName = "slate.nrepl"

// dispatchTracer wraps op dispatch in OpenTelemetry spans. A nil
// tracer disables tracing; start then returns a no-op finish.
type dispatchTracer struct {
	tracer trace.Tracer
}

// newDispatchTracer resolves the global tracer provider.
func newDispatchTracer() *dispatchTracer {
	return &dispatchTracer{tracer: otel.Tracer(defaultTracerName)}
}

// start opens a span for one dispatched op. The returned finish must
// be called exactly once; passing a non-nil error records it and marks
// the span failed.
func (t *dispatchTracer) start(ctx context.Context, op string, req Message) (context.Context, func(error)) {
	if t == nil || t.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := t.tracer.Start(ctx, "nrepl.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(opAttributes(op, req)...),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
