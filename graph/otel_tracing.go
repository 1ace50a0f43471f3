package graph

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var otelTracer = otel.Tracer("graphrun")

// SpanManager is the OpenTelemetry-backed alternative to Tracer, grounded
// on this codebase's SpanManager interface. Use NewSpanManager and pass
// it to WithSpanManager on a StateGraph to export run/node spans through
// the global OTel tracer provider instead of (or alongside) Tracer hooks.
type SpanManager interface {
	StartRunSpan(ctx context.Context, threadID string) (context.Context, trace.Span)
	StartNodeSpan(ctx context.Context, label string, step int) (context.Context, trace.Span)
	EndSpanWithError(span trace.Span, err error)
}

type otelSpanManager struct{}

func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartRunSpan(ctx context.Context, threadID string) (context.Context, trace.Span) {
	return otelTracer.Start(ctx, "graphrun.run",
		trace.WithAttributes(attribute.String("thread.id", threadID)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) StartNodeSpan(ctx context.Context, label string, step int) (context.Context, trace.Span) {
	return otelTracer.Start(ctx, "graphrun.node."+label,
		trace.WithAttributes(
			attribute.String("node.label", label),
			attribute.Int("node.step", step),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopSpanManager struct{}

// NoopSpanManager returns a SpanManager that starts real (no-op) spans
// without requiring an OTel SDK provider to be configured.
func NoopSpanManager() SpanManager {
	return &noopSpanManager{}
}

func (noopSpanManager) StartRunSpan(ctx context.Context, threadID string) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

func (noopSpanManager) StartNodeSpan(ctx context.Context, label string, step int) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

func (noopSpanManager) EndSpanWithError(span trace.Span, err error) {}
