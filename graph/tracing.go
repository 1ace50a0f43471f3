package graph

import (
	"context"
	"time"
)

// TraceEvent names the kind of thing a TraceSpan records.
type TraceEvent string

const (
	TraceEventRunStart   TraceEvent = "run_start"
	TraceEventRunEnd     TraceEvent = "run_end"
	TraceEventNodeStart  TraceEvent = "node_start"
	TraceEventNodeEnd    TraceEvent = "node_end"
	TraceEventNodeError  TraceEvent = "node_error"
	TraceEventCheckpoint TraceEvent = "checkpoint"
)

// TraceSpan is a single recorded interval in a run.
type TraceSpan struct {
	ID        string
	ParentID  string
	Event     TraceEvent
	Label     string
	Step      int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Err       error
	Metadata  map[string]any
}

// TraceHook receives every span as it starts and ends.
type TraceHook interface {
	OnEvent(ctx context.Context, span *TraceSpan)
}

type TraceHookFunc func(ctx context.Context, span *TraceSpan)

func (f TraceHookFunc) OnEvent(ctx context.Context, span *TraceSpan) { f(ctx, span) }

// Tracer collects spans and fans them out to registered hooks. It is the
// default, dependency-free observability surface; SpanManager (in
// otel_tracing.go) is a separate interface, attachable alongside or
// instead of Tracer, that exports run and node spans through OpenTelemetry.
type Tracer struct {
	hooks []TraceHook
	seq   int
}

func NewTracer() *Tracer {
	return &Tracer{}
}

func (t *Tracer) AddHook(hook TraceHook) {
	t.hooks = append(t.hooks, hook)
}

func (t *Tracer) nextID() string {
	t.seq++
	return time.Now().Format("20060102150405.000000")
}

func (t *Tracer) StartSpan(ctx context.Context, event TraceEvent, lbl string, step int) *TraceSpan {
	span := &TraceSpan{
		ID:        t.nextID(),
		Event:     event,
		Label:     lbl,
		Step:      step,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.ParentID = parent.ID
	}
	for _, h := range t.hooks {
		h.OnEvent(ctx, span)
	}
	return span
}

func (t *Tracer) EndSpan(ctx context.Context, span *TraceSpan, err error) {
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	span.Err = err
	if err != nil && span.Event == TraceEventNodeStart {
		span.Event = TraceEventNodeError
	} else if span.Event == TraceEventNodeStart {
		span.Event = TraceEventNodeEnd
	} else if span.Event == TraceEventRunStart {
		span.Event = TraceEventRunEnd
	}
	for _, h := range t.hooks {
		h.OnEvent(ctx, span)
	}
}

type contextKey string

const spanContextKey contextKey = "graphrun_span"

func ContextWithSpan(ctx context.Context, span *TraceSpan) context.Context {
	return context.WithValue(ctx, spanContextKey, span)
}

func SpanFromContext(ctx context.Context) *TraceSpan {
	span, _ := ctx.Value(spanContextKey).(*TraceSpan)
	return span
}
