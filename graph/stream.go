package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nodeforge/graphrun/label"
)

// LifecycleKind distinguishes the synthetic control-flow events Stream
// emits around node execution from the events nodes themselves emit.
type LifecycleKind int

const (
	RoundStart LifecycleKind = iota
	NodeStart
	NodeFinish
	RoundCommit
)

func (k LifecycleKind) String() string {
	switch k {
	case RoundStart:
		return "round_start"
	case NodeStart:
		return "node_start"
	case NodeFinish:
		return "node_finish"
	case RoundCommit:
		return "round_commit"
	default:
		return "unknown"
	}
}

// Lifecycle is a synthetic event describing executor progress, distinct
// from the domain events a StreamingNode emits through its EventSink.
type Lifecycle struct {
	Kind  LifecycleKind
	Label string
	Step  int
}

// Envelope is what Stream sends on its output channel: exactly one of
// Lifecycle, Event, or Done is set.
type Envelope[E any] struct {
	Lifecycle *Lifecycle
	Event     *E
	Done      *Done
}

// Done carries the terminal outcome of a streamed run. State is the
// final reduced state boxed as any, since Envelope cannot itself carry
// a second type parameter without forcing every lifecycle/event send to
// name S as well.
type Done struct {
	State any
	Err   error
}

// chanSink relays a node's untyped Emit calls onto a channel of
// Envelope[E], asserting each event to E as it crosses the boundary. A
// node that emits an event of the wrong type surfaces that as an Emit
// error rather than panicking or being silently dropped.
type chanSink[E any] struct {
	ctx context.Context
	out chan<- Envelope[E]
}

func (s *chanSink[E]) Emit(ctx context.Context, ev any) error {
	typed, ok := ev.(E)
	if !ok {
		return fmt.Errorf("graph: node emitted event of type %T, want %T", ev, typed)
	}
	select {
	case s.out <- Envelope[E]{Event: &typed}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Stream runs r to completion like Invoke, but drives nodes through their
// StreamingNode capability (when present) and emits lifecycle plus
// node-level events on the returned channel as they happen. The channel
// is closed after a single Done envelope. Stream is a package-level
// function, not a method, because Envelope needs its own event type
// parameter E independent of Runnable's S and U.
func Stream[S, U, E any](r *Runnable[S, U], ctx context.Context, initial S, opts ...Option) <-chan Envelope[E] {
	out := make(chan Envelope[E], 16)
	go func() {
		defer close(out)
		state, err := runStreamLoop(r, ctx, initial, out, opts...)
		out <- Envelope[E]{Done: &Done{State: state, Err: err}}
	}()
	return out
}

func runStreamLoop[S, U, E any](r *Runnable[S, U], ctx context.Context, initial S, out chan<- Envelope[E], opts ...Option) (S, error) {
	cfg := buildConfig(opts...)

	state, frontier, checkpointID, step, err := r.initFrontier(ctx, cfg, initial)
	if err != nil {
		return initial, err
	}

	for {
		runLabels, hasEnd := splitFrontier(frontier)
		if len(runLabels) == 0 {
			return state, nil
		}
		if step >= cfg.MaxSteps {
			return state, &StepLimitExceededError{MaxSteps: cfg.MaxSteps}
		}
		step++

		for _, l := range runLabels {
			name := label.AsStr(l)
			if contains(cfg.InterruptBefore, name) {
				return state, &Interrupt{Label: name, CheckpointID: checkpointID, Before: true}
			}
		}

		out <- Envelope[E]{Lifecycle: &Lifecycle{Kind: RoundStart, Step: step}}

		outcomes, err := runStreamRound(r, ctx, cfg, step, runLabels, state, out)
		if err != nil {
			return state, err
		}

		state = r.reduceRound(state, outcomes)
		out <- Envelope[E]{Lifecycle: &Lifecycle{Kind: RoundCommit, Step: step}}

		interruptAfter := ""
		for _, l := range runLabels {
			name := label.AsStr(l)
			if contains(cfg.InterruptAfter, name) {
				interruptAfter = name
				break
			}
		}

		nextFrontier, err := r.computeNextFrontier(ctx, runLabels, state, outcomes)
		if err != nil {
			return state, err
		}

		if interruptAfter != "" {
			checkpointID, cpErr := r.writeCheckpoint(ctx, cfg, checkpointID, step, state, nextFrontier)
			if cpErr != nil {
				return state, cpErr
			}
			return state, &Interrupt{Label: interruptAfter, CheckpointID: checkpointID, Before: false}
		}

		if hasEnd {
			return state, nil
		}

		checkpointID, err = r.writeCheckpoint(ctx, cfg, checkpointID, step, state, nextFrontier)
		if err != nil {
			return state, err
		}

		frontier = nextFrontier
	}
}

// runStreamRound mirrors runRound but drives each node through its
// StreamingNode capability when present, emitting NodeStart/NodeFinish
// lifecycle envelopes and forwarding node-emitted events onto out.
func runStreamRound[S, U, E any](r *Runnable[S, U], ctx context.Context, cfg *Config, step int, runLabels []label.Label, state S, out chan<- Envelope[E]) (map[label.Label]NodeOutcome[U], error) {
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(map[label.Label]roundOutcome[U], len(runLabels))
	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	for _, l := range runLabels {
		l := l
		node, ok := r.sg.Graph.nodes[l]
		if !ok {
			return nil, &NodeError{Label: label.AsStr(l), Step: step, Err: ErrNodeNotFound}
		}
		nc := &NodeContext{ThreadID: cfg.ThreadID, Store: r.sharedStore().Scope(cfg.ThreadID), Config: cfg.Extra}
		name := label.AsStr(l)

		safeGo(&wg, func() {
			out <- Envelope[E]{Lifecycle: &Lifecycle{Kind: NodeStart, Label: name, Step: step}}

			var outcome NodeOutcome[U]
			var runErr error
			if sn, ok := node.(StreamingNode[S, U]); ok {
				sink := &chanSink[E]{ctx: roundCtx, out: out}
				outcome, runErr = sn.RunStream(roundCtx, nc, state, sink)
			} else {
				outcome, runErr = node.Run(roundCtx, nc, state)
			}

			out <- Envelope[E]{Lifecycle: &Lifecycle{Kind: NodeFinish, Label: name, Step: step}}

			mu.Lock()
			defer mu.Unlock()
			results[l] = roundOutcome[U]{outcome: outcome, err: runErr}
			if runErr != nil && firstErr == nil {
				firstErr = &NodeError{Label: name, Step: step, Err: runErr}
				cancel()
			}
		}, func(panicVal any) {
			mu.Lock()
			defer mu.Unlock()
			if firstErr == nil {
				firstErr = &NodeError{Label: name, Step: step, Err: fmt.Errorf("panic: %v", panicVal)}
				cancel()
			}
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		case <-time.After(cfg.CancelGrace):
		}
		return nil, &CancelledError{Err: ctx.Err()}
	}

	if firstErr != nil {
		return nil, firstErr
	}

	outcomes := make(map[label.Label]NodeOutcome[U], len(results))
	for l, ro := range results {
		outcomes[l] = ro.outcome
	}
	return outcomes, nil
}
