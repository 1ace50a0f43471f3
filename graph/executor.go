package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/nodeforge/graphrun/checkpoint"
	"github.com/nodeforge/graphrun/kvstore"
	kvmemory "github.com/nodeforge/graphrun/kvstore/memory"
	"github.com/nodeforge/graphrun/label"
)

// Runnable is a compiled, immutable StateGraph. It drives one thread-id
// at a time through the round-based control loop described in the
// component design: run frontier in parallel, reduce deterministically,
// compute the next frontier, checkpoint, repeat.
type Runnable[S, U any] struct {
	sg *StateGraph[S, U]
}

func safeGo(wg *sync.WaitGroup, work func(), onPanic func(any)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				onPanic(r)
			}
		}()
		work()
	}()
}

func (r *Runnable[S, U]) sharedStore() kvstore.Store {
	if r.sg.sharedStore == nil {
		r.sg.sharedStore = kvmemory.New()
	}
	return r.sg.sharedStore
}

// initFrontier resolves the starting state and frontier for a run,
// either from Config.ResumeFrom or a fresh entry-point frontier.
func (r *Runnable[S, U]) initFrontier(ctx context.Context, cfg *Config, initial S) (S, []label.Label, string, int, error) {
	if cfg.ResumeFrom == "" {
		return initial, []label.Label{r.sg.Graph.entry}, "", 0, nil
	}
	if r.sg.Store == nil {
		return initial, nil, "", 0, &CheckpointError{Op: "resume", Err: fmt.Errorf("no checkpoint store configured")}
	}
	cp, err := r.sg.Store.Get(ctx, cfg.ResumeFrom)
	if err != nil {
		return initial, nil, "", 0, &CheckpointError{Op: "resume", Err: err}
	}
	var state S
	if err := r.sg.Codec.Unmarshal(cp.State, &state); err != nil {
		return initial, nil, "", 0, &CheckpointError{Op: "resume-unmarshal", Err: err}
	}
	frontier := make([]label.Label, 0, len(cp.Frontier))
	for _, text := range cp.Frontier {
		l, ok := label.FromStr(text)
		if !ok {
			if cfg.AllowLossyResume {
				r.sg.Logger.Warn("graph: dropping unresolvable label %q from resumed frontier", text)
				continue
			}
			r.sg.Logger.Error("graph: could not resolve persisted label %q on resume", text)
			return initial, nil, "", 0, &LabelResolutionError{Text: text}
		}
		frontier = append(frontier, l)
	}
	return state, frontier, cp.ID, cp.Step, nil
}

// splitFrontier separates the terminal label from the rest, preserving
// order, so the caller can implement "run the others, then stop".
func splitFrontier(frontier []label.Label) (rest []label.Label, hasEnd bool) {
	for _, l := range frontier {
		if l == endLabel {
			hasEnd = true
			continue
		}
		rest = append(rest, l)
	}
	return rest, hasEnd
}

type roundOutcome[U any] struct {
	outcome NodeOutcome[U]
	err     error
}

// runRound executes every label in runLabels concurrently, each wrapped
// in a panic-recovering goroutine, cancelling siblings on the first
// node error, and returning within cfg.CancelGrace of ctx cancellation.
func (r *Runnable[S, U]) runRound(ctx context.Context, cfg *Config, step int, runLabels []label.Label, state S) (map[label.Label]NodeOutcome[U], error) {
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
			nodeCtx := roundCtx
			var nodeSpan *TraceSpan
			if r.sg.Tracer != nil {
				nodeSpan = r.sg.Tracer.StartSpan(nodeCtx, TraceEventNodeStart, name, step)
				nodeCtx = ContextWithSpan(nodeCtx, nodeSpan)
			}
			var otelNodeSpan trace.Span
			if r.sg.SpanManager != nil {
				nodeCtx, otelNodeSpan = r.sg.SpanManager.StartNodeSpan(nodeCtx, name, step)
			}

			outcome, err := node.Run(nodeCtx, nc, state)

			if nodeSpan != nil {
				r.sg.Tracer.EndSpan(nodeCtx, nodeSpan, err)
			}
			if r.sg.SpanManager != nil {
				r.sg.SpanManager.EndSpanWithError(otelNodeSpan, err)
			}

			mu.Lock()
			defer mu.Unlock()
			results[l] = roundOutcome[U]{outcome: outcome, err: err}
			if err != nil && firstErr == nil {
				firstErr = &NodeError{Label: name, Step: step, Err: err}
				cancel()
			}
		}, func(panicVal any) {
			mu.Lock()
			defer mu.Unlock()
			if firstErr == nil {
				firstErr = &NodeError{Label: label.AsStr(l), Step: step, Err: fmt.Errorf("panic: %v", panicVal)}
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

func (r *Runnable[S, U]) reduceRound(state S, outcomes map[label.Label]NodeOutcome[U]) S {
	for _, l := range r.sg.Graph.registrationOrder {
		if o, ok := outcomes[l]; ok {
			state = r.sg.Reduce(state, o.Update)
		}
	}
	return state
}

func (r *Runnable[S, U]) computeNextFrontier(ctx context.Context, runLabels []label.Label, state S, outcomes map[label.Label]NodeOutcome[U]) ([]label.Label, error) {
	var ordered []label.Label
	seen := make(map[label.Label]bool)
	add := func(l label.Label) {
		if !seen[l] {
			seen[l] = true
			ordered = append(ordered, l)
		}
	}
	for _, l := range runLabels {
		succ, err := r.sg.Graph.successors(ctx, l, state, outcomes[l])
		if err != nil {
			return nil, err
		}
		for _, s := range succ {
			add(s)
		}
	}
	return ordered, nil
}

func (r *Runnable[S, U]) writeCheckpoint(ctx context.Context, cfg *Config, parentID string, step int, state S, frontier []label.Label) (string, error) {
	if r.sg.Store == nil || cfg.ThreadID == "" {
		return parentID, nil
	}
	stateBytes, err := r.sg.Codec.Marshal(state)
	if err != nil {
		return "", &CheckpointError{Op: "marshal", Err: err}
	}
	cp := &checkpoint.Checkpoint{
		ID:        uuid.NewString(),
		ParentID:  parentID,
		ThreadID:  cfg.ThreadID,
		Step:      step,
		State:     stateBytes,
		Frontier:  labelListToStrings(frontier),
		CreatedAt: time.Now(),
	}
	if err := r.sg.Store.Put(ctx, cp); err != nil {
		return "", &CheckpointError{Op: "put", Err: err}
	}
	return cp.ID, nil
}

// Invoke runs the graph to completion (or interruption, cancellation, or
// error) and returns the final state.
func (r *Runnable[S, U]) Invoke(ctx context.Context, initial S, opts ...Option) (S, error) {
	cfg := buildConfig(opts...)

	var runSpan *TraceSpan
	if r.sg.Tracer != nil {
		runSpan = r.sg.Tracer.StartSpan(ctx, TraceEventRunStart, "", 0)
		ctx = ContextWithSpan(ctx, runSpan)
	}
	var otelSpan trace.Span
	if r.sg.SpanManager != nil {
		ctx, otelSpan = r.sg.SpanManager.StartRunSpan(ctx, cfg.ThreadID)
	}

	state, runErr := r.invoke(ctx, cfg, initial)

	if runSpan != nil {
		r.sg.Tracer.EndSpan(ctx, runSpan, runErr)
	}
	if r.sg.SpanManager != nil {
		r.sg.SpanManager.EndSpanWithError(otelSpan, runErr)
	}
	return state, runErr
}

func (r *Runnable[S, U]) invoke(ctx context.Context, cfg *Config, initial S) (S, error) {
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

		outcomes, err := r.runRound(ctx, cfg, step, runLabels, state)
		if err != nil {
			return state, err
		}

		state = r.reduceRound(state, outcomes)

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
