package graph

import (
	"context"

	"github.com/nodeforge/graphrun/kvstore"
)

// NodeContext is handed to every node invocation. It carries the current
// thread, a handle to the shared key/value store scoped to that thread,
// and read-only per-run configuration. Cancellation travels through the
// ctx.Context parameter of Run/RunStream, not through NodeContext.
type NodeContext struct {
	ThreadID string
	Store    kvstore.Store
	Config   map[string]any
}

// NodeOutcome is what a node hands back to the executor: a state update
// to fold via the reducer, and the successor labels this node itself
// chooses to contribute to the next frontier. Next augments — never
// replaces — the graph's static and conditional edges out of the node.
type NodeOutcome[U any] struct {
	Update U
	Next   []string
}

// Node is the synchronous unit of work bound to a label in a Graph.
type Node[S, U any] interface {
	Run(ctx context.Context, nc *NodeContext, state S) (NodeOutcome[U], error)
}

// EventSink is where a StreamingNode emits events during RunStream.
// Implementations must be safe for concurrent Emit calls from different
// nodes in the same round; Emit may block to apply back-pressure.
//
// Events are typed any at this boundary rather than via a type parameter
// on EventSink/StreamingNode: the executor dispatches across a set of
// nodes with heterogeneous event types in a single round, which a
// per-node type parameter cannot express. graph.Stream restores type
// safety for callers by asserting each event to the caller-chosen E as
// it relays it.
type EventSink interface {
	Emit(ctx context.Context, ev any) error
}

// StreamingNode is the optional streaming capability the executor probes
// for with a type assertion, mirroring this codebase's ListenableNode
// optional-interface pattern. A Node that doesn't implement it falls
// back to Run with no emitted events.
type StreamingNode[S, U any] interface {
	Node[S, U]
	RunStream(ctx context.Context, nc *NodeContext, state S, sink EventSink) (NodeOutcome[U], error)
}

// NodeFunc adapts a plain function to Node, grounded on this codebase's
// Node.Function field turned into a typed function value.
type NodeFunc[S, U any] func(ctx context.Context, nc *NodeContext, state S) (NodeOutcome[U], error)

func (f NodeFunc[S, U]) Run(ctx context.Context, nc *NodeContext, state S) (NodeOutcome[U], error) {
	return f(ctx, nc, state)
}

// StreamingNodeFunc adapts a pair of plain functions to StreamingNode.
type StreamingNodeFunc[S, U any] struct {
	RunFn       func(ctx context.Context, nc *NodeContext, state S) (NodeOutcome[U], error)
	RunStreamFn func(ctx context.Context, nc *NodeContext, state S, sink EventSink) (NodeOutcome[U], error)
}

func (f StreamingNodeFunc[S, U]) Run(ctx context.Context, nc *NodeContext, state S) (NodeOutcome[U], error) {
	return f.RunFn(ctx, nc, state)
}

func (f StreamingNodeFunc[S, U]) RunStream(ctx context.Context, nc *NodeContext, state S, sink EventSink) (NodeOutcome[U], error) {
	return f.RunStreamFn(ctx, nc, state, sink)
}
