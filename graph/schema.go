package graph

import (
	"github.com/nodeforge/graphrun/checkpoint"
	"github.com/nodeforge/graphrun/kvstore"
	glog "github.com/nodeforge/graphrun/log"
)

// ReduceFunc folds a node's update into the current state. Determinism
// requirement: when several nodes in the same round produce updates, the
// executor calls ReduceFunc once per update in the fixed order of the
// nodes' labels as of their registration in the graph — never in the
// order the nodes happened to finish.
type ReduceFunc[S, U any] func(state S, update U) S

// StateGraph binds a Graph to a concrete state type S, update type U,
// and reduce function, grounded on this codebase's StateGraph/StateMerger
// pairing but split from the topology so Graph itself stays reusable.
type StateGraph[S, U any] struct {
	Graph  *Graph[S, U]
	Reduce ReduceFunc[S, U]

	Store  checkpoint.Store
	Codec  checkpoint.Codec
	Logger glog.Logger

	// sharedStore backs the kvstore.Store each NodeContext is handed,
	// scoped per thread-id. Lazily created on first Compile'd run.
	sharedStore kvstore.Store

	Tracer      *Tracer
	SpanManager SpanManager
}

// NewStateGraph creates a StateGraph over a fresh Graph.
func NewStateGraph[S, U any](reduce ReduceFunc[S, U]) *StateGraph[S, U] {
	return &StateGraph[S, U]{
		Graph:  NewGraph[S, U](),
		Reduce: reduce,
		Codec:  checkpoint.JSONCodec{},
		Logger: glog.GetDefaultLogger(),
	}
}

// WithCheckpointStore attaches a checkpoint store used by Invoke/Stream
// whenever Config.ThreadID is set. Without one, runs are not persisted.
func (sg *StateGraph[S, U]) WithCheckpointStore(store checkpoint.Store) *StateGraph[S, U] {
	sg.Store = store
	return sg
}

func (sg *StateGraph[S, U]) WithCodec(codec checkpoint.Codec) *StateGraph[S, U] {
	sg.Codec = codec
	return sg
}

func (sg *StateGraph[S, U]) WithLogger(logger glog.Logger) *StateGraph[S, U] {
	sg.Logger = logger
	return sg
}

// WithSharedStore attaches the kvstore.Store handed to nodes via
// NodeContext.Store, scoped per thread-id. Without one, a fresh
// in-memory store is created lazily on first use.
func (sg *StateGraph[S, U]) WithSharedStore(store kvstore.Store) *StateGraph[S, U] {
	sg.sharedStore = store
	return sg
}

// WithTracer attaches a Tracer that records a span per run and per node.
func (sg *StateGraph[S, U]) WithTracer(tracer *Tracer) *StateGraph[S, U] {
	sg.Tracer = tracer
	return sg
}

// WithSpanManager attaches an OpenTelemetry-backed SpanManager, used
// alongside or instead of Tracer.
func (sg *StateGraph[S, U]) WithSpanManager(sm SpanManager) *StateGraph[S, U] {
	sg.SpanManager = sm
	return sg
}

// Compile validates the topology once and returns an immutable Runnable.
// Validation never repeats per round.
func (sg *StateGraph[S, U]) Compile() (*Runnable[S, U], error) {
	if err := sg.Graph.validate(); err != nil {
		return nil, err
	}
	return &Runnable[S, U]{sg: sg}, nil
}
