// Package graph implements the static topology (this file), the
// reducer-bound StateGraph (schema.go), the Node abstraction (node.go),
// and the round-based Executor (executor.go) — the core of the stateful
// graph execution engine, grounded on this codebase's graph package but
// reshaped around an explicit Label Interner and generic state/update
// types instead of `any`.
package graph

import (
	"context"
	"fmt"

	"github.com/nodeforge/graphrun/label"
)

// END is the terminal label sentinel. Reaching it in the frontier halts
// the executor for that thread, grounded on this codebase's END constant.
const END = "END"

type endMarker struct{}

var endLabel = label.Intern(endMarker{})

func resolveLabel(v any) label.Label {
	if s, ok := v.(string); ok && s == END {
		return endLabel
	}
	return label.Intern(v)
}

// CondFunc is a conditional edge: evaluated after its source node runs,
// given the reduced state and that node's raw outcome, it returns the
// successor labels to route to.
type CondFunc[S, U any] func(ctx context.Context, state S, outcome NodeOutcome[U]) []string

// Graph is the static topology: nodes, static edges, and conditional
// edge functions, with a distinguished entry label.
type Graph[S, U any] struct {
	nodes             map[label.Label]Node[S, U]
	registrationOrder []label.Label
	names             map[label.Label]string
	staticEdges       map[label.Label][]label.Label
	condEdges         map[label.Label][]CondFunc[S, U]
	condEdgeTargets   map[label.Label][]label.Label
	entry             label.Label
	entrySet          bool
}

func NewGraph[S, U any]() *Graph[S, U] {
	return &Graph[S, U]{
		nodes:           make(map[label.Label]Node[S, U]),
		names:           make(map[label.Label]string),
		staticEdges:     make(map[label.Label][]label.Label),
		condEdges:       make(map[label.Label][]CondFunc[S, U]),
		condEdgeTargets: make(map[label.Label][]label.Label),
	}
}

// AddNode registers a node under lbl. lbl may be any comparable value;
// it is interned via package label so heterogeneous label types from
// different callers never collide. Duplicate registration is a
// LabelConflictError.
func (g *Graph[S, U]) AddNode(lbl any, node Node[S, U]) error {
	l := resolveLabel(lbl)
	if l == endLabel {
		return &ValidationError{Label: fmt.Sprint(lbl), Err: fmt.Errorf("cannot register a node under the terminal label")}
	}
	if _, exists := g.nodes[l]; exists {
		return &LabelConflictError{Label: fmt.Sprint(lbl)}
	}
	g.nodes[l] = node
	g.names[l] = label.AsStr(l)
	g.registrationOrder = append(g.registrationOrder, l)
	return nil
}

// AddEdge adds a static directed edge from -> to. to may be graph.END.
func (g *Graph[S, U]) AddEdge(from, to any) error {
	f := resolveLabel(from)
	t := resolveLabel(to)
	g.staticEdges[f] = append(g.staticEdges[f], t)
	return nil
}

// AddConditionalEdge registers fn to run after from's node executes; its
// result contributes to the successor frontier alongside static edges
// and the node's own NodeOutcome.Next. possibleTargets declares every
// label fn might return, so validate's reachability check can account
// for it without having to invoke fn at build time; a target fn can
// actually return that isn't declared here is a build-time gap this
// check cannot catch, but an undeclared target still routes correctly
// at runtime — this only affects the unreachable-node diagnostic.
func (g *Graph[S, U]) AddConditionalEdge(from any, fn CondFunc[S, U], possibleTargets ...any) error {
	f := resolveLabel(from)
	g.condEdges[f] = append(g.condEdges[f], fn)
	for _, t := range possibleTargets {
		g.condEdgeTargets[f] = append(g.condEdgeTargets[f], resolveLabel(t))
	}
	return nil
}

// SetEntryPoint marks lbl as where execution starts on a fresh (non-resumed) run.
func (g *Graph[S, U]) SetEntryPoint(lbl any) error {
	g.entry = resolveLabel(lbl)
	g.entrySet = true
	return nil
}

// validate performs the one-time, build-time checks described in the
// component design: entry is set, every edge target is registered or
// END, and every node is reachable from entry.
func (g *Graph[S, U]) validate() error {
	if !g.entrySet {
		return ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return &ValidationError{Label: g.names[g.entry], Err: ErrNodeNotFound}
	}

	checkTarget := func(t label.Label) error {
		if t == endLabel {
			return nil
		}
		if _, ok := g.nodes[t]; !ok {
			return &ValidationError{Label: label.AsStr(t), Err: ErrNodeNotFound}
		}
		return nil
	}
	for from, tos := range g.staticEdges {
		if _, ok := g.nodes[from]; !ok {
			return &ValidationError{Label: label.AsStr(from), Err: ErrNodeNotFound}
		}
		for _, t := range tos {
			if err := checkTarget(t); err != nil {
				return err
			}
		}
	}
	for from := range g.condEdges {
		if _, ok := g.nodes[from]; !ok {
			return &ValidationError{Label: label.AsStr(from), Err: ErrNodeNotFound}
		}
		for _, t := range g.condEdgeTargets[from] {
			if err := checkTarget(t); err != nil {
				return err
			}
		}
	}

	reachable := map[label.Label]bool{g.entry: true}
	queue := []label.Label{g.entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, t := range g.staticEdges[cur] {
			if t != endLabel && !reachable[t] {
				reachable[t] = true
				queue = append(queue, t)
			}
		}
		// Declared conditional-edge targets are treated the same as
		// static edges for reachability: a node reached only through an
		// undeclared conditional-edge return value still fails this
		// check, which is why AddConditionalEdge callers should declare
		// every label their function can return.
		for _, t := range g.condEdgeTargets[cur] {
			if t != endLabel && !reachable[t] {
				reachable[t] = true
				queue = append(queue, t)
			}
		}
	}
	for _, l := range g.registrationOrder {
		if !reachable[l] {
			return &ValidationError{Label: label.AsStr(l), Err: ErrUnreachableNode}
		}
	}
	return nil
}

// successors computes the union of static edges, conditional-edge
// results, and the node's own NodeOutcome.Next out of from, deduplicated
// preserving first occurrence (see the open question in the design
// notes: order preservation here is intentional, not incidental).
func (g *Graph[S, U]) successors(ctx context.Context, from label.Label, state S, outcome NodeOutcome[U]) ([]label.Label, error) {
	var ordered []label.Label
	seen := make(map[label.Label]bool)
	add := func(l label.Label) {
		if !seen[l] {
			seen[l] = true
			ordered = append(ordered, l)
		}
	}

	for _, t := range g.staticEdges[from] {
		add(t)
	}
	for _, fn := range g.condEdges[from] {
		for _, raw := range fn(ctx, state, outcome) {
			add(resolveLabel(raw))
		}
	}
	for _, raw := range outcome.Next {
		add(resolveLabel(raw))
	}
	return ordered, nil
}
