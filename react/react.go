// Package react implements the ReAct agent pattern as a thin layer over
// the core graph package: a Model node that calls a language model over
// the running message list, and a Tools node that executes any tool
// calls the model requested, looping until the model stops requesting
// tools or a configured invocation bound is hit.
//
// Middleware hooks splice extra nodes into that loop, grounded on
// original_source's ReactAgentBuilder/AgentMiddleware: a BeforeAgent
// hook runs once, ahead of the first Model call; BeforeModel/AfterModel
// wrap every Model call; AfterAgent runs once, right before the graph
// would otherwise terminate. Each hook is itself a graph.Node over
// message.State/message.Update, so it can inspect and extend the
// running message list exactly like Model and Tools do.
package react

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nodeforge/graphrun/graph"
	"github.com/nodeforge/graphrun/message"
	"github.com/nodeforge/graphrun/model"
	"github.com/nodeforge/graphrun/retry"
	"github.com/nodeforge/graphrun/tool"
)

const (
	modelLabel = "model"
	toolsLabel = "tools"

	// OverflowMarker prefixes the terminal Assistant message emitted when
	// the invocation bound is reached before the model stopped on its own.
	OverflowMarker = "[max invocations reached]"
)

// Middleware bundles the four hook points a caller can splice into the
// ReAct loop. Any subset may be nil. Multiple middlewares registered on
// a Config run in slice order at each hook point, mirroring
// original_source's SmallVec<AgentMiddleware> chain.
type Middleware struct {
	// BeforeAgent runs once, before the first Model invocation.
	BeforeAgent graph.Node[message.State, message.Update]
	// BeforeModel runs immediately before every Model invocation,
	// including the first.
	BeforeModel graph.Node[message.State, message.Update]
	// AfterModel runs immediately after every Model invocation.
	AfterModel graph.Node[message.State, message.Update]
	// AfterAgent runs once, right before the agent would otherwise hand
	// control back to the caller (the model stopped requesting tools, or
	// the invocation bound was hit).
	AfterAgent graph.Node[message.State, message.Update]
}

// Config configures a ReAct agent's Model node.
type Config struct {
	Model          model.Model
	Tools          *tool.Registry
	SystemPrompt   string
	MaxInvocations int
	ModelOptions   model.Options
	Middlewares    []Middleware

	// RetryPolicy, when non-nil, wraps the Model node in graph.WithRetry.
	// A policy with a nil RetryableErrors predicate defaults to retrying
	// only model.Failure errors classified Transient or RateLimited,
	// leaving Validation/Auth/Internal failures to surface immediately.
	RetryPolicy *retry.Policy
}

// retryableModelFailure is the default RetryableErrors predicate for
// Config.RetryPolicy: only transient and rate-limited model failures are
// worth a fresh attempt.
func retryableModelFailure(err error) bool {
	var f *model.Failure
	if errors.As(err, &f) {
		return f.Kind == model.FailureTransient || f.Kind == model.FailureRateLimited
	}
	return false
}

func (c Config) maxInvocations() int {
	if c.MaxInvocations <= 0 {
		return 20
	}
	return c.MaxInvocations
}

type modelNode struct {
	cfg Config
}

func (n *modelNode) Run(ctx context.Context, nc *graph.NodeContext, state message.State) (graph.NodeOutcome[message.Update], error) {
	if state.InvocationCount >= n.cfg.maxInvocations() {
		overflow := message.Assistant(OverflowMarker)
		return graph.NodeOutcome[message.Update]{
			Update: message.Update{Messages: []message.Message{overflow}},
		}, nil
	}

	full := make([]message.Message, 0, len(state.Messages)+1)
	if n.cfg.SystemPrompt != "" {
		full = append(full, message.System(n.cfg.SystemPrompt))
	}
	full = append(full, state.Messages...)

	opts := n.cfg.ModelOptions
	if n.cfg.Tools != nil {
		for _, d := range n.cfg.Tools.Descriptors() {
			opts.Tools = append(opts.Tools, model.ToolDescriptor{
				Name:        d.Name,
				Description: d.Description,
				Schema:      d.Schema,
			})
		}
	}

	completion, err := n.cfg.Model.Invoke(ctx, full, opts)
	if err != nil {
		return graph.NodeOutcome[message.Update]{}, err
	}

	return graph.NodeOutcome[message.Update]{
		Update: message.Update{Messages: completion.Messages, InvocationDelta: 1},
	}, nil
}

// route is the Model node's (or, when AfterModel middlewares are
// present, the last AfterModel node's) conditional edge: continue to
// Tools when the most recent Assistant message asked for tool calls,
// otherwise proceed to the afterAgent chain if one is registered, or
// stop.
func route(afterAgent []string) graph.CondFunc[message.State, message.Update] {
	return func(ctx context.Context, state message.State, outcome graph.NodeOutcome[message.Update]) []string {
		if last, ok := state.LastAssistant(); ok && len(last.ToolCalls) > 0 {
			return []string{toolsLabel}
		}
		if len(afterAgent) > 0 {
			return []string{afterAgent[0]}
		}
		return []string{graph.END}
	}
}

type toolsNode struct {
	registry *tool.Registry
}

func (n *toolsNode) Run(ctx context.Context, nc *graph.NodeContext, state message.State) (graph.NodeOutcome[message.Update], error) {
	last, ok := state.LastAssistant()
	if !ok || len(last.ToolCalls) == 0 {
		return graph.NodeOutcome[message.Update]{}, nil
	}

	results := make([]message.Message, len(last.ToolCalls))
	var wg sync.WaitGroup
	for i, call := range last.ToolCalls {
		i, call := i, call
		wg.Add(1)
		go func() {
			defer wg.Done()
			raw, err := n.registry.Invoke(ctx, call.Name, call.Arguments)
			if err != nil {
				results[i] = message.Tool(call.CallID, err.Error())
				return
			}
			results[i] = message.Tool(call.CallID, string(raw))
		}()
	}
	wg.Wait()

	return graph.NodeOutcome[message.Update]{
		Update: message.Update{Messages: results},
	}, nil
}

// addChain registers nodes as "mw:<kind>:<i>" and wires them into a
// static chain in slice order, returning their labels. An empty nodes
// slice yields an empty chain.
func addChain(sg *graph.StateGraph[message.State, message.Update], kind string, nodes []graph.Node[message.State, message.Update]) ([]string, error) {
	labels := make([]string, len(nodes))
	for i, n := range nodes {
		l := fmt.Sprintf("mw:%s:%d", kind, i)
		if err := sg.Graph.AddNode(l, n); err != nil {
			return nil, err
		}
		labels[i] = l
	}
	for i := 0; i+1 < len(labels); i++ {
		if err := sg.Graph.AddEdge(labels[i], labels[i+1]); err != nil {
			return nil, err
		}
	}
	return labels, nil
}

// New builds a compiled ReAct agent. With no middlewares configured
// this is the two-node loop: entry -> Model, with a conditional edge to
// Tools when the model requests calls and to graph.END otherwise, and a
// static edge Tools -> Model. Configured middlewares splice their hook
// nodes into that loop: BeforeAgent ahead of the first Model call,
// BeforeModel/AfterModel around every Model call, and AfterAgent right
// before the loop would otherwise terminate.
func New(cfg Config) (*graph.Runnable[message.State, message.Update], error) {
	sg := graph.NewStateGraph(message.Reduce)

	var beforeAgent, beforeModel, afterModel, afterAgent []graph.Node[message.State, message.Update]
	for _, mw := range cfg.Middlewares {
		if mw.BeforeAgent != nil {
			beforeAgent = append(beforeAgent, mw.BeforeAgent)
		}
		if mw.BeforeModel != nil {
			beforeModel = append(beforeModel, mw.BeforeModel)
		}
		if mw.AfterModel != nil {
			afterModel = append(afterModel, mw.AfterModel)
		}
		if mw.AfterAgent != nil {
			afterAgent = append(afterAgent, mw.AfterAgent)
		}
	}

	beforeAgentLabels, err := addChain(sg, "before_agent", beforeAgent)
	if err != nil {
		return nil, err
	}
	beforeModelLabels, err := addChain(sg, "before_model", beforeModel)
	if err != nil {
		return nil, err
	}
	afterModelLabels, err := addChain(sg, "after_model", afterModel)
	if err != nil {
		return nil, err
	}
	afterAgentLabels, err := addChain(sg, "after_agent", afterAgent)
	if err != nil {
		return nil, err
	}

	var mNode graph.Node[message.State, message.Update] = &modelNode{cfg: cfg}
	if cfg.RetryPolicy != nil {
		policy := *cfg.RetryPolicy
		if policy.RetryableErrors == nil {
			policy.RetryableErrors = retryableModelFailure
		}
		mNode = graph.WithRetry[message.State, message.Update](mNode, policy)
	}
	if err := sg.Graph.AddNode(modelLabel, mNode); err != nil {
		return nil, err
	}
	if err := sg.Graph.AddNode(toolsLabel, &toolsNode{registry: cfg.Tools}); err != nil {
		return nil, err
	}

	// entry -> [before_agent chain ->] [before_model chain ->] model
	entry := modelLabel
	if len(beforeModelLabels) > 0 {
		entry = beforeModelLabels[0]
	}
	if len(beforeAgentLabels) > 0 {
		entry = beforeAgentLabels[0]
		next := modelLabel
		if len(beforeModelLabels) > 0 {
			next = beforeModelLabels[0]
		}
		if err := sg.Graph.AddEdge(beforeAgentLabels[len(beforeAgentLabels)-1], next); err != nil {
			return nil, err
		}
	}
	if len(beforeModelLabels) > 0 {
		if err := sg.Graph.AddEdge(beforeModelLabels[len(beforeModelLabels)-1], modelLabel); err != nil {
			return nil, err
		}
	}

	// model -> [after_model chain ->] route(tools | [after_agent chain ->] END)
	routeFrom := modelLabel
	if len(afterModelLabels) > 0 {
		if err := sg.Graph.AddEdge(modelLabel, afterModelLabels[0]); err != nil {
			return nil, err
		}
		routeFrom = afterModelLabels[len(afterModelLabels)-1]
	}
	condTargets := []any{toolsLabel}
	if len(afterAgentLabels) > 0 {
		condTargets = append(condTargets, afterAgentLabels[0])
		if err := sg.Graph.AddEdge(afterAgentLabels[len(afterAgentLabels)-1], graph.END); err != nil {
			return nil, err
		}
	} else {
		condTargets = append(condTargets, graph.END)
	}
	if err := sg.Graph.AddConditionalEdge(routeFrom, route(afterAgentLabels), condTargets...); err != nil {
		return nil, err
	}

	// tools -> [before_model chain ->] model, looping without re-running
	// before_agent.
	toolsNext := modelLabel
	if len(beforeModelLabels) > 0 {
		toolsNext = beforeModelLabels[0]
	}
	if err := sg.Graph.AddEdge(toolsLabel, toolsNext); err != nil {
		return nil, err
	}

	if err := sg.Graph.SetEntryPoint(entry); err != nil {
		return nil, err
	}

	return sg.Compile()
}
