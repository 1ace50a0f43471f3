package graph

import (
	"context"

	"github.com/nodeforge/graphrun/retry"
)

// retryNode wraps a Node so every Run call is retried per policy,
// grounded on this codebase's RetryNode/NewRetryNode wrapper but
// generalized onto retry.Do's fresh-computation-per-attempt contract.
type retryNode[S, U any] struct {
	inner  Node[S, U]
	policy retry.Policy
}

// WithRetry wraps node so that Run is retried according to policy. Each
// attempt is a fresh call to the inner node's Run — no memoized result
// or partial side effect from a failed attempt is reused.
func WithRetry[S, U any](node Node[S, U], policy retry.Policy) Node[S, U] {
	return &retryNode[S, U]{inner: node, policy: policy}
}

func (n *retryNode[S, U]) Run(ctx context.Context, nc *NodeContext, state S) (NodeOutcome[U], error) {
	return retry.Do(ctx, n.policy, func(ctx context.Context) (NodeOutcome[U], error) {
		return n.inner.Run(ctx, nc, state)
	})
}
