package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeforge/graphrun/retry"
)

// flakyNode fails its first failN Run calls, then succeeds.
type flakyNode struct {
	calls int
	failN int
}

func (n *flakyNode) Run(ctx context.Context, nc *NodeContext, s strState) (NodeOutcome[strUpdate], error) {
	n.calls++
	if n.calls <= n.failN {
		return NodeOutcome[strUpdate]{}, errors.New("transient failure")
	}
	return NodeOutcome[strUpdate]{Update: strUpdate{Append: "ok"}}, nil
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	inner := &flakyNode{failN: 2}
	node := WithRetry[strState, strUpdate](inner, retry.Policy{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 1,
	})

	outcome, err := node.Run(context.Background(), &NodeContext{}, strState{})
	require.NoError(t, err)
	assert.Equal(t, "ok", outcome.Update.Append)
	assert.Equal(t, 3, inner.calls)
}

func TestWithRetryStopsOnNonRetryablePredicate(t *testing.T) {
	inner := &flakyNode{failN: 5}
	node := WithRetry[strState, strUpdate](inner, retry.Policy{
		MaxAttempts:     3,
		InitialDelay:    time.Millisecond,
		BackoffFactor:   1,
		RetryableErrors: func(err error) bool { return false },
	})

	_, err := node.Run(context.Background(), &NodeContext{}, strState{})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestWithRetryExhaustsMaxAttempts(t *testing.T) {
	inner := &flakyNode{failN: 10}
	node := WithRetry[strState, strUpdate](inner, retry.Policy{
		MaxAttempts:   4,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 1,
	})

	_, err := node.Run(context.Background(), &NodeContext{}, strState{})
	require.Error(t, err)
	assert.Equal(t, 4, inner.calls)
}
