package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nodeforge/graphrun/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := retry.Do(context.Background(), retry.DefaultPolicy(), func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
}

func TestDoCallsFreshComputationEachAttempt(t *testing.T) {
	calls := 0
	policy := retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 1}
	_, err := retry.Do(context.Background(), policy, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "op must be invoked fresh on every attempt")
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	sentinel := errors.New("fatal")
	policy := retry.Policy{
		MaxAttempts:     5,
		InitialDelay:    time.Millisecond,
		BackoffFactor:   1,
		RetryableErrors: func(err error) bool { return !errors.Is(err, sentinel) },
	}
	_, err := retry.Do(context.Background(), policy, func(ctx context.Context) (int, error) {
		calls++
		return 0, sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond}
	_, err := retry.Do(ctx, policy, func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	require.Error(t, err)
}
