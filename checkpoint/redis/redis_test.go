package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeforge/graphrun/checkpoint"
	checkpointredis "github.com/nodeforge/graphrun/checkpoint/redis"
)

func newTestStore(t *testing.T) *checkpointredis.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return checkpointredis.NewWithClient(client, "test:", 0)
}

func TestPutAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cp := &checkpoint.Checkpoint{ID: "cp-1", ThreadID: "t1", Step: 1, State: []byte(`{}`), Frontier: []string{"end"}, CreatedAt: time.Now()}

	require.NoError(t, s.Put(ctx, cp))
	got, err := s.Get(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ThreadID)
}

func TestGetLatestOrdersByWriteOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &checkpoint.Checkpoint{ID: "cp-1", ThreadID: "t1", Step: 1, CreatedAt: time.Now()}))
	require.NoError(t, s.Put(ctx, &checkpoint.Checkpoint{ID: "cp-2", ThreadID: "t1", Step: 2, ParentID: "cp-1", CreatedAt: time.Now()}))

	latest, err := s.GetLatest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "cp-2", latest.ID)
}

func TestGetLatestFollowsWriteOrderNotStep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &checkpoint.Checkpoint{ID: "cp-1", ThreadID: "t1", Step: 1, CreatedAt: time.Now()}))
	require.NoError(t, s.Put(ctx, &checkpoint.Checkpoint{ID: "cp-2", ThreadID: "t1", Step: 5, ParentID: "cp-1", CreatedAt: time.Now()}))
	// A caller resumes from cp-1 and writes a new branch whose step (2) is
	// lower than the abandoned cp-2 branch's step (5). GetLatest must
	// still return the just-written cp-3, not the higher-step cp-2.
	require.NoError(t, s.Put(ctx, &checkpoint.Checkpoint{ID: "cp-3", ThreadID: "t1", Step: 2, ParentID: "cp-1", CreatedAt: time.Now()}))

	latest, err := s.GetLatest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "cp-3", latest.ID)
}

func TestGetLatestNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetLatest(context.Background(), "unknown")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &checkpoint.Checkpoint{ID: "cp-1", ThreadID: "t1", Step: 1, CreatedAt: time.Now()}))
	require.NoError(t, s.Put(ctx, &checkpoint.Checkpoint{ID: "cp-2", ThreadID: "t1", Step: 2, ParentID: "cp-1", CreatedAt: time.Now()}))

	list, err := s.List(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cp-2", list[0].ID)
	assert.Equal(t, "cp-1", list[1].ID)
}

func TestAncestorsChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &checkpoint.Checkpoint{ID: "cp-1", ThreadID: "t1", Step: 1, CreatedAt: time.Now()}))
	require.NoError(t, s.Put(ctx, &checkpoint.Checkpoint{ID: "cp-2", ThreadID: "t1", Step: 2, ParentID: "cp-1", CreatedAt: time.Now()}))

	chain, err := s.Ancestors(ctx, "cp-2")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "cp-1", chain[0].ID)
	assert.Equal(t, "cp-2", chain[1].ID)
}
