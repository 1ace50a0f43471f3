package memory_test

import (
	"context"
	"testing"

	"github.com/nodeforge/graphrun/kvstore/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestGetMissing(t *testing.T) {
	s := memory.New()
	_, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, _ := s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestScopeIsolatesThreads(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	a := s.Scope("thread-a")
	b := s.Scope("thread-b")

	require.NoError(t, a.Put(ctx, "k", []byte("a-value")))
	require.NoError(t, b.Put(ctx, "k", []byte("b-value")))

	av, _, _ := a.Get(ctx, "k")
	bv, _, _ := b.Get(ctx, "k")
	assert.Equal(t, []byte("a-value"), av)
	assert.Equal(t, []byte("b-value"), bv)
}
