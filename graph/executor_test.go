package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeforge/graphrun/checkpoint/memory"
)

func TestCheckpointMonotonicity(t *testing.T) {
	sg := NewStateGraph(strReduce)
	require.NoError(t, sg.Graph.AddNode("a", appendNode("a")))
	require.NoError(t, sg.Graph.AddNode("b", appendNode("b")))
	require.NoError(t, sg.Graph.AddEdge("a", "b"))
	require.NoError(t, sg.Graph.AddEdge("b", END))
	require.NoError(t, sg.Graph.SetEntryPoint("a"))
	store := memory.New()
	sg.WithCheckpointStore(store)

	r, err := sg.Compile()
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), strState{}, WithThreadID("t1"))
	require.NoError(t, err)

	cps, err := store.List(context.Background(), "t1", 10)
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.True(t, cps[0].Step > cps[1].Step, "List returns newest first")
	assert.Equal(t, 1, cps[1].Step)
	assert.Equal(t, 2, cps[0].Step)
}

func TestResumeEquivalence(t *testing.T) {
	build := func() *Runnable[strState, strUpdate] {
		sg := NewStateGraph(strReduce)
		_ = sg.Graph.AddNode("a", appendNode("a"))
		_ = sg.Graph.AddNode("b", appendNode("b"))
		_ = sg.Graph.AddEdge("a", "b")
		_ = sg.Graph.AddEdge("b", END)
		_ = sg.Graph.SetEntryPoint("a")
		r, err := sg.Compile()
		require.NoError(t, err)
		return r
	}

	store := memory.New()
	sgOneShot := build()
	sgOneShot.sg.WithCheckpointStore(store)
	full, err := sgOneShot.Invoke(context.Background(), strState{}, WithThreadID("full"))
	require.NoError(t, err)

	store2 := memory.New()
	partial := build()
	partial.sg.WithCheckpointStore(store2)
	_, err = partial.Invoke(context.Background(), strState{}, WithThreadID("partial"), WithMaxSteps(1))
	require.Error(t, err) // hits max steps after round 1

	cp, err := store2.GetLatest(context.Background(), "partial")
	require.NoError(t, err)

	resumed := build()
	resumed.sg.WithCheckpointStore(store2)
	final, err := resumed.Invoke(context.Background(), strState{}, WithThreadID("partial"), WithResumeFrom(cp.ID))
	require.NoError(t, err)

	assert.Equal(t, full.Log, final.Log)
}

func TestCancellationReturnsWithinGrace(t *testing.T) {
	sg := NewStateGraph(strReduce)
	require.NoError(t, sg.Graph.AddNode("sleepy", NodeFunc[strState, strUpdate](func(ctx context.Context, nc *NodeContext, s strState) (NodeOutcome[strUpdate], error) {
		<-ctx.Done()
		return NodeOutcome[strUpdate]{}, ctx.Err()
	})))
	require.NoError(t, sg.Graph.AddEdge("sleepy", END))
	require.NoError(t, sg.Graph.SetEntryPoint("sleepy"))

	r, err := sg.Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = r.Invoke(ctx, strState{}, WithCancelGrace(200*time.Millisecond))
	elapsed := time.Since(start)

	require.Error(t, err)
	var cancelled *CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestInterruptBeforeAndResume(t *testing.T) {
	sg := NewStateGraph(strReduce)
	require.NoError(t, sg.Graph.AddNode("a", appendNode("a")))
	require.NoError(t, sg.Graph.AddNode("b", appendNode("b")))
	require.NoError(t, sg.Graph.AddEdge("a", "b"))
	require.NoError(t, sg.Graph.AddEdge("b", END))
	require.NoError(t, sg.Graph.SetEntryPoint("a"))
	store := memory.New()
	sg.WithCheckpointStore(store)

	r, err := sg.Compile()
	require.NoError(t, err)

	_, err = r.Invoke(context.Background(), strState{}, WithThreadID("i1"), WithInterruptBefore("b"))
	require.Error(t, err)
	var interrupt *Interrupt
	require.ErrorAs(t, err, &interrupt)
	assert.True(t, interrupt.Before)
	assert.Equal(t, "b", interrupt.Label)

	final, err := r.Invoke(context.Background(), strState{}, WithThreadID("i1"), WithResumeFrom(interrupt.CheckpointID))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, final.Log)
}

func TestInterruptAfterAndResume(t *testing.T) {
	build := func() *Runnable[strState, strUpdate] {
		sg := NewStateGraph(strReduce)
		_ = sg.Graph.AddNode("a", appendNode("a"))
		_ = sg.Graph.AddNode("b", appendNode("b"))
		_ = sg.Graph.AddEdge("a", "b")
		_ = sg.Graph.AddEdge("b", END)
		_ = sg.Graph.SetEntryPoint("a")
		r, err := sg.Compile()
		require.NoError(t, err)
		return r
	}

	store := memory.New()
	r := build()
	r.sg.WithCheckpointStore(store)

	_, err := r.Invoke(context.Background(), strState{}, WithThreadID("i2"), WithInterruptAfter("a"))
	require.Error(t, err)
	var interrupt *Interrupt
	require.ErrorAs(t, err, &interrupt)
	assert.False(t, interrupt.Before)
	assert.Equal(t, "a", interrupt.Label)

	cp, err := store.Get(context.Background(), interrupt.CheckpointID)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, cp.Frontier, "checkpoint must persist the frontier scheduled next, not the frontier that just ran")

	resumed := build()
	resumed.sg.WithCheckpointStore(store)
	final, err := resumed.Invoke(context.Background(), strState{}, WithThreadID("i2"), WithResumeFrom(interrupt.CheckpointID))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, final.Log, "resuming past an interrupt-after checkpoint must not re-run the node that already executed")
}
