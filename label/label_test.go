package label_test

import (
	"testing"

	"github.com/nodeforge/graphrun/label"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nodeA string
type nodeB string

func TestInternIdempotent(t *testing.T) {
	label.Reset()
	a1 := label.Intern(nodeA("start"))
	a2 := label.Intern(nodeA("start"))
	assert.Equal(t, a1, a2)
}

func TestInternDistinguishesTypes(t *testing.T) {
	label.Reset()
	a := label.Intern(nodeA("start"))
	b := label.Intern(nodeB("start"))
	assert.NotEqual(t, a, b, "same text, different types must not collide")
}

func TestAsStrStable(t *testing.T) {
	label.Reset()
	l := label.Intern(nodeA("model"))
	require.Equal(t, "model", label.AsStr(l))
	require.Equal(t, "model", label.AsStr(l))
}

func TestFromStrUnambiguous(t *testing.T) {
	label.Reset()
	l := label.Intern(nodeA("tools"))
	got, ok := label.FromStr("tools")
	require.True(t, ok)
	assert.Equal(t, l, got)
}

func TestFromStrAmbiguousAcrossTypes(t *testing.T) {
	label.Reset()
	label.Intern(nodeA("dup"))
	label.Intern(nodeB("dup"))
	_, ok := label.FromStr("dup")
	assert.False(t, ok, "ambiguous string form must not silently resolve")
}

func TestFromStrUnknown(t *testing.T) {
	label.Reset()
	_, ok := label.FromStr("never-interned")
	assert.False(t, ok)
}

func TestInternConcurrentSafe(t *testing.T) {
	label.Reset()
	done := make(chan label.Label, 100)
	for i := 0; i < 100; i++ {
		go func() { done <- label.Intern(nodeA("concurrent")) }()
	}
	first := <-done
	for i := 1; i < 100; i++ {
		assert.Equal(t, first, <-done)
	}
}
