package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addInvoker(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct{ A, B int }
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	return json.Marshal(in.A + in.B)
}

func TestRegisterAndInvoke(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{Name: "add", Description: "adds two numbers"}, addInvoker))

	out, err := r.Invoke(context.Background(), "add", json.RawMessage(`{"A":2,"B":3}`))
	require.NoError(t, err)
	assert.JSONEq(t, "5", string(out))
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{Name: "add"}, addInvoker))
	err := r.Register(Descriptor{Name: "add"}, addInvoker)
	require.Error(t, err)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
}

func TestInvokeUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "missing", nil)
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestDescriptorsListsAllRegistered(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{Name: "add"}, addInvoker))
	require.NoError(t, r.Register(Descriptor{Name: "sub"}, addInvoker))

	names := map[string]bool{}
	for _, d := range r.Descriptors() {
		names[d.Name] = true
	}
	assert.True(t, names["add"])
	assert.True(t, names["sub"])
}
