package react

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeforge/graphrun/graph"
	"github.com/nodeforge/graphrun/message"
	"github.com/nodeforge/graphrun/model"
	"github.com/nodeforge/graphrun/retry"
	"github.com/nodeforge/graphrun/tool"
)

// flakyModel fails with a classified model.Failure on its first failN
// calls, then returns ok, used to exercise Config.RetryPolicy.
type flakyModel struct {
	calls int
	failN int
	kind  model.FailureKind
	ok    model.Completion
}

func (m *flakyModel) Invoke(ctx context.Context, msgs []message.Message, opts model.Options) (model.Completion, error) {
	m.calls++
	if m.calls <= m.failN {
		return model.Completion{}, &model.Failure{Kind: m.kind, Err: errors.New("boom")}
	}
	return m.ok, nil
}

func (m *flakyModel) Stream(ctx context.Context, msgs []message.Message, opts model.Options) (<-chan model.Chunk, error) {
	panic("not used in this test")
}

// noteNode appends a single System message tagged with its own label,
// used to verify middleware hooks fire at the right points in the loop.
type noteNode struct{ note string }

func (n noteNode) Run(ctx context.Context, nc *graph.NodeContext, s message.State) (graph.NodeOutcome[message.Update], error) {
	return graph.NodeOutcome[message.Update]{Update: message.Update{Messages: []message.Message{message.System(n.note)}}}, nil
}

// scriptedModel returns one canned completion per call, grounded on this
// scenario's need to test the Model/Tools loop without a live backend.
type scriptedModel struct {
	calls     int
	responses []model.Completion
}

func (m *scriptedModel) Invoke(ctx context.Context, msgs []message.Message, opts model.Options) (model.Completion, error) {
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func (m *scriptedModel) Stream(ctx context.Context, msgs []message.Message, opts model.Options) (<-chan model.Chunk, error) {
	panic("not used in this test")
}

func addInvoker(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct{ A, B int }
	_ = json.Unmarshal(args, &in)
	return json.Marshal(in.A + in.B)
}

// TestOneToolRoundTrip mirrors scenario S2: the model requests one tool
// call, then answers using the tool result.
func TestOneToolRoundTrip(t *testing.T) {
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(tool.Descriptor{Name: "add"}, addInvoker))

	m := &scriptedModel{
		responses: []model.Completion{
			{Messages: []message.Message{message.Assistant("", message.ToolCall{
				CallID: "call-1", Name: "add", Arguments: json.RawMessage(`{"A":2,"B":3}`),
			})}},
			{Messages: []message.Message{message.Assistant("5")}},
		},
	}

	agent, err := New(Config{Model: m, Tools: registry, MaxInvocations: 5})
	require.NoError(t, err)

	final, err := agent.Invoke(context.Background(), message.State{
		Messages: []message.Message{message.User("what is 2+3")},
	})
	require.NoError(t, err)

	require.Len(t, final.Messages, 4)
	assert.Equal(t, message.RoleUser, final.Messages[0].Role)
	assert.Equal(t, message.RoleAssistant, final.Messages[1].Role)
	assert.Equal(t, message.RoleTool, final.Messages[2].Role)
	assert.Equal(t, "call-1", final.Messages[2].ToolCallID)
	assert.JSONEq(t, "5", final.Messages[2].Content)
	assert.Equal(t, message.RoleAssistant, final.Messages[3].Role)
	assert.Equal(t, "5", final.Messages[3].Content)
	assert.Equal(t, 2, final.InvocationCount)
}

// TestParallelToolCalls mirrors scenario S3: two tool calls in a single
// Assistant message are answered in the same order, invoked concurrently.
func TestParallelToolCalls(t *testing.T) {
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(tool.Descriptor{Name: "add"}, addInvoker))
	require.NoError(t, registry.Register(tool.Descriptor{Name: "sub"}, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct{ A, B int }
		_ = json.Unmarshal(args, &in)
		return json.Marshal(in.A - in.B)
	}))

	m := &scriptedModel{
		responses: []model.Completion{
			{Messages: []message.Message{message.Assistant("",
				message.ToolCall{CallID: "c1", Name: "add", Arguments: json.RawMessage(`{"A":10,"B":20}`)},
				message.ToolCall{CallID: "c2", Name: "sub", Arguments: json.RawMessage(`{"A":9,"B":1}`)},
			)}},
			{Messages: []message.Message{message.Assistant("done")}},
		},
	}

	agent, err := New(Config{Model: m, Tools: registry, MaxInvocations: 5})
	require.NoError(t, err)

	final, err := agent.Invoke(context.Background(), message.State{})
	require.NoError(t, err)

	require.Len(t, final.Messages, 4)
	assert.Equal(t, "c1", final.Messages[1].ToolCallID)
	assert.Equal(t, "c2", final.Messages[2].ToolCallID)
	assert.JSONEq(t, "30", final.Messages[1].Content)
	assert.JSONEq(t, "8", final.Messages[2].Content)
}

// TestMiddlewareHooksSpliceIntoLoop verifies BeforeAgent/AfterAgent run
// exactly once around the whole invocation while BeforeModel/AfterModel
// wrap every Model call, in the order original_source's middleware
// chain describes.
func TestMiddlewareHooksSpliceIntoLoop(t *testing.T) {
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(tool.Descriptor{Name: "add"}, addInvoker))

	m := &scriptedModel{
		responses: []model.Completion{
			{Messages: []message.Message{message.Assistant("", message.ToolCall{
				CallID: "call-1", Name: "add", Arguments: json.RawMessage(`{"A":2,"B":3}`),
			})}},
			{Messages: []message.Message{message.Assistant("5")}},
		},
	}

	agent, err := New(Config{
		Model: m, Tools: registry, MaxInvocations: 5,
		Middlewares: []Middleware{{
			BeforeAgent: noteNode{"before_agent"},
			BeforeModel: noteNode{"before_model"},
			AfterModel:  noteNode{"after_model"},
			AfterAgent:  noteNode{"after_agent"},
		}},
	})
	require.NoError(t, err)

	final, err := agent.Invoke(context.Background(), message.State{
		Messages: []message.Message{message.User("what is 2+3")},
	})
	require.NoError(t, err)

	var notes []string
	for _, msg := range final.Messages {
		if msg.Role == message.RoleSystem {
			notes = append(notes, msg.Content)
		}
	}
	assert.Equal(t, []string{
		"before_agent",
		"before_model",
		"after_model",
		"before_model",
		"after_model",
		"after_agent",
	}, notes)
}

// TestModelRetryOnTransientFailure verifies Config.RetryPolicy retries a
// transiently-failing Model call and that only the eventual successful
// attempt's outcome is folded into state.
func TestModelRetryOnTransientFailure(t *testing.T) {
	m := &flakyModel{
		failN: 2,
		kind:  model.FailureTransient,
		ok:    model.Completion{Messages: []message.Message{message.Assistant("done")}},
	}
	policy := retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 1}

	agent, err := New(Config{Model: m, MaxInvocations: 5, RetryPolicy: &policy})
	require.NoError(t, err)

	final, err := agent.Invoke(context.Background(), message.State{
		Messages: []message.Message{message.User("hi")},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, m.calls)
	assert.Equal(t, 1, final.InvocationCount, "only the successful attempt's Update should be folded")
	last := final.Messages[len(final.Messages)-1]
	assert.Equal(t, "done", last.Content)
}

// TestModelRetryStopsOnNonRetryableFailure verifies a Validation failure
// (not Transient/RateLimited) is not retried under the default predicate.
func TestModelRetryStopsOnNonRetryableFailure(t *testing.T) {
	m := &flakyModel{failN: 5, kind: model.FailureValidation}
	policy := retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 1}

	agent, err := New(Config{Model: m, MaxInvocations: 5, RetryPolicy: &policy})
	require.NoError(t, err)

	_, err = agent.Invoke(context.Background(), message.State{
		Messages: []message.Message{message.User("hi")},
	})
	require.Error(t, err)
	assert.Equal(t, 1, m.calls, "a non-retryable failure must not be retried")
}

// TestOverflowMarkerOnInvocationBound verifies the terminal Assistant
// message is emitted once the invocation bound is reached.
func TestOverflowMarkerOnInvocationBound(t *testing.T) {
	registry := tool.NewRegistry()
	require.NoError(t, registry.Register(tool.Descriptor{Name: "add"}, addInvoker))

	// The model always asks for a tool call, so the loop would never stop
	// on its own; MaxInvocations must bound it.
	always := model.Completion{Messages: []message.Message{message.Assistant("", message.ToolCall{
		CallID: "x", Name: "add", Arguments: json.RawMessage(`{"A":1,"B":1}`),
	})}}
	m := &scriptedModel{responses: []model.Completion{always, always, always, always, always}}

	agent, err := New(Config{Model: m, Tools: registry, MaxInvocations: 2})
	require.NoError(t, err)

	final, err := agent.Invoke(context.Background(), message.State{})
	require.NoError(t, err)

	last := final.Messages[len(final.Messages)-1]
	assert.Equal(t, message.RoleAssistant, last.Role)
	assert.Equal(t, OverflowMarker, last.Content)
}
