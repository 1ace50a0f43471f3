// Package model defines the language-model collaborator interface
// consumed by the react package's Model node. Concrete backends (see
// model/openai) translate to/from message.Message at their own boundary;
// this package never imports a vendor SDK.
package model

import (
	"context"
	"time"

	"github.com/nodeforge/graphrun/message"
)

// ToolDescriptor advertises a callable tool to the model, mirroring
// tool.Descriptor; package model does not import package tool, and the
// react Model node copies each tool.Descriptor into this type.
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Options carries generation controls passed to Invoke/Stream.
type Options struct {
	Temperature float32
	MaxTokens   int
	Tools       []ToolDescriptor
	ToolChoice  string
}

// FinishReason classifies why generation stopped.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
	FinishOther     FinishReason = "other"
)

// Usage reports token accounting, when the backend provides it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the result of a non-streaming Invoke.
type Completion struct {
	Messages []message.Message
	Usage    Usage
	Finish   FinishReason
}

// Chunk is one piece of a streamed completion.
type Chunk struct {
	Delta  message.Message
	Finish FinishReason // zero value until the final chunk
	Done   bool
}

// FailureKind classifies a Model error so callers (typically retry.Policy
// via a RetryableErrors predicate) can decide whether to retry.
type FailureKind int

const (
	FailureInternal FailureKind = iota
	FailureTransient
	FailureRateLimited
	FailureValidation
	FailureAuth
)

// Failure wraps a backend error with its classification.
type Failure struct {
	Kind       FailureKind
	RetryAfter time.Duration // meaningful only when Kind == FailureRateLimited
	Err        error
}

func (f *Failure) Error() string { return f.Err.Error() }
func (f *Failure) Unwrap() error { return f.Err }

// Model is the polymorphic language-model endpoint the react package's
// Model node calls against.
type Model interface {
	Invoke(ctx context.Context, messages []message.Message, opts Options) (Completion, error)
	Stream(ctx context.Context, messages []message.Message, opts Options) (<-chan Chunk, error)
}
