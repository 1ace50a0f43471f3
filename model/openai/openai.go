// Package openai implements model.Model against the OpenAI chat
// completion API via github.com/sashabaranov/go-openai, grounded on this
// codebase's OpenAIClient wiring (client construction, DefaultConfig,
// CreateChatCompletion) generalized to the full message/tool-call/stream
// surface the react package needs.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nodeforge/graphrun/message"
	"github.com/nodeforge/graphrun/model"
)

// Client adapts an *openai.Client to model.Model.
type Client struct {
	inner *openai.Client
	model string
}

// New builds a Client with the given API key and model name.
func New(apiKey, modelName string) *Client {
	return &Client{inner: openai.NewClient(apiKey), model: modelName}
}

// NewWithBaseURL builds a Client pointed at a compatible endpoint other
// than api.openai.com (e.g. a local proxy or Azure-compatible gateway).
func NewWithBaseURL(apiKey, baseURL, modelName string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{inner: openai.NewClientWithConfig(cfg), model: modelName}
}

func toWireRole(r message.Role) string {
	switch r {
	case message.RoleSystem:
		return openai.ChatMessageRoleSystem
	case message.RoleUser:
		return openai.ChatMessageRoleUser
	case message.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case message.RoleTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

func fromWireRole(r string) message.Role {
	switch r {
	case openai.ChatMessageRoleSystem:
		return message.RoleSystem
	case openai.ChatMessageRoleUser:
		return message.RoleUser
	case openai.ChatMessageRoleAssistant:
		return message.RoleAssistant
	case openai.ChatMessageRoleTool:
		return message.RoleTool
	default:
		return message.RoleUser
	}
}

func toWireMessages(msgs []message.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := openai.ChatCompletionMessage{
			Role:       toWireRole(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, openai.ToolCall{
				ID:   tc.CallID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(descs []model.ToolDescriptor) []openai.Tool {
	if len(descs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(descs))
	for _, d := range descs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Schema,
			},
		})
	}
	return out
}

func fromWireMessage(wm openai.ChatCompletionMessage) message.Message {
	m := message.Message{
		Role:       fromWireRole(wm.Role),
		Content:    wm.Content,
		ToolCallID: wm.ToolCallID,
	}
	for _, tc := range wm.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, message.ToolCall{
			CallID:    tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return m
}

func fromWireFinish(r openai.FinishReason) model.FinishReason {
	switch r {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return model.FinishToolCalls
	case openai.FinishReasonLength:
		return model.FinishLength
	case openai.FinishReasonStop, "":
		return model.FinishStop
	default:
		return model.FinishOther
	}
}

// classify maps an OpenAI API error onto model's failure taxonomy, per
// this codebase's collaborator-realization contract: 429 -> RateLimited,
// 401/403 -> Auth, 5xx and network errors -> Transient, 400 -> Validation.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &model.Failure{Kind: model.FailureRateLimited, Err: err}
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return &model.Failure{Kind: model.FailureAuth, Err: err}
		case apiErr.HTTPStatusCode == http.StatusBadRequest:
			return &model.Failure{Kind: model.FailureValidation, Err: err}
		case apiErr.HTTPStatusCode >= 500:
			return &model.Failure{Kind: model.FailureTransient, Err: err}
		}
		return &model.Failure{Kind: model.FailureInternal, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &model.Failure{Kind: model.FailureTransient, Err: err}
	}
	return &model.Failure{Kind: model.FailureTransient, Err: err}
}

func (c *Client) Invoke(ctx context.Context, msgs []message.Message, opts model.Options) (model.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toWireMessages(msgs),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Tools:       toWireTools(opts.Tools),
	}
	if opts.ToolChoice != "" {
		req.ToolChoice = opts.ToolChoice
	}

	resp, err := c.inner.CreateChatCompletion(ctx, req)
	if err != nil {
		return model.Completion{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return model.Completion{}, &model.Failure{Kind: model.FailureInternal, Err: errors.New("openai: no choices in response")}
	}

	choice := resp.Choices[0]
	return model.Completion{
		Messages: []message.Message{fromWireMessage(choice.Message)},
		Usage: model.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Finish: fromWireFinish(choice.FinishReason),
	}, nil
}

func (c *Client) Stream(ctx context.Context, msgs []message.Message, opts model.Options) (<-chan model.Chunk, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toWireMessages(msgs),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Tools:       toWireTools(opts.Tools),
		Stream:      true,
	}
	if opts.ToolChoice != "" {
		req.ToolChoice = opts.ToolChoice
	}

	stream, err := c.inner.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, classify(err)
	}

	out := make(chan model.Chunk)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if err != nil {
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			chunk := model.Chunk{
				Delta: message.Message{
					Role:    message.RoleAssistant,
					Content: choice.Delta.Content,
				},
			}
			for _, tc := range choice.Delta.ToolCalls {
				chunk.Delta.ToolCalls = append(chunk.Delta.ToolCalls, message.ToolCall{
					CallID:    tc.ID,
					Name:      tc.Function.Name,
					Arguments: json.RawMessage(tc.Function.Arguments),
				})
			}
			if choice.FinishReason != "" {
				chunk.Finish = fromWireFinish(choice.FinishReason)
				chunk.Done = true
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Done {
				return
			}
		}
	}()
	return out, nil
}

var _ model.Model = (*Client)(nil)
