package openai

import (
	"context"
	"errors"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"go.opentelemetry.io/otel/attribute"

	"github.com/avosel/visage-core/core/llms"
)

const defaultModel = "gpt-4o-mini"

var _ llms.Adapter = (*Client)(nil)

// Client adapts the OpenAI chat completions API to the llms.Stream contract.
type Client struct {
	client oai.Client
	model  string
}

type ClientOption func(*Client)

// WithModel overrides the default completion model.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.client = oai.NewClient(append(c.client.Options, option.WithBaseURL(url))...)
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		client: oai.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) PromptWithStream(_ context.Context, req llms.Request) llms.Stream {
	return &stream{client: c.client, model: c.model, req: req}
}

type stream struct {
	client oai.Client
	model  string
	req    llms.Request
}

func (s *stream) Chunks(ctx context.Context) func(func(llms.Chunk, error) bool) {
	return func(yield func(llms.Chunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()

		model := s.model
		if s.req.Model != "" {
			model = s.req.Model
		}
		span.SetAttributes(attribute.String("request.model", model))

		params := oai.ChatCompletionNewParams{
			Model:    model,
			Messages: toMessages(s.req.Messages),
		}
		if s.req.Temperature != nil {
			params.Temperature = param.NewOpt(*s.req.Temperature)
		}
		if s.req.MaxTokens > 0 {
			params.MaxCompletionTokens = param.NewOpt(int64(s.req.MaxTokens))
		}

		completion := s.client.Chat.Completions.NewStreaming(ctx, params)
		for completion.Next() {
			chunk := completion.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				if !yield(llms.Chunk{Content: choice.Delta.Content}, nil) {
					return
				}
			}
			if choice.FinishReason != "" {
				yield(llms.Chunk{Done: true}, nil)
				return
			}
		}
		if err := completion.Err(); err != nil {
			wrapped := classify(err)
			span.RecordError(wrapped)
			yield(llms.Chunk{}, wrapped)
			return
		}

		yield(llms.Chunk{Done: true}, nil)
	}
}

func toMessages(messages []llms.Message) []oai.ChatCompletionMessageParamUnion {
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, message := range messages {
		switch message.Role {
		case llms.RoleSystem:
			out = append(out, oai.SystemMessage(message.Content))
		case llms.RoleAssistant:
			out = append(out, oai.AssistantMessage(message.Content))
		default:
			out = append(out, oai.UserMessage(message.Content))
		}
	}
	return out
}

func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return &llms.AdapterError{
			Provider:   "openai",
			StatusCode: apiErr.StatusCode,
			Err:        fmt.Errorf("chat completion stream failed: %w", err),
		}
	}
	return &llms.AdapterError{
		Provider: "openai",
		Err:      fmt.Errorf("chat completion stream failed: %w", err),
	}
}
