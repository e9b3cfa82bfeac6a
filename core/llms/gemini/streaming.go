package gemini

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"

	"github.com/avosel/visage-core/core/llms"
)

const defaultModel = "gemini-2.0-flash"

var _ llms.Adapter = (*Client)(nil)

// Client adapts the Gemini API to the llms.Stream contract.
type Client struct {
	client *genai.Client
	model  string
}

type ClientOption func(*Client)

// WithModel overrides the default completion model.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	c := &Client{client: client, model: defaultModel}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) PromptWithStream(_ context.Context, req llms.Request) llms.Stream {
	return &stream{client: c.client, model: c.model, req: req}
}

type stream struct {
	client *genai.Client
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

		config, contents := s.convRequest()
		for chunk, err := range s.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				wrapped := classify(err)
				span.RecordError(wrapped)
				yield(llms.Chunk{}, wrapped)
				return
			}
			if text := chunk.Text(); text != "" {
				if !yield(llms.Chunk{Content: text}, nil) {
					return
				}
			}
		}

		yield(llms.Chunk{Done: true}, nil)
	}
}

func (s *stream) convRequest() (*genai.GenerateContentConfig, []*genai.Content) {
	config := &genai.GenerateContentConfig{}
	if s.req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*s.req.Temperature))
	}
	if s.req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(s.req.MaxTokens)
	}

	var contents []*genai.Content
	for _, message := range s.req.Messages {
		switch message.Role {
		case llms.RoleSystem:
			config.SystemInstruction = genai.NewContentFromText(message.Content, genai.RoleUser)
		case llms.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(message.Content, genai.RoleUser))
		}
	}
	return config, contents
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llms.AdapterError{
			Provider:   "gemini",
			StatusCode: apiErr.Code,
			Err:        fmt.Errorf("content stream failed: %w", err),
		}
	}
	return &llms.AdapterError{
		Provider: "gemini",
		Err:      fmt.Errorf("content stream failed: %w", err),
	}
}
