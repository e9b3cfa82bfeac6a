package llms

import "context"

// Role describes who a conversation message is from.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single message in the conversation passed to an adapter.
type Message struct {
	Role    Role
	Content string
}

// Request is one normalized completion request. Messages are ordered, most
// recent last.
type Request struct {
	Messages []Message

	// Model overrides the adapter's default model when non-empty.
	Model string
	// Temperature is applied when non-nil.
	Temperature *float64
	// MaxTokens is applied when positive.
	MaxTokens int
}

// Adapter normalizes heterogeneous LLM backends into one streaming interface.
type Adapter interface {
	PromptWithStream(ctx context.Context, req Request) Stream
}
