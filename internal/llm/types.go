// Package llm provides the model provider client and the circuit
// breaker that guards calls to it.
package llm

import "context"

// Message represents a chat message for the model.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// ChatResponse is the unified response from the model provider.
type ChatResponse struct {
	Model   string
	Message Message

	// Token usage, when the provider reports it.
	InputTokens  int
	OutputTokens int
}

// Client is the interface the orchestrator and history manager speak
// to the model provider through. The circuit breaker implements it as
// a wrapper, so callers cannot bypass the breaker by accident.
type Client interface {
	// Chat sends a chat completion request with optional tool schemas
	// and returns the response.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
