// Package agent implements the orchestration loop that alternates
// model calls and tool executions within one chat turn.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/davenby/taskpilot/internal/llm"
	"github.com/davenby/taskpilot/internal/prompts"
	"github.com/davenby/taskpilot/internal/store"
	"github.com/davenby/taskpilot/internal/tools"
)

// DefaultMaxIterations caps model-call/tool-execution rounds per turn.
const DefaultMaxIterations = 5

// Outcome is the terminal state of one orchestrated turn.
type Outcome string

const (
	// OutcomeAnswered: the model produced a final answer.
	OutcomeAnswered Outcome = "answered"

	// OutcomeUpstreamUnavailable: the breaker rejected the call or the
	// provider failed. The reply is a canned apology.
	OutcomeUpstreamUnavailable Outcome = "upstream_unavailable"

	// OutcomeExhausted: the iteration cap was reached without a final
	// answer.
	OutcomeExhausted Outcome = "exhausted"
)

// ToolCallRecord captures one executed tool call for persistence and
// for the API response.
type ToolCallRecord struct {
	Tool   string         `json:"tool"`
	Input  map[string]any `json:"input"`
	Output string         `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	Status string         `json:"status"` // "success" or "failure"
}

// PendingMessage is a message produced during the turn, to be
// persisted by the caller in order.
type PendingMessage struct {
	Role      string
	Content   string
	ToolCalls string // JSON-encoded ToolCallRecord for tool messages
}

// Result is the terminal result of one turn. Token counts are summed
// across every model call the turn made.
type Result struct {
	Outcome      Outcome
	Reply        string
	ToolCalls    []ToolCallRecord
	Messages     []PendingMessage
	InputTokens  int
	OutputTokens int
}

// Loop is the per-process orchestrator. It holds no per-turn state;
// the only shared mutable state in the system is inside the breaker
// the client wraps.
type Loop struct {
	client        llm.Client
	model         string
	registry      *tools.Registry
	maxIterations int
	logger        *slog.Logger
}

// NewLoop creates an orchestrator. client must already be wrapped by
// the circuit breaker.
func NewLoop(client llm.Client, model string, registry *tools.Registry, maxIterations int, logger *slog.Logger) *Loop {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Loop{
		client:        client,
		model:         model,
		registry:      registry,
		maxIterations: maxIterations,
		logger:        logger.With("component", "agent"),
	}
}

// Model returns the model name the loop sends with every chat request.
func (l *Loop) Model() string {
	return l.model
}

// Run executes one chat turn. history is the bounded context from the
// history manager and already ends with the user's newest message.
// ownerID comes from the authenticated session; it is injected into
// every tool execution and never read from model output.
//
// Run always returns a usable Result; it has no error path. Provider
// failures and the iteration cap are folded into the Outcome, and tool
// errors are fed back to the model as tool messages rather than
// terminating the turn.
func (l *Loop) Run(ctx context.Context, ownerID string, history []llm.Message) *Result {
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: "system", Content: prompts.System})
	msgs = append(msgs, history...)

	result := &Result{}

	for iteration := 0; iteration < l.maxIterations; iteration++ {
		resp, err := l.client.Chat(ctx, l.model, msgs, l.registry.Schemas())
		if err != nil {
			l.logger.Warn("model call failed",
				"iteration", iteration,
				"error", err,
			)
			result.Outcome = OutcomeUpstreamUnavailable
			result.Reply = prompts.UpstreamUnavailable
			result.Messages = append(result.Messages, PendingMessage{
				Role:    store.RoleAssistant,
				Content: result.Reply,
			})
			return result
		}

		result.InputTokens += resp.InputTokens
		result.OutputTokens += resp.OutputTokens

		if len(resp.Message.ToolCalls) == 0 {
			reply := resp.Message.Content
			if reply == "" {
				reply = prompts.EmptyResponseFallback
			}
			result.Outcome = OutcomeAnswered
			result.Reply = reply
			result.Messages = append(result.Messages, PendingMessage{
				Role:    store.RoleAssistant,
				Content: reply,
			})
			l.logger.Info("turn answered",
				"iterations", iteration+1,
				"tool_calls", len(result.ToolCalls),
			)
			return result
		}

		// The model requested tool calls: echo its message into the
		// context, execute each call, and loop with the results.
		msgs = append(msgs, resp.Message)

		for _, call := range resp.Message.ToolCalls {
			record := l.executeTool(ctx, ownerID, call)
			result.ToolCalls = append(result.ToolCalls, record)

			content := record.Output
			if record.Status == "failure" {
				content = "Error: " + record.Error
			}

			recordJSON, err := json.Marshal(record)
			if err != nil {
				recordJSON = nil
			}

			msgs = append(msgs, llm.Message{Role: store.RoleTool, Content: content})
			result.Messages = append(result.Messages, PendingMessage{
				Role:      store.RoleTool,
				Content:   content,
				ToolCalls: string(recordJSON),
			})
		}
	}

	l.logger.Warn("iteration cap reached",
		"max_iterations", l.maxIterations,
		"tool_calls", len(result.ToolCalls),
	)
	result.Outcome = OutcomeExhausted
	result.Reply = prompts.OrchestrationExhausted
	result.Messages = append(result.Messages, PendingMessage{
		Role:    store.RoleAssistant,
		Content: result.Reply,
	})
	return result
}

// executeTool runs one requested tool call. Tool failures are captured
// in the record, not raised: the model sees the error text and can
// react to it on the next iteration.
func (l *Loop) executeTool(ctx context.Context, ownerID string, call llm.ToolCall) ToolCallRecord {
	record := ToolCallRecord{
		Tool:  call.Function.Name,
		Input: call.Function.Arguments,
	}

	output, err := l.registry.Execute(ctx, ownerID, call.Function.Name, call.Function.Arguments)
	if err != nil {
		record.Status = "failure"
		record.Error = err.Error()
		l.logger.Info("tool call failed",
			"tool", call.Function.Name,
			"error", err,
		)
		return record
	}

	record.Status = "success"
	record.Output = output
	l.logger.Info("tool call executed", "tool", call.Function.Name)
	return record
}
