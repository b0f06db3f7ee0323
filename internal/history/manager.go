// Package history produces a bounded conversation context for the
// model from persisted messages.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/davenby/taskpilot/internal/llm"
	"github.com/davenby/taskpilot/internal/prompts"
	"github.com/davenby/taskpilot/internal/store"
)

// Defaults for the context budget policy.
const (
	DefaultMaxContextTokens = 8000
	DefaultKeepRecent       = 10
)

// Summarizer condenses older messages into a short note.
type Summarizer interface {
	Summarize(ctx context.Context, messages []*store.Message) (string, error)
}

// Manager loads a conversation's messages and applies the token budget
// policy: verbatim when it fits, summary-plus-recent when it doesn't.
type Manager struct {
	store      *store.Store
	summarizer Summarizer
	fallback   Summarizer
	maxTokens  int
	keepRecent int
	logger     *slog.Logger
}

// NewManager creates a history manager. summarizer is typically an
// LLMSummarizer routed through the circuit breaker; when it fails (for
// example because the circuit is open) the deterministic extractive
// fallback is used instead.
func NewManager(st *store.Store, summarizer Summarizer, maxTokens, keepRecent int, logger *slog.Logger) *Manager {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	if keepRecent <= 0 {
		keepRecent = DefaultKeepRecent
	}
	return &Manager{
		store:      st,
		summarizer: summarizer,
		fallback:   &ExtractiveSummarizer{},
		maxTokens:  maxTokens,
		keepRecent: keepRecent,
		logger:     logger.With("component", "history"),
	}
}

// LoadContext returns the conversation's context entries, oldest first,
// within the token budget. Guarantees: the newest message is always
// present, the result never exceeds the budget (unless the newest
// message alone does), and the result is never empty for a non-empty
// conversation.
func (m *Manager) LoadContext(ctx context.Context, conversationID, ownerID string) ([]llm.Message, error) {
	if _, err := m.store.GetConversation(ownerID, conversationID); err != nil {
		return nil, err
	}

	messages, err := m.store.GetMessages(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	if totalTokens(messages) <= m.maxTokens {
		return toContext(messages), nil
	}

	// Over budget: keep the most recent keepRecent verbatim and
	// condense everything older into a single summary entry.
	split := len(messages) - m.keepRecent
	if split < 1 {
		split = 1
	}
	older, recent := messages[:split], messages[split:]

	summary := m.summarize(ctx, older)

	entries := make([]*store.Message, 0, len(recent)+1)
	entries = append(entries, &store.Message{
		Role:    store.RoleAssistant,
		Content: summary,
	})
	entries = append(entries, recent...)

	// Pathological case: enormous verbatim messages. Drop the oldest
	// verbatim entries one at a time, but never the newest message.
	for totalTokens(entries) > m.maxTokens && len(entries) > 2 {
		entries = append(entries[:1], entries[2:]...)
	}

	// A rambling summarizer can inflate the summary past the budget on
	// its own. Cut it down to whatever room the verbatim entries leave,
	// and drop it outright when they leave none.
	if over := totalTokens(entries) - m.maxTokens; over > 0 {
		if keep := estimateTokens(entries[0].Content) - over; keep > 0 {
			entries[0].Content = entries[0].Content[:keep*4]
		} else {
			entries = entries[1:]
		}
	}

	m.logger.Debug("context compacted",
		"conversation", conversationID,
		"total_messages", len(messages),
		"kept_verbatim", len(entries)-1,
		"estimated_tokens", totalTokens(entries),
	)

	return toContext(entries), nil
}

// summarize condenses older messages, falling back to the extractive
// summarizer when generation is unavailable.
func (m *Manager) summarize(ctx context.Context, older []*store.Message) string {
	if m.summarizer != nil {
		if s, err := m.summarizer.Summarize(ctx, older); err == nil {
			return formatSummary(len(older), s)
		} else {
			m.logger.Warn("summarization failed, using extractive fallback", "error", err)
		}
	}

	s, _ := m.fallback.Summarize(ctx, older)
	return formatSummary(len(older), s)
}

func formatSummary(count int, summary string) string {
	return fmt.Sprintf("[Summary of %d earlier messages]\n%s", count, summary)
}

// estimateTokens is a rough token count estimate, monotonic in content
// length. Rule of thumb: ~4 characters per token for English.
func estimateTokens(text string) int {
	return len(text) / 4
}

func totalTokens(messages []*store.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m.Content) + estimateTokens(m.Role)
	}
	return total
}

func toContext(messages []*store.Message) []llm.Message {
	out := make([]llm.Message, len(messages))
	for i, m := range messages {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// LLMSummarizer condenses messages with a model call. The client is
// expected to be the breaker-wrapped provider client, so an open
// circuit fails this summarizer and the manager falls back.
type LLMSummarizer struct {
	client llm.Client
	model  string
}

// NewLLMSummarizer creates a model-backed summarizer.
func NewLLMSummarizer(client llm.Client, model string) *LLMSummarizer {
	return &LLMSummarizer{client: client, model: model}
}

// Summarize generates a summary of the messages using the model.
func (s *LLMSummarizer) Summarize(ctx context.Context, messages []*store.Message) (string, error) {
	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s: %s\n\n", m.Role, m.Content)
	}

	resp, err := s.client.Chat(ctx, s.model, []llm.Message{
		{Role: store.RoleUser, Content: prompts.SummaryPrompt(sb.String())},
	}, nil)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", fmt.Errorf("empty summary from model")
	}
	return resp.Message.Content, nil
}

// ExtractiveSummarizer creates a basic summary without a model call.
// Deterministic, used when generation is unavailable.
type ExtractiveSummarizer struct{}

// Summarize lists short user messages as topics and counts tool
// activity.
func (s *ExtractiveSummarizer) Summarize(_ context.Context, messages []*store.Message) (string, error) {
	var topics []string
	toolCalls := 0

	for _, m := range messages {
		if m.Role == store.RoleUser && len(m.Content) < 100 {
			topics = append(topics, "- "+m.Content)
		}
		if m.Role == store.RoleTool {
			toolCalls++
		}
	}

	var sb strings.Builder
	sb.WriteString("Topics discussed:\n")
	if len(topics) > 0 {
		if len(topics) > 5 {
			topics = topics[:5]
		}
		for _, t := range topics {
			sb.WriteString(t + "\n")
		}
	} else {
		sb.WriteString("- General conversation\n")
	}

	if toolCalls > 0 {
		fmt.Fprintf(&sb, "\nActions taken:\n- %d tool calls\n", toolCalls)
	}

	return sb.String(), nil
}
