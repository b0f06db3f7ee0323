package metrics

import (
	"context"
	"time"

	"github.com/davenby/taskpilot/internal/llm"
)

// InstrumentedClient decorates a model client with call latency and
// breaker state metrics. It wraps the breaker so every chat attempt is
// observed, including fast rejections while the circuit is open.
type InstrumentedClient struct {
	breaker *llm.Breaker
}

// NewInstrumentedClient wraps a breaker-guarded client.
func NewInstrumentedClient(breaker *llm.Breaker) *InstrumentedClient {
	return &InstrumentedClient{breaker: breaker}
}

// Chat forwards to the breaker and records duration and state.
func (c *InstrumentedClient) Chat(ctx context.Context, model string, messages []llm.Message, tools []map[string]any) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := c.breaker.Chat(ctx, model, messages, tools)
	ModelCall(time.Since(start))
	BreakerState(int(c.breaker.State()))
	return resp, err
}

// Ping forwards to the breaker.
func (c *InstrumentedClient) Ping(ctx context.Context) error {
	return c.breaker.Ping(ctx)
}
