package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

// scriptedClient returns canned outcomes in sequence. A true entry
// means the call succeeds.
type scriptedClient struct {
	outcomes []bool
	calls    int
}

var errProvider = errors.New("provider exploded")

func (c *scriptedClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	i := c.calls
	c.calls++
	ok := false
	if i < len(c.outcomes) {
		ok = c.outcomes[i]
	}
	if !ok {
		return nil, errProvider
	}
	return &ChatResponse{Model: model, Message: Message{Role: "assistant", Content: "ok"}}, nil
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func repeat(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	client := &scriptedClient{outcomes: repeat(false, 10)}
	b := NewBreaker(client, 5, time.Minute, discardLogger())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := b.Chat(ctx, "m", nil, nil); !errors.Is(err, errProvider) {
			t.Fatalf("call %d error = %v, want provider error", i, err)
		}
	}

	if got := b.State(); got != StateOpen {
		t.Fatalf("state after threshold = %v, want OPEN", got)
	}

	// Sixth call fails fast without contacting the provider.
	before := client.calls
	if _, err := b.Chat(ctx, "m", nil, nil); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	if client.calls != before {
		t.Error("open circuit still contacted the provider")
	}
}

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	// Failures interleaved with a success never accumulate to the
	// threshold: the counter tracks consecutive failures only.
	client := &scriptedClient{outcomes: []bool{false, false, false, false, true, false}}
	b := NewBreaker(client, 5, time.Minute, discardLogger())

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		b.Chat(ctx, "m", nil, nil)
	}

	if got := b.State(); got != StateClosed {
		t.Errorf("state = %v, want CLOSED", got)
	}
}

func TestBreaker_RecoveryTimeout(t *testing.T) {
	client := &scriptedClient{outcomes: repeat(false, 10)}
	b := NewBreaker(client, 5, 60*time.Second, discardLogger())

	base := time.Now()
	clock := base
	b.now = func() time.Time { return clock }

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		b.Chat(ctx, "m", nil, nil)
	}
	if b.State() != StateOpen {
		t.Fatal("breaker not open")
	}

	// 1ms before the recovery timeout: still fails fast.
	clock = base.Add(60*time.Second - time.Millisecond)
	if _, err := b.Chat(ctx, "m", nil, nil); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("pre-timeout error = %v, want ErrCircuitOpen", err)
	}

	// After the timeout: exactly one trial is attempted.
	clock = base.Add(61 * time.Second)
	calls := client.calls
	b.Chat(ctx, "m", nil, nil)
	if client.calls != calls+1 {
		t.Errorf("provider calls = %d, want one trial", client.calls-calls)
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	client := &scriptedClient{outcomes: []bool{false, false, true, true}}
	b := NewBreaker(client, 2, 10*time.Second, discardLogger())

	base := time.Now()
	clock := base
	b.now = func() time.Time { return clock }

	ctx := context.Background()
	b.Chat(ctx, "m", nil, nil)
	b.Chat(ctx, "m", nil, nil)
	if b.State() != StateOpen {
		t.Fatal("breaker not open")
	}

	clock = base.Add(11 * time.Second)
	if _, err := b.Chat(ctx, "m", nil, nil); err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("state after successful trial = %v, want CLOSED", got)
	}

	// Failure counter was reset: a single new failure must not reopen.
	client.outcomes = append(client.outcomes, false)
	b.Chat(ctx, "m", nil, nil)
	if got := b.State(); got == StateOpen {
		t.Error("one failure after recovery reopened the circuit")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	client := &scriptedClient{outcomes: repeat(false, 10)}
	b := NewBreaker(client, 2, 10*time.Second, discardLogger())

	base := time.Now()
	clock := base
	b.now = func() time.Time { return clock }

	ctx := context.Background()
	b.Chat(ctx, "m", nil, nil)
	b.Chat(ctx, "m", nil, nil)

	clock = base.Add(11 * time.Second)
	b.Chat(ctx, "m", nil, nil) // failed trial
	if got := b.State(); got != StateOpen {
		t.Fatalf("state after failed trial = %v, want OPEN", got)
	}

	// The recovery timer restarted at the failed trial: a call 5s
	// later is still rejected.
	clock = base.Add(16 * time.Second)
	if _, err := b.Chat(ctx, "m", nil, nil); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen (timer restarted)", err)
	}
}

func TestBreaker_InstancesAreIndependent(t *testing.T) {
	failing := &scriptedClient{outcomes: repeat(false, 10)}
	healthy := &scriptedClient{outcomes: repeat(true, 10)}

	b1 := NewBreaker(failing, 2, time.Minute, discardLogger())
	b2 := NewBreaker(healthy, 2, time.Minute, discardLogger())

	ctx := context.Background()
	b1.Chat(ctx, "m", nil, nil)
	b1.Chat(ctx, "m", nil, nil)

	if b1.State() != StateOpen {
		t.Error("b1 should be open")
	}
	if b2.State() != StateClosed {
		t.Error("b2 state leaked from b1")
	}
}
