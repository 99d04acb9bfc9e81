package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agenthub/internal/domain/ports/adapter"
)

// scriptedProvider returns the queued outcomes in order, then repeats the last.
type scriptedProvider struct {
	mu       sync.Mutex
	outcomes []error
	calls    int
	resp     *adapter.Response
}

func (s *scriptedProvider) Type() adapter.ProviderType     { return adapter.ProviderOpenAI }
func (s *scriptedProvider) SupportedModels() []string      { return []string{"gpt-4"} }
func (s *scriptedProvider) IsModelSupported(m string) bool { return true }

func (s *scriptedProvider) Execute(ctx context.Context, req adapter.Request) (*adapter.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	if err := s.outcomes[i]; err != nil {
		return nil, err
	}
	if s.resp != nil {
		return s.resp, nil
	}
	return &adapter.Response{Content: "ok", Usage: adapter.Usage{TotalTokens: 5}}, nil
}

func (s *scriptedProvider) CalculateCost(u adapter.Usage, m string) float64 { return 0 }

func (s *scriptedProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestBackoffSchedule(t *testing.T) {
	t.Parallel()
	p := RetryPolicy{}.withDefaults()
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestExecuteSuccessNoRetries(t *testing.T) {
	t.Parallel()
	prov := &scriptedProvider{outcomes: []error{nil}}
	e := NewExecutor(prov, fastPolicy(3), testLogger())

	resp, m, err := e.ExecuteWithMetrics(context.Background(), adapter.Request{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("resp = %+v", resp)
	}
	if !m.Success || m.RetryCount != 0 {
		t.Fatalf("metrics = %+v", m)
	}
	if m.Usage.TotalTokens != 5 {
		t.Fatalf("usage = %+v", m.Usage)
	}
}

func TestRetryableFailureThenSuccess(t *testing.T) {
	t.Parallel()
	prov := &scriptedProvider{outcomes: []error{
		adapter.NewError(adapter.ErrRateLimitExceeded, "slow down", nil),
		adapter.NewError(adapter.ErrServerError, "oops", nil),
		nil,
	}}
	e := NewExecutor(prov, fastPolicy(3), testLogger())

	_, m, err := e.ExecuteWithMetrics(context.Background(), adapter.Request{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if prov.callCount() != 3 {
		t.Fatalf("calls = %d, want 3", prov.callCount())
	}
	// two waits were actually performed
	if m.RetryCount != 2 || !m.Success {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestTerminalFailureNoRetry(t *testing.T) {
	t.Parallel()
	prov := &scriptedProvider{outcomes: []error{
		adapter.NewError(adapter.ErrInvalidAPIKey, "bad key", nil),
	}}
	e := NewExecutor(prov, fastPolicy(3), testLogger())

	_, m, err := e.ExecuteWithMetrics(context.Background(), adapter.Request{Model: "gpt-4"})
	if err == nil {
		t.Fatal("expected error")
	}
	if prov.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", prov.callCount())
	}
	// no retry happened, so the count stays zero
	if m.RetryCount != 0 || m.Success {
		t.Fatalf("metrics = %+v", m)
	}
	if m.Err == nil || m.Err.Code != adapter.ErrInvalidAPIKey {
		t.Fatalf("metrics err = %+v", m.Err)
	}
	if m.Usage.TotalTokens != 0 {
		t.Fatalf("usage = %+v, want zero", m.Usage)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	t.Parallel()
	prov := &scriptedProvider{outcomes: []error{
		adapter.NewError(adapter.ErrServerError, "down", nil),
	}}
	e := NewExecutor(prov, fastPolicy(2), testLogger())

	_, m, err := e.ExecuteWithMetrics(context.Background(), adapter.Request{Model: "gpt-4"})
	var aiErr *adapter.Error
	if !errors.As(err, &aiErr) || aiErr.Code != adapter.ErrServerError {
		t.Fatalf("err = %v", err)
	}
	// initial call plus two retries
	if prov.callCount() != 3 {
		t.Fatalf("calls = %d, want 3", prov.callCount())
	}
	if m.RetryCount != 2 {
		t.Fatalf("retryCount = %d, want 2", m.RetryCount)
	}
}

func TestCancelDuringBackoff(t *testing.T) {
	t.Parallel()
	prov := &scriptedProvider{outcomes: []error{
		adapter.NewError(adapter.ErrServerError, "down", nil),
	}}
	e := NewExecutor(prov, RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, m, err := e.ExecuteWithMetrics(ctx, adapter.Request{Model: "gpt-4"})
	if time.Since(start) > time.Second {
		t.Fatal("backoff ignored cancellation")
	}
	var aiErr *adapter.Error
	if !errors.As(err, &aiErr) || aiErr.Code != adapter.ErrTimeout {
		t.Fatalf("err = %v", err)
	}
	if prov.callCount() != 1 {
		t.Fatalf("calls = %d, want 1", prov.callCount())
	}
	if m.Success {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestForeignErrorIsTerminal(t *testing.T) {
	t.Parallel()
	prov := &scriptedProvider{outcomes: []error{errors.New("something odd")}}
	e := NewExecutor(prov, fastPolicy(3), testLogger())

	_, m, err := e.ExecuteWithMetrics(context.Background(), adapter.Request{Model: "gpt-4"})
	var aiErr *adapter.Error
	if !errors.As(err, &aiErr) || aiErr.Code != adapter.ErrUnknown {
		t.Fatalf("err = %v", err)
	}
	if prov.callCount() != 1 || m.RetryCount != 0 {
		t.Fatalf("calls = %d, metrics = %+v", prov.callCount(), m)
	}
}
