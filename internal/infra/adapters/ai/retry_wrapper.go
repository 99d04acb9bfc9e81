package ai

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"agenthub/internal/domain/ports/adapter"
	"agenthub/internal/infra/metrics"
)

// RetryPolicy bounds the retry loop around a single logical provider call.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	return p
}

// Backoff returns the wait before retry n (1-based): min(base * 2^n, max).
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := p.BaseDelay << uint(n)
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// Executor wraps a provider with bounded exponential-backoff retry and
// produces execution metrics covering the whole attempt sequence. This is
// the only entry point the task processor may use; Execute on the raw
// provider never retries.
type Executor struct {
	provider adapter.Provider
	policy   RetryPolicy
	log      *zerolog.Logger
}

func NewExecutor(p adapter.Provider, policy RetryPolicy, log *zerolog.Logger) *Executor {
	return &Executor{provider: p, policy: policy.withDefaults(), log: log}
}

func (e *Executor) Provider() adapter.Provider { return e.provider }

// ExecuteWithMetrics runs the request, retrying retryable failures until the
// budget is spent. The backoff wait suspends only this execution; concurrent
// executions keep running.
func (e *Executor) ExecuteWithMetrics(ctx context.Context, req adapter.Request) (*adapter.Response, adapter.ExecutionMetrics, error) {
	start := time.Now()
	retries := 0

	for {
		resp, err := e.provider.Execute(ctx, req)
		if err == nil {
			m := e.metricsFor(req, start, retries)
			m.Success = true
			m.Usage = resp.Usage
			e.observe(m)
			return resp, m, nil
		}

		aiErr := asError(err)
		if aiErr.Retryable && retries < e.policy.MaxRetries {
			retries++
			delay := e.policy.Backoff(retries)
			e.log.Debug().
				Str("provider", string(e.provider.Type())).
				Str("model", req.Model).
				Str("code", string(aiErr.Code)).
				Int("retry", retries).
				Dur("backoff", delay).
				Msg("retrying AI call")
			if sleepErr := sleep(ctx, delay); sleepErr == nil {
				continue
			}
			aiErr = adapter.NewError(adapter.ErrTimeout, "execution cancelled during backoff: "+ctx.Err().Error(), nil)
		}

		m := e.metricsFor(req, start, retries)
		m.Err = aiErr
		e.observe(m)
		return nil, m, aiErr
	}
}

func (e *Executor) metricsFor(req adapter.Request, start time.Time, retries int) adapter.ExecutionMetrics {
	end := time.Now()
	return adapter.ExecutionMetrics{
		StartTime:  start,
		EndTime:    end,
		Duration:   end.Sub(start),
		Model:      req.Model,
		Provider:   e.provider.Type(),
		RetryCount: retries,
	}
}

func (e *Executor) observe(m adapter.ExecutionMetrics) {
	metrics.ObserveAICall(
		string(m.Provider), m.Model,
		m.Usage.PromptTokens, m.Usage.CompletionTokens, m.Usage.TotalTokens,
		m.Usage.EstimatedCost,
		int(m.Duration/time.Millisecond),
		m.RetryCount,
		m.Success,
	)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
