package ai

import (
	"context"

	"agenthub/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.Provider = (*limitedProvider)(nil)

type limitedProvider struct {
	inner adapter.Provider
	sem   chan struct{}
}

// NewLimitedProvider caps concurrent Execute calls across all workers
// sharing this instance.
func NewLimitedProvider(inner adapter.Provider, maxConcurrent int) adapter.Provider {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedProvider{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedProvider) Type() adapter.ProviderType { return l.inner.Type() }

func (l *limitedProvider) SupportedModels() []string { return l.inner.SupportedModels() }

func (l *limitedProvider) IsModelSupported(model string) bool {
	return l.inner.IsModelSupported(model)
}

func (l *limitedProvider) Execute(ctx context.Context, req adapter.Request) (*adapter.Response, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, adapter.NewError(adapter.ErrTimeout, "cancelled while waiting for AI slot", nil)
	}
	defer func() { <-l.sem }()
	return l.inner.Execute(ctx, req)
}

func (l *limitedProvider) CalculateCost(usage adapter.Usage, model string) float64 {
	return l.inner.CalculateCost(usage, model)
}
