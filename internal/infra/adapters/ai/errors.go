package ai

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"agenthub/internal/domain/ports/adapter"
)

// classifyStatus maps an HTTP status from a provider backend onto the
// canonical error taxonomy. Only providers that bill through HTTP 402
// (OpenAI) set quotaAware; others let 402 fall through to unknown.
func classifyStatus(provider adapter.ProviderType, status int, msg string, quotaAware bool) *adapter.Error {
	details := map[string]any{"provider": string(provider), "status": status}
	switch {
	case status == 401:
		return adapter.NewError(adapter.ErrInvalidAPIKey, "invalid "+string(provider)+" API key", details)
	case status == 429:
		return adapter.NewError(adapter.ErrRateLimitExceeded, string(provider)+" rate limit exceeded", details)
	case status == 402 && quotaAware:
		return adapter.NewError(adapter.ErrInsufficientQuota, string(provider)+" quota exceeded", details)
	case status == 400:
		return adapter.NewError(adapter.ErrInvalidRequest, "invalid request to "+string(provider)+": "+msg, details)
	case status >= 500:
		return adapter.NewError(adapter.ErrServerError, string(provider)+" server error", details)
	default:
		if msg == "" {
			msg = "unexpected response from " + string(provider)
		}
		return adapter.NewError(adapter.ErrUnknown, msg, details)
	}
}

// classifyTransport maps a failed round-trip (no HTTP status available)
// onto timeout / network_error / unknown.
func classifyTransport(provider adapter.ProviderType, err error) *adapter.Error {
	details := map[string]any{"provider": string(provider), "cause": err.Error()}

	if errors.Is(err, context.DeadlineExceeded) {
		return adapter.NewError(adapter.ErrTimeout, string(provider)+" request timeout", details)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return adapter.NewError(adapter.ErrTimeout, string(provider)+" request timeout", details)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || errors.Is(err, syscall.ECONNREFUSED) {
		return adapter.NewError(adapter.ErrNetworkError, "network error connecting to "+string(provider), details)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return adapter.NewError(adapter.ErrNetworkError, "network error connecting to "+string(provider), details)
	}
	if strings.Contains(err.Error(), "connection refused") {
		return adapter.NewError(adapter.ErrNetworkError, "network error connecting to "+string(provider), details)
	}

	return adapter.NewError(adapter.ErrUnknown, err.Error(), details)
}

// asError guarantees a canonical *adapter.Error for any failure coming out
// of a provider, wrapping foreign errors as unknown (terminal).
func asError(err error) *adapter.Error {
	var aiErr *adapter.Error
	if errors.As(err, &aiErr) {
		return aiErr
	}
	return adapter.NewError(adapter.ErrUnknown, err.Error(), nil)
}

// pricing is USD per input/output token unit; the divisor is provider-specific.
type pricing struct {
	input  float64
	output float64
}
