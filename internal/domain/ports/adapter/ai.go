package adapter

import (
	"context"
	"fmt"
	"time"
)

type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderGoogle    ProviderType = "google"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is the canonical, provider-agnostic AI request. Treated as an
// immutable value by every provider.
type Request struct {
	Model            string
	Messages         []Message
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stop             []string
}

type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
)

// NormalizeFinishReason folds backend-specific finish reasons (e.g.
// Anthropic's "end_turn") into the canonical closed set.
func NormalizeFinishReason(raw string) FinishReason {
	switch FinishReason(raw) {
	case FinishStop, FinishLength, FinishContentFilter, FinishToolCalls:
		return FinishReason(raw)
	case "max_tokens":
		return FinishLength
	default:
		return FinishStop
	}
}

// Usage for a single AI call, including the provider-priced cost in USD.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	EstimatedCost    float64
}

type Response struct {
	ID           string
	Content      string
	Model        string
	Usage        Usage
	FinishReason FinishReason
	CreatedAt    time.Time
}

type ErrorCode string

const (
	ErrInvalidAPIKey     ErrorCode = "invalid_api_key"
	ErrRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	ErrInsufficientQuota ErrorCode = "insufficient_quota"
	ErrInvalidRequest    ErrorCode = "invalid_request"
	ErrServerError       ErrorCode = "server_error"
	ErrTimeout           ErrorCode = "timeout"
	ErrNetworkError      ErrorCode = "network_error"
	ErrUnknown           ErrorCode = "unknown"
)

// Error is the canonical classification of a backend failure.
// rate_limit_exceeded, server_error, timeout and network_error are
// retryable; every other code is terminal.
type Error struct {
	Code      ErrorCode
	Message   string
	Details   map[string]any
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("ai: %s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, msg string, details map[string]any) *Error {
	retryable := false
	switch code {
	case ErrRateLimitExceeded, ErrServerError, ErrTimeout, ErrNetworkError:
		retryable = true
	}
	return &Error{Code: code, Message: msg, Details: details, Retryable: retryable}
}

// ExecutionMetrics covers one logical call including all of its retries.
type ExecutionMetrics struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Model      string
	Provider   ProviderType
	Success    bool
	Err        *Error
	Usage      Usage
	RetryCount int
}

// Config binds a provider instance to its credential and HTTP behaviour.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Provider is the capability contract every AI backend satisfies.
// Execute performs exactly one outbound call; retry is an external
// policy layered on top.
type Provider interface {
	Type() ProviderType
	SupportedModels() []string
	IsModelSupported(model string) bool

	Execute(ctx context.Context, req Request) (*Response, error)

	// CalculateCost prices usage with the provider's per-token table.
	// An unknown model yields 0; it never fails the call.
	CalculateCost(usage Usage, model string) float64
}
