package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"agenthub/internal/domain/ports/adapter"
)

var _ adapter.Provider = (*AnthropicProvider)(nil)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicAPIVersion     = "2023-06-01"
)

// anthropicPricing is USD per 1M tokens.
var anthropicPricing = map[string]pricing{
	"claude-3-opus-20240229":   {input: 15, output: 75},
	"claude-3-sonnet-20240229": {input: 3, output: 15},
	"claude-3-haiku-20240307":  {input: 0.25, output: 1.25},
}

var anthropicModels = []string{
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
}

// AnthropicProvider executes canonical requests against the Messages API.
// Anthropic takes the system prompt as a dedicated top-level field rather
// than a message turn; the canonical interface absorbs that difference here.
type AnthropicProvider struct {
	apiKey string
	base   string
	client *http.Client
	log    *zerolog.Logger
}

func NewAnthropicProvider(cfg adapter.Config, log *zerolog.Logger) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, adapter.NewError(adapter.ErrInvalidAPIKey, "API key is required",
			map[string]any{"provider": string(adapter.ProviderAnthropic)})
	}
	base := cfg.BaseURL
	if base == "" {
		base = anthropicDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicProvider{
		apiKey: cfg.APIKey,
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
		log:    log,
	}, nil
}

func (a *AnthropicProvider) Type() adapter.ProviderType { return adapter.ProviderAnthropic }

func (a *AnthropicProvider) SupportedModels() []string { return anthropicModels }

func (a *AnthropicProvider) IsModelSupported(model string) bool {
	for _, m := range anthropicModels {
		if m == model {
			return true
		}
	}
	return false
}

type anthropicMessagesRequest struct {
	Model         string            `json:"model"`
	Messages      []adapter.Message `json:"messages"`
	System        string            `json:"system,omitempty"`
	Temperature   float64           `json:"temperature"`
	MaxTokens     int               `json:"max_tokens"`
	TopP          *float64          `json:"top_p,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
}

type anthropicMessagesResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *AnthropicProvider) Execute(ctx context.Context, req adapter.Request) (*adapter.Response, error) {
	if !a.IsModelSupported(req.Model) {
		return nil, adapter.NewError(adapter.ErrInvalidRequest,
			"model "+req.Model+" is not supported by Anthropic provider",
			map[string]any{"supportedModels": anthropicModels})
	}

	// Split out the system message; only user/assistant turns go on the wire.
	var system string
	turns := make([]adapter.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == adapter.RoleSystem {
			system = m.Content
			continue
		}
		turns = append(turns, m)
	}

	body := anthropicMessagesRequest{
		Model:         req.Model,
		Messages:      turns,
		System:        system,
		Temperature:   valueOr(req.Temperature, 0.7),
		MaxTokens:     valueOrInt(req.MaxTokens, 2000),
		TopP:          req.TopP,
		StopSequences: req.Stop,
	}

	b, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/messages", bytes.NewReader(b))
	if err != nil {
		return nil, adapter.NewError(adapter.ErrInvalidRequest, err.Error(), nil)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(adapter.ProviderAnthropic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(adapter.ProviderAnthropic, resp.StatusCode, readAPIError(resp.Body), false)
	}

	var payload anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, adapter.NewError(adapter.ErrServerError, "invalid response from Anthropic: "+err.Error(), nil)
	}
	if len(payload.Content) == 0 {
		return nil, adapter.NewError(adapter.ErrServerError, "invalid response from Anthropic",
			map[string]any{"id": payload.ID})
	}

	var text string
	for _, c := range payload.Content {
		if c.Type == "text" {
			text = c.Text
			break
		}
	}
	if text == "" {
		return nil, adapter.NewError(adapter.ErrServerError, "no text content in Anthropic response",
			map[string]any{"id": payload.ID})
	}

	usage := adapter.Usage{
		PromptTokens:     payload.Usage.InputTokens,
		CompletionTokens: payload.Usage.OutputTokens,
		TotalTokens:      payload.Usage.InputTokens + payload.Usage.OutputTokens,
	}
	usage.EstimatedCost = a.CalculateCost(usage, req.Model)

	return &adapter.Response{
		ID:           payload.ID,
		Content:      text,
		Model:        req.Model,
		Usage:        usage,
		FinishReason: adapter.NormalizeFinishReason(payload.StopReason),
		CreatedAt:    time.Now(),
	}, nil
}

func (a *AnthropicProvider) CalculateCost(usage adapter.Usage, model string) float64 {
	p, ok := anthropicPricing[model]
	if !ok {
		a.log.Warn().Str("provider", "anthropic").Str("model", model).Msg("no pricing info for model, cost set to 0")
		return 0
	}
	return float64(usage.PromptTokens)/1_000_000*p.input + float64(usage.CompletionTokens)/1_000_000*p.output
}
