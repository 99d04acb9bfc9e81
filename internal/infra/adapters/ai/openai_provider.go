package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"agenthub/internal/domain/ports/adapter"
)

// Compile-time assurance this provider satisfies the port
var _ adapter.Provider = (*OpenAIProvider)(nil)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// openAIPricing is USD per 1K tokens.
var openAIPricing = map[string]pricing{
	"gpt-4":               {input: 0.03, output: 0.06},
	"gpt-4-turbo-preview": {input: 0.01, output: 0.03},
	"gpt-3.5-turbo":       {input: 0.0005, output: 0.0015},
}

var openAIModels = []string{"gpt-4", "gpt-4-turbo-preview", "gpt-3.5-turbo"}

// OpenAIProvider executes canonical requests against the Chat Completions API.
type OpenAIProvider struct {
	apiKey string
	base   string
	client *http.Client
	log    *zerolog.Logger
}

func NewOpenAIProvider(cfg adapter.Config, log *zerolog.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, adapter.NewError(adapter.ErrInvalidAPIKey, "API key is required",
			map[string]any{"provider": string(adapter.ProviderOpenAI)})
	}
	base := cfg.BaseURL
	if base == "" {
		base = openAIDefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		apiKey: cfg.APIKey,
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
		log:    log,
	}, nil
}

func (o *OpenAIProvider) Type() adapter.ProviderType { return adapter.ProviderOpenAI }

func (o *OpenAIProvider) SupportedModels() []string { return openAIModels }

func (o *OpenAIProvider) IsModelSupported(model string) bool {
	for _, m := range openAIModels {
		if m == model {
			return true
		}
	}
	return false
}

type openAIChatRequest struct {
	Model            string            `json:"model"`
	Messages         []adapter.Message `json:"messages"`
	Temperature      float64           `json:"temperature"`
	MaxTokens        int               `json:"max_tokens"`
	TopP             *float64          `json:"top_p,omitempty"`
	FrequencyPenalty *float64          `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64          `json:"presence_penalty,omitempty"`
	Stop             []string          `json:"stop,omitempty"`
	Stream           bool              `json:"stream"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (o *OpenAIProvider) Execute(ctx context.Context, req adapter.Request) (*adapter.Response, error) {
	if !o.IsModelSupported(req.Model) {
		return nil, adapter.NewError(adapter.ErrInvalidRequest,
			"model "+req.Model+" is not supported by OpenAI provider",
			map[string]any{"supportedModels": openAIModels})
	}

	body := openAIChatRequest{
		Model:            req.Model,
		Messages:         req.Messages,
		Temperature:      valueOr(req.Temperature, 0.7),
		MaxTokens:        valueOrInt(req.MaxTokens, 2000),
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             req.Stop,
	}

	b, _ := json.Marshal(body)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.base+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, adapter.NewError(adapter.ErrInvalidRequest, err.Error(), nil)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(adapter.ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(adapter.ProviderOpenAI, resp.StatusCode, readAPIError(resp.Body), true)
	}

	var payload openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, adapter.NewError(adapter.ErrServerError, "invalid response from OpenAI: "+err.Error(), nil)
	}
	if len(payload.Choices) == 0 || payload.Usage == nil || payload.Choices[0].Message.Content == "" {
		return nil, adapter.NewError(adapter.ErrServerError, "invalid response from OpenAI",
			map[string]any{"id": payload.ID})
	}

	usage := adapter.Usage{
		PromptTokens:     payload.Usage.PromptTokens,
		CompletionTokens: payload.Usage.CompletionTokens,
		TotalTokens:      payload.Usage.TotalTokens,
	}
	usage.EstimatedCost = o.CalculateCost(usage, req.Model)

	return &adapter.Response{
		ID:           payload.ID,
		Content:      payload.Choices[0].Message.Content,
		Model:        req.Model,
		Usage:        usage,
		FinishReason: adapter.NormalizeFinishReason(payload.Choices[0].FinishReason),
		CreatedAt:    time.Unix(payload.Created, 0),
	}, nil
}

func (o *OpenAIProvider) CalculateCost(usage adapter.Usage, model string) float64 {
	p, ok := openAIPricing[model]
	if !ok {
		o.log.Warn().Str("provider", "openai").Str("model", model).Msg("no pricing info for model, cost set to 0")
		return 0
	}
	return float64(usage.PromptTokens)/1000*p.input + float64(usage.CompletionTokens)/1000*p.output
}

// readAPIError pulls the human message out of an {"error":{"message":...}}
// body; falls back to the raw body.
func readAPIError(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

func valueOr(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}

func valueOrInt(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}
