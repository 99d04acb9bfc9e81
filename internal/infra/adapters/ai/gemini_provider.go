package ai

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"agenthub/internal/domain/ports/adapter"
)

var _ adapter.Provider = (*GeminiProvider)(nil)

// geminiPricing is USD per 1M tokens.
var geminiPricing = map[string]pricing{
	"gemini-pro":        {input: 0.5, output: 1.5},
	"gemini-pro-vision": {input: 0.5, output: 1.5},
}

var geminiModels = []string{"gemini-pro", "gemini-pro-vision"}

// GeminiProvider executes canonical requests through the official genai SDK.
type GeminiProvider struct {
	client *genai.Client
	log    *zerolog.Logger
}

func NewGeminiProvider(cfg adapter.Config, log *zerolog.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, adapter.NewError(adapter.ErrInvalidAPIKey, "API key is required",
			map[string]any{"provider": string(adapter.ProviderGoogle)})
	}
	c, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, adapter.NewError(adapter.ErrUnknown, "gemini client: "+err.Error(), nil)
	}
	return &GeminiProvider{client: c, log: log}, nil
}

func (g *GeminiProvider) Type() adapter.ProviderType { return adapter.ProviderGoogle }

func (g *GeminiProvider) SupportedModels() []string { return geminiModels }

func (g *GeminiProvider) IsModelSupported(model string) bool {
	for _, m := range geminiModels {
		if m == model {
			return true
		}
	}
	return false
}

func (g *GeminiProvider) Execute(ctx context.Context, req adapter.Request) (*adapter.Response, error) {
	if !g.IsModelSupported(req.Model) {
		return nil, adapter.NewError(adapter.ErrInvalidRequest,
			"model "+req.Model+" is not supported by Gemini provider",
			map[string]any{"supportedModels": geminiModels})
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(valueOr(req.Temperature, 0.7))),
		MaxOutputTokens: int32(valueOrInt(req.MaxTokens, 2000)),
		StopSequences:   req.Stop,
	}
	if req.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*req.TopP))
	}

	// Gemini has no "system" role in history; the system prompt rides on
	// the generation config instead.
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case adapter.RoleSystem:
			cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
		case adapter.RoleAssistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(contents) == 0 {
		return nil, adapter.NewError(adapter.ErrInvalidRequest, "no user messages in request", nil)
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, g.classify(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, adapter.NewError(adapter.ErrServerError, "invalid response from Gemini", nil)
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return nil, adapter.NewError(adapter.ErrServerError, "no text content in Gemini response", nil)
	}

	usage := adapter.Usage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	usage.EstimatedCost = g.CalculateCost(usage, req.Model)

	return &adapter.Response{
		ID:           uuid.NewString(),
		Content:      text,
		Model:        req.Model,
		Usage:        usage,
		FinishReason: geminiFinishReason(resp.Candidates[0].FinishReason),
		CreatedAt:    time.Now(),
	}, nil
}

func (g *GeminiProvider) CalculateCost(usage adapter.Usage, model string) float64 {
	p, ok := geminiPricing[model]
	if !ok {
		g.log.Warn().Str("provider", "google").Str("model", model).Msg("no pricing info for model, cost set to 0")
		return 0
	}
	return float64(usage.PromptTokens)/1_000_000*p.input + float64(usage.CompletionTokens)/1_000_000*p.output
}

func (g *GeminiProvider) classify(err error) *adapter.Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(adapter.ProviderGoogle, apiErr.Code, apiErr.Message, false)
	}
	return classifyTransport(adapter.ProviderGoogle, err)
}

func geminiFinishReason(r genai.FinishReason) adapter.FinishReason {
	switch r {
	case genai.FinishReasonMaxTokens:
		return adapter.FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonBlocklist:
		return adapter.FinishContentFilter
	default:
		return adapter.FinishStop
	}
}
