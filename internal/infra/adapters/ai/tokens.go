package ai

import (
	"github.com/pkoukk/tiktoken-go"
)

// EstimateTokens approximates the token count of text for budgeting and
// logging; billing always uses the backend-reported usage. Falls back to
// the rough 4-chars-per-token rule when no encoding is available.
func EstimateTokens(model, text string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil || enc == nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
