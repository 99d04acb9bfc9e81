package model

import "time"

type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
)

// AgentConfig is the per-agent AI configuration, stored as JSONB.
// APIKey may be empty; the processor falls back to environment credentials.
type AgentConfig struct {
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	APIKey       string   `json:"apiKey,omitempty"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"maxTokens,omitempty"`
}

// Agent is a digital employee: a named automation worker bound to one
// provider/model configuration, with rolling execution statistics.
type Agent struct {
	ID           string
	Name         string
	Description  string
	Status       AgentStatus
	Config       AgentConfig
	TotalTasks   int
	SuccessTasks int
	SuccessRate  float64 // percentage in [0,100], rounded to one decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a *Agent) IsActive() bool { return a.Status == AgentStatusActive }
