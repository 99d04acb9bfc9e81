// File: internal/usecase/agent_uc.go
package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agenthub/internal/domain"
	"agenthub/internal/domain/model"
	"agenthub/internal/domain/ports/adapter"
	"agenthub/internal/domain/ports/repository"
	"agenthub/internal/infra/adapters/ai"
)

// AgentUseCase manages the digital-employee roster.
type AgentUseCase struct {
	agents   repository.AgentRepository
	registry *ai.Registry
	log      *zerolog.Logger
}

func NewAgentUseCase(agents repository.AgentRepository, registry *ai.Registry, log *zerolog.Logger) *AgentUseCase {
	return &AgentUseCase{agents: agents, registry: registry, log: log}
}

// CreateAgentInput is the validated creation payload.
type CreateAgentInput struct {
	Name        string
	Description string
	Config      model.AgentConfig
}

func (uc *AgentUseCase) Create(ctx context.Context, in CreateAgentInput) (*model.Agent, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if in.Config.Model == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !uc.registry.IsRegistered(adapter.ProviderType(in.Config.Provider)) {
		return nil, domain.ErrInvalidArgument
	}

	agent := &model.Agent{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Status:      model.AgentStatusActive,
		Config:      in.Config,
		CreatedAt:   time.Now(),
	}
	if err := uc.agents.Save(ctx, nil, agent); err != nil {
		return nil, err
	}
	uc.log.Info().Str("agent_id", agent.ID).Str("name", agent.Name).
		Str("provider", agent.Config.Provider).Msg("agent created")
	return agent, nil
}

func (uc *AgentUseCase) Get(ctx context.Context, id string) (*model.Agent, error) {
	return uc.agents.FindByID(ctx, nil, id)
}

func (uc *AgentUseCase) List(ctx context.Context, offset, limit int) ([]*model.Agent, error) {
	return uc.agents.List(ctx, nil, offset, limit)
}

// SetStatus flips an agent between active and inactive. Inactive agents
// keep their history but reject new tasks.
func (uc *AgentUseCase) SetStatus(ctx context.Context, id string, status model.AgentStatus) (*model.Agent, error) {
	if status != model.AgentStatusActive && status != model.AgentStatusInactive {
		return nil, domain.ErrInvalidArgument
	}
	agent, err := uc.agents.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	agent.Status = status
	if err := uc.agents.Save(ctx, nil, agent); err != nil {
		return nil, err
	}
	uc.log.Info().Str("agent_id", id).Str("status", string(status)).Msg("agent status changed")
	return agent, nil
}
