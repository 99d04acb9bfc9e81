package repository

import (
	"context"

	"agenthub/internal/domain/model"
)

// AgentStats is the rolling aggregate returned by RecordOutcome.
type AgentStats struct {
	TotalTasks  int
	SuccessRate float64
}

type AgentRepository interface {
	Save(ctx context.Context, tx Tx, agent *model.Agent) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Agent, error)
	List(ctx context.Context, tx Tx, offset, limit int) ([]*model.Agent, error)

	// RecordOutcome increments the agent's rolling statistics for one
	// terminal task outcome in a single atomic update. Concurrent
	// completions for the same agent must never drop an update.
	RecordOutcome(ctx context.Context, id string, success bool) (*AgentStats, error)
}
