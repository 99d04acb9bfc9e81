package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agenthub/internal/domain"
	"agenthub/internal/domain/model"
	"agenthub/internal/domain/ports/repository"
)

var _ repository.AgentRepository = (*agentRepo)(nil)

type agentRepo struct {
	pool *pgxpool.Pool
}

func NewAgentRepo(pool *pgxpool.Pool) *agentRepo {
	return &agentRepo{pool: pool}
}

func (r *agentRepo) Save(ctx context.Context, tx repository.Tx, agent *model.Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now()
	}
	agent.UpdatedAt = time.Now()

	cfg, err := json.Marshal(agent.Config)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO agents (id, name, description, status, config, total_tasks, success_tasks, success_rate, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  description = EXCLUDED.description,
  status = EXCLUDED.status,
  config = EXCLUDED.config,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		agent.ID, agent.Name, agent.Description, agent.Status, cfg,
		agent.TotalTasks, agent.SuccessTasks, agent.SuccessRate,
		agent.CreatedAt, agent.UpdatedAt)
	return err
}

const agentColumns = `id, name, description, status, config, total_tasks, success_tasks, success_rate, created_at, updated_at`

func scanAgent(row pgx.Row) (*model.Agent, error) {
	var a model.Agent
	var status string
	var cfg []byte
	err := row.Scan(
		&a.ID, &a.Name, &a.Description, &status, &cfg,
		&a.TotalTasks, &a.SuccessTasks, &a.SuccessRate,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, translateScanErr(err)
	}
	a.Status = model.AgentStatus(status)
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &a.Config); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &a, nil
}

func (r *agentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Agent, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanAgent(row)
}

func (r *agentRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.Agent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+agentColumns+` FROM agents ORDER BY created_at DESC OFFSET $1 LIMIT $2;`,
		offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecordOutcome folds one terminal task outcome into the agent's rolling
// statistics in a single UPDATE, so concurrent workers can never lose an
// increment to a read-modify-write race.
func (r *agentRepo) RecordOutcome(ctx context.Context, id string, success bool) (*repository.AgentStats, error) {
	const q = `
UPDATE agents SET
  total_tasks = total_tasks + 1,
  success_tasks = success_tasks + CASE WHEN $2 THEN 1 ELSE 0 END,
  success_rate = round((success_tasks + CASE WHEN $2 THEN 1 ELSE 0 END)::numeric
                  / (total_tasks + 1)::numeric * 100, 1),
  updated_at = now()
WHERE id = $1
RETURNING total_tasks, success_rate;`

	var stats repository.AgentStats
	err := r.pool.QueryRow(ctx, q, id, success).Scan(&stats.TotalTasks, &stats.SuccessRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &stats, nil
}
