package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agenthub/internal/domain"
	"agenthub/internal/domain/model"
	"agenthub/internal/domain/ports/repository"
)

var _ repository.TaskRepository = (*taskRepo)(nil)

type taskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *taskRepo {
	return &taskRepo{pool: pool}
}

func (r *taskRepo) Save(ctx context.Context, tx repository.Tx, task *model.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	var out []byte
	if task.Output != nil {
		b, err := json.Marshal(task.Output)
		if err != nil {
			return err
		}
		out = b
	}

	const q = `
INSERT INTO tasks (id, agent_id, title, input, priority, status, output, error, created_at, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
  title = EXCLUDED.title,
  input = EXCLUDED.input,
  priority = EXCLUDED.priority,
  status = EXCLUDED.status,
  output = EXCLUDED.output,
  error = EXCLUDED.error,
  started_at = EXCLUDED.started_at,
  completed_at = EXCLUDED.completed_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		task.ID, task.AgentID, task.Title, task.Input, task.Priority, task.Status,
		out, task.Error, task.CreatedAt, task.StartedAt, task.CompletedAt)
	return err
}

const taskColumns = `id, agent_id, title, input, priority, status, output, error, created_at, started_at, completed_at`

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var priority, status string
	var out []byte
	var errMsg sql.NullString
	err := row.Scan(
		&t.ID, &t.AgentID, &t.Title, &t.Input, &priority, &status,
		&out, &errMsg, &t.CreatedAt, &t.StartedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, translateScanErr(err)
	}
	t.Priority = model.Priority(priority)
	t.Status = model.TaskStatus(status)
	t.Error = errMsg.String
	if len(out) > 0 {
		var o model.TaskOutput
		if err := json.Unmarshal(out, &o); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		t.Output = &o
	}
	return &t, nil
}

func (r *taskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanTask(row)
}

func (r *taskRepo) ListByAgent(ctx context.Context, tx repository.Tx, agentID string, offset, limit int) ([]*model.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+taskColumns+` FROM tasks WHERE agent_id = $1 ORDER BY created_at DESC OFFSET $2 LIMIT $3;`,
		agentID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Each transition below is guarded by the current status in the WHERE
// clause. A cancel that lands first makes the worker's later update a
// no-op, which is how the cancellation always wins the race.

func (r *taskRepo) MarkRunning(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET status = 'running', started_at = $2 WHERE id = $1 AND status = 'pending';`,
		id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *taskRepo) MarkCompleted(ctx context.Context, id string, out model.TaskOutput, at time.Time) (bool, error) {
	b, err := json.Marshal(out)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET status = 'completed', output = $2, error = '', completed_at = $3
		 WHERE id = $1 AND status = 'running';`,
		id, b, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *taskRepo) MarkFailed(ctx context.Context, id string, errMsg string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET status = 'failed', error = $2, completed_at = $3
		 WHERE id = $1 AND status = 'running';`,
		id, errMsg, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *taskRepo) MarkCancelled(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET status = 'cancelled' WHERE id = $1 AND status IN ('pending', 'running');`,
		id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *taskRepo) ResetForRetry(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET status = 'pending', output = NULL, error = '', started_at = NULL, completed_at = NULL
		 WHERE id = $1 AND status IN ('completed', 'failed', 'cancelled');`,
		id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
