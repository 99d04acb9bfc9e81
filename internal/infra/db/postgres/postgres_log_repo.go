package postgres

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"agenthub/internal/domain"
	"agenthub/internal/domain/model"
	"agenthub/internal/domain/ports/repository"
)

var _ repository.LogRepository = (*logRepo)(nil)

// logRepo stores execution log records. IDs are ULIDs so a plain index
// scan over the primary key already yields chronological order.
type logRepo struct {
	pool *pgxpool.Pool
}

func NewLogRepo(pool *pgxpool.Pool) *logRepo {
	return &logRepo{pool: pool}
}

// newLogID mints a ULID from the record timestamp. Lexicographic order of
// the IDs follows creation time, which ListByTask relies on.
func newLogID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), rand.Reader).String()
}

func (r *logRepo) Append(ctx context.Context, tx repository.Tx, entry *model.Log) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.ID == "" {
		entry.ID = newLogID(entry.CreatedAt)
	}

	var meta []byte
	if entry.Metadata != nil {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		meta = b
	}

	const q = `
INSERT INTO logs (id, level, message, metadata, task_id, agent_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := execSQL(ctx, r.pool, tx, q,
		entry.ID, entry.Level, entry.Message, meta, entry.TaskID, entry.AgentID, entry.CreatedAt)
	return err
}

func (r *logRepo) ListByTask(ctx context.Context, tx repository.Tx, taskID string, limit int) ([]*model.Log, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT id, level, message, metadata, task_id, agent_id, created_at
		 FROM logs WHERE task_id = $1 ORDER BY id DESC LIMIT $2;`,
		taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Log
	for rows.Next() {
		var e model.Log
		var level string
		var meta []byte
		if err := rows.Scan(&e.ID, &level, &e.Message, &meta, &e.TaskID, &e.AgentID, &e.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		e.Level = model.LogLevel(level)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, domain.ErrReadDatabaseRow
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
