package repository

import (
	"context"
	"time"

	"agenthub/internal/domain/model"
)

type TaskRepository interface {
	Save(ctx context.Context, tx Tx, task *model.Task) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Task, error)
	ListByAgent(ctx context.Context, tx Tx, agentID string, offset, limit int) ([]*model.Task, error)

	// MarkRunning transitions pending -> running and records the start time.
	// It is a no-op (ok=false) when the task is no longer pending, which is
	// how a cancel racing with a worker wins.
	MarkRunning(ctx context.Context, id string, at time.Time) (ok bool, err error)

	// MarkCompleted/MarkFailed finalize a running task. Both are conditional
	// on status=running so they never overwrite an external cancellation.
	MarkCompleted(ctx context.Context, id string, out model.TaskOutput, at time.Time) (ok bool, err error)
	MarkFailed(ctx context.Context, id string, errMsg string, at time.Time) (ok bool, err error)

	// MarkCancelled succeeds only from pending or running.
	MarkCancelled(ctx context.Context, id string) (ok bool, err error)

	// ResetForRetry puts a terminal task back to pending, clearing output,
	// error and completion timestamps.
	ResetForRetry(ctx context.Context, id string) (ok bool, err error)
}
