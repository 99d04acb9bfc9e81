package repository

import (
	"context"

	"agenthub/internal/domain/model"
)

type LogRepository interface {
	Append(ctx context.Context, tx Tx, entry *model.Log) error
	ListByTask(ctx context.Context, tx Tx, taskID string, limit int) ([]*model.Log, error)
}
