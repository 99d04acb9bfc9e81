// File: internal/usecase/task_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"agenthub/internal/domain"
	"agenthub/internal/domain/model"
	"agenthub/internal/domain/ports/repository"
	"agenthub/internal/infra/queue"
)

// TaskDispatcher is the queue surface the task usecase needs. Satisfied by
// *queue.TaskQueue; narrowed to an interface so tests can fake it.
type TaskDispatcher interface {
	Add(ctx context.Context, job *model.Job) error
	Cancel(ctx context.Context, taskID string) (bool, error)
	Retry(ctx context.Context, taskID string) (bool, error)
	JobStatus(ctx context.Context, taskID string) (*model.JobStatus, error)
	GetStats(ctx context.Context) (*queue.Stats, error)
}

// TaskUseCase implements the task lifecycle operations the admin surface
// exposes: submit, cancel, retry, observe.
type TaskUseCase struct {
	tasks  repository.TaskRepository
	agents repository.AgentRepository
	logs   repository.LogRepository
	queue  TaskDispatcher
	txm    repository.TransactionManager
	log    *zerolog.Logger
}

func NewTaskUseCase(
	tasks repository.TaskRepository,
	agents repository.AgentRepository,
	logs repository.LogRepository,
	q TaskDispatcher,
	txm repository.TransactionManager,
	log *zerolog.Logger,
) *TaskUseCase {
	return &TaskUseCase{tasks: tasks, agents: agents, logs: logs, queue: q, txm: txm, log: log}
}

// CreateTaskInput is the validated submission payload.
type CreateTaskInput struct {
	AgentID  string
	Title    string
	Input    string
	Priority model.Priority
}

// Create persists a pending task and enqueues a job for it. The task exists
// even if the agent later turns out to be inactive; the worker records that
// as a failed execution.
func (uc *TaskUseCase) Create(ctx context.Context, in CreateTaskInput) (*model.Task, error) {
	if strings.TrimSpace(in.Input) == "" || in.AgentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if in.Priority == "" {
		in.Priority = model.PriorityNormal
	}
	if !in.Priority.Valid() {
		return nil, domain.ErrInvalidArgument
	}

	agent, err := uc.agents.FindByID(ctx, nil, in.AgentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrAgentNotFound
		}
		return nil, err
	}
	if !agent.IsActive() {
		return nil, domain.ErrAgentInactive
	}

	task := &model.Task{
		ID:        uuid.NewString(),
		AgentID:   in.AgentID,
		Title:     in.Title,
		Input:     in.Input,
		Priority:  in.Priority,
		Status:    model.TaskStatusPending,
		CreatedAt: time.Now(),
	}
	// The insert and the enqueue commit or fail together: a queue fault
	// rolls the row back instead of leaving a pending task no worker will
	// ever claim.
	err = uc.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.tasks.Save(ctx, tx, task); err != nil {
			return err
		}
		return uc.queue.Add(ctx, &model.Job{
			TaskID:   task.ID,
			AgentID:  task.AgentID,
			Input:    task.Input,
			Priority: task.Priority,
		})
	})
	if err != nil {
		uc.log.Error().Err(err).Str("task_id", task.ID).Msg("task submission failed")
		return nil, err
	}

	uc.log.Info().Str("task_id", task.ID).Str("agent_id", task.AgentID).
		Str("priority", string(task.Priority)).Msg("task created")
	return task, nil
}

// Cancel stops a task that has not finished. A waiting job is pulled from
// the queue; a running one keeps executing but its result is discarded by
// the conditional status updates.
func (uc *TaskUseCase) Cancel(ctx context.Context, taskID string) error {
	task, err := uc.tasks.FindByID(ctx, nil, taskID)
	if err != nil {
		return err
	}
	if !task.Status.Cancellable() {
		return domain.ErrTaskNotCancellable
	}

	if _, err := uc.queue.Cancel(ctx, taskID); err != nil {
		return err
	}
	ok, err := uc.tasks.MarkCancelled(ctx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		// finished between the lookup and the update
		return domain.ErrTaskNotCancellable
	}
	uc.log.Info().Str("task_id", taskID).Msg("task cancelled")
	return nil
}

// Retry resets a terminal task to pending and re-enqueues it.
func (uc *TaskUseCase) Retry(ctx context.Context, taskID string) (*model.Task, error) {
	task, err := uc.tasks.FindByID(ctx, nil, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Status.Terminal() {
		return nil, domain.ErrTaskNotRetryable
	}

	ok, err := uc.tasks.ResetForRetry(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrTaskNotRetryable
	}

	// a failed queue record can be revived in place; anything else gets a
	// fresh job under the same task key
	revived, err := uc.queue.Retry(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !revived {
		if err := uc.queue.Add(ctx, &model.Job{
			TaskID:   task.ID,
			AgentID:  task.AgentID,
			Input:    task.Input,
			Priority: task.Priority,
		}); err != nil {
			return nil, err
		}
	}

	uc.log.Info().Str("task_id", taskID).Msg("task re-queued")
	return uc.tasks.FindByID(ctx, nil, taskID)
}

// TaskView combines the persisted task with its live queue snapshot.
type TaskView struct {
	Task *model.Task      `json:"task"`
	Job  *model.JobStatus `json:"job,omitempty"`
}

// Status returns the persisted task plus its queue-side snapshot when one
// still exists (terminal jobs age out of the bounded history).
func (uc *TaskUseCase) Status(ctx context.Context, taskID string) (*TaskView, error) {
	task, err := uc.tasks.FindByID(ctx, nil, taskID)
	if err != nil {
		return nil, err
	}
	view := &TaskView{Task: task}
	job, err := uc.queue.JobStatus(ctx, taskID)
	if err == nil {
		view.Job = job
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return view, nil
}

// Logs returns the persisted execution log records for a task.
func (uc *TaskUseCase) Logs(ctx context.Context, taskID string, limit int) ([]*model.Log, error) {
	return uc.logs.ListByTask(ctx, nil, taskID, limit)
}

// QueueStats reports the queue census for the dashboard.
func (uc *TaskUseCase) QueueStats(ctx context.Context) (*queue.Stats, error) {
	return uc.queue.GetStats(ctx)
}

// ListByAgent pages through an agent's tasks, newest first.
func (uc *TaskUseCase) ListByAgent(ctx context.Context, agentID string, offset, limit int) ([]*model.Task, error) {
	return uc.tasks.ListByAgent(ctx, nil, agentID, offset, limit)
}
