// File: internal/usecase/task_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"agenthub/internal/domain"
	"agenthub/internal/domain/model"
)

type taskFixture struct {
	uc     *TaskUseCase
	tasks  *mockTaskRepo
	agents *mockAgentRepo
	logs   *mockLogRepo
	queue  *mockDispatcher
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	tasks := newMockTaskRepo()
	agents := newMockAgentRepo()
	logs := &mockLogRepo{}
	q := newMockDispatcher()
	txm := &mockTxManager{tasks: tasks}
	log := zerolog.Nop()
	return &taskFixture{
		uc:     NewTaskUseCase(tasks, agents, logs, q, txm, &log),
		tasks:  tasks,
		agents: agents,
		logs:   logs,
		queue:  q,
	}
}

func (f *taskFixture) seedAgent(t *testing.T, status model.AgentStatus) *model.Agent {
	t.Helper()
	a := &model.Agent{
		ID:     "agent-1",
		Name:   "Writer",
		Status: status,
		Config: model.AgentConfig{Provider: "openai", Model: "gpt-3.5-turbo"},
	}
	if err := f.agents.Save(context.Background(), nil, a); err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	return a
}

func TestCreateTask(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t)
	f.seedAgent(t, model.AgentStatusActive)
	ctx := context.Background()

	task, err := f.uc.Create(ctx, CreateTaskInput{
		AgentID: "agent-1",
		Title:   "draft intro",
		Input:   "write an intro paragraph",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != model.TaskStatusPending {
		t.Fatalf("status = %s", task.Status)
	}
	if task.Priority != model.PriorityNormal {
		t.Fatalf("priority = %s, want normal default", task.Priority)
	}

	st, err := f.queue.JobStatus(ctx, task.ID)
	if err != nil {
		t.Fatalf("job not enqueued: %v", err)
	}
	if st.State != model.JobStateWaiting {
		t.Fatalf("job state = %s", st.State)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t)
	f.seedAgent(t, model.AgentStatusActive)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateTaskInput
		want error
	}{
		{"empty input", CreateTaskInput{AgentID: "agent-1", Input: "   "}, domain.ErrInvalidArgument},
		{"missing agent id", CreateTaskInput{Input: "x"}, domain.ErrInvalidArgument},
		{"bad priority", CreateTaskInput{AgentID: "agent-1", Input: "x", Priority: "asap"}, domain.ErrInvalidArgument},
		{"unknown agent", CreateTaskInput{AgentID: "ghost", Input: "x"}, domain.ErrAgentNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.uc.Create(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateTaskEnqueueFailureRollsBack(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t)
	f.seedAgent(t, model.AgentStatusActive)
	f.queue.addErr = errors.New("redis connection refused")
	ctx := context.Background()

	if _, err := f.uc.Create(ctx, CreateTaskInput{AgentID: "agent-1", Input: "x"}); err == nil {
		t.Fatal("expected enqueue failure to surface")
	}
	// the insert rolled back with it; no pending row is left behind
	list, err := f.tasks.ListByAgent(ctx, nil, "agent-1", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("orphaned tasks = %+v", list)
	}
}

func TestCreateTaskInactiveAgent(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t)
	f.seedAgent(t, model.AgentStatusInactive)

	_, err := f.uc.Create(context.Background(), CreateTaskInput{AgentID: "agent-1", Input: "x"})
	if !errors.Is(err, domain.ErrAgentInactive) {
		t.Fatalf("got %v, want ErrAgentInactive", err)
	}
}

func TestCancelPendingTask(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t)
	f.seedAgent(t, model.AgentStatusActive)
	ctx := context.Background()

	task, err := f.uc.Create(ctx, CreateTaskInput{AgentID: "agent-1", Input: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.uc.Cancel(ctx, task.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := f.tasks.FindByID(ctx, nil, task.ID)
	if got.Status != model.TaskStatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	if _, err := f.queue.JobStatus(ctx, task.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("job still queued: %v", err)
	}

	// terminal tasks cannot be cancelled again
	if err := f.uc.Cancel(ctx, task.ID); !errors.Is(err, domain.ErrTaskNotCancellable) {
		t.Fatalf("second cancel: %v", err)
	}
}

func TestCancelUnknownTask(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t)
	if err := f.uc.Cancel(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRetryFailedTask(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t)
	f.seedAgent(t, model.AgentStatusActive)
	ctx := context.Background()

	task, err := f.uc.Create(ctx, CreateTaskInput{AgentID: "agent-1", Input: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// simulate a failed execution
	if ok, _ := f.tasks.MarkRunning(ctx, task.ID, task.CreatedAt); !ok {
		t.Fatal("mark running")
	}
	if ok, _ := f.tasks.MarkFailed(ctx, task.ID, "provider exploded", task.CreatedAt); !ok {
		t.Fatal("mark failed")
	}
	f.queue.setState(task.ID, model.JobStateFailed)

	got, err := f.uc.Retry(ctx, task.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Status != model.TaskStatusPending {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Error != "" || got.Output != nil {
		t.Fatalf("stale result kept: %+v", got)
	}
	st, err := f.queue.JobStatus(ctx, task.ID)
	if err != nil || st.State != model.JobStateWaiting {
		t.Fatalf("job = %+v, %v", st, err)
	}
}

func TestRetryNonTerminalTask(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t)
	f.seedAgent(t, model.AgentStatusActive)
	ctx := context.Background()

	task, err := f.uc.Create(ctx, CreateTaskInput{AgentID: "agent-1", Input: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.uc.Retry(ctx, task.ID); !errors.Is(err, domain.ErrTaskNotRetryable) {
		t.Fatalf("got %v, want ErrTaskNotRetryable", err)
	}
}

func TestRetryCancelledTaskEnqueuesFreshJob(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t)
	f.seedAgent(t, model.AgentStatusActive)
	ctx := context.Background()

	task, err := f.uc.Create(ctx, CreateTaskInput{AgentID: "agent-1", Input: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.uc.Cancel(ctx, task.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// cancel removed the queue record, so retry must enqueue a new job
	got, err := f.uc.Retry(ctx, task.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Status != model.TaskStatusPending {
		t.Fatalf("status = %s", got.Status)
	}
	st, err := f.queue.JobStatus(ctx, task.ID)
	if err != nil || st.State != model.JobStateWaiting {
		t.Fatalf("job = %+v, %v", st, err)
	}
}

func TestStatusMergesQueueSnapshot(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t)
	f.seedAgent(t, model.AgentStatusActive)
	ctx := context.Background()

	task, err := f.uc.Create(ctx, CreateTaskInput{AgentID: "agent-1", Input: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	view, err := f.uc.Status(ctx, task.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Task.ID != task.ID {
		t.Fatalf("task = %+v", view.Task)
	}
	if view.Job == nil || view.Job.State != model.JobStateWaiting {
		t.Fatalf("job = %+v", view.Job)
	}

	// a purged queue record is not an error; the persisted task stands alone
	if _, err := f.queue.Cancel(ctx, task.ID); err != nil {
		t.Fatalf("queue cancel: %v", err)
	}
	view, err = f.uc.Status(ctx, task.ID)
	if err != nil {
		t.Fatalf("status after purge: %v", err)
	}
	if view.Job != nil {
		t.Fatalf("job = %+v, want nil", view.Job)
	}
}

func TestAgentStatsAcrossOutcomes(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t)
	agent := f.seedAgent(t, model.AgentStatusActive)
	ctx := context.Background()

	steps := []struct {
		success   bool
		wantTotal int
		wantRate  float64
	}{
		{true, 1, 100.0},
		{true, 2, 100.0},
		{false, 3, 66.7},
	}
	for i, s := range steps {
		stats, err := f.agents.RecordOutcome(ctx, agent.ID, s.success)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if stats.TotalTasks != s.wantTotal || stats.SuccessRate != s.wantRate {
			t.Fatalf("step %d: got total %d rate %v, want %d/%v",
				i, stats.TotalTasks, stats.SuccessRate, s.wantTotal, s.wantRate)
		}
	}
}
