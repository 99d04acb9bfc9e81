// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"agenthub/internal/domain"
	"agenthub/internal/domain/model"
	"agenthub/internal/domain/ports/repository"
	"agenthub/internal/infra/queue"
)

type mockAgentRepo struct {
	mu     sync.Mutex
	agents map[string]*model.Agent
}

func newMockAgentRepo() *mockAgentRepo {
	return &mockAgentRepo{agents: make(map[string]*model.Agent)}
}

func (m *mockAgentRepo) Save(ctx context.Context, tx repository.Tx, a *model.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.agents[a.ID] = &cp
	return nil
}

func (m *mockAgentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAgentRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockAgentRepo) RecordOutcome(ctx context.Context, id string, success bool) (*repository.AgentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	a.TotalTasks++
	if success {
		a.SuccessTasks++
	}
	a.SuccessRate = math.Round(float64(a.SuccessTasks)/float64(a.TotalTasks)*1000) / 10
	return &repository.AgentStats{TotalTasks: a.TotalTasks, SuccessRate: a.SuccessRate}, nil
}

type mockTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{tasks: make(map[string]*model.Task)}
}

func (m *mockTaskRepo) Save(ctx context.Context, tx repository.Tx, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *mockTaskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTaskRepo) ListByAgent(ctx context.Context, tx repository.Tx, agentID string, offset, limit int) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Task
	for _, t := range m.tasks {
		if t.AgentID == agentID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTaskRepo) MarkRunning(ctx context.Context, id string, at time.Time) (bool, error) {
	return m.transition(id, model.TaskStatusPending, model.TaskStatusRunning), nil
}

func (m *mockTaskRepo) MarkCompleted(ctx context.Context, id string, out model.TaskOutput, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != model.TaskStatusRunning {
		return false, nil
	}
	t.Status = model.TaskStatusCompleted
	t.Output = &out
	t.CompletedAt = &at
	return true, nil
}

func (m *mockTaskRepo) MarkFailed(ctx context.Context, id string, errMsg string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != model.TaskStatusRunning {
		return false, nil
	}
	t.Status = model.TaskStatusFailed
	t.Error = errMsg
	t.CompletedAt = &at
	return true, nil
}

func (m *mockTaskRepo) MarkCancelled(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || !t.Status.Cancellable() {
		return false, nil
	}
	t.Status = model.TaskStatusCancelled
	return true, nil
}

func (m *mockTaskRepo) ResetForRetry(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || !t.Status.Terminal() {
		return false, nil
	}
	t.Status = model.TaskStatusPending
	t.Output = nil
	t.Error = ""
	t.StartedAt = nil
	t.CompletedAt = nil
	return true, nil
}

func (m *mockTaskRepo) transition(id string, from, to model.TaskStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != from {
		return false
	}
	t.Status = to
	return true
}

type mockLogRepo struct {
	mu      sync.Mutex
	entries []*model.Log
}

func (m *mockLogRepo) Append(ctx context.Context, tx repository.Tx, e *model.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockLogRepo) ListByTask(ctx context.Context, tx repository.Tx, taskID string, limit int) ([]*model.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Log
	for _, e := range m.entries {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}

// mockTxManager emulates rollback by snapshotting the task table around the
// callback and restoring it on error.
type mockTxManager struct {
	tasks *mockTaskRepo
}

func (m *mockTxManager) WithTx(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.tasks.mu.Lock()
	snap := make(map[string]*model.Task, len(m.tasks.tasks))
	for id, t := range m.tasks.tasks {
		cp := *t
		snap[id] = &cp
	}
	m.tasks.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		m.tasks.mu.Lock()
		m.tasks.tasks = snap
		m.tasks.mu.Unlock()
		return err
	}
	return nil
}

// mockDispatcher fakes the queue surface with a simple in-memory job table.
type mockDispatcher struct {
	mu   sync.Mutex
	jobs map[string]*model.Job

	addErr error
}

func newMockDispatcher() *mockDispatcher {
	return &mockDispatcher{jobs: make(map[string]*model.Job)}
}

func (m *mockDispatcher) Add(ctx context.Context, job *model.Job) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[job.TaskID]; ok && j.State != model.JobStateCompleted && j.State != model.JobStateFailed {
		return domain.ErrAlreadyExists
	}
	cp := *job
	cp.State = model.JobStateWaiting
	m.jobs[job.TaskID] = &cp
	return nil
}

func (m *mockDispatcher) Cancel(ctx context.Context, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[taskID]
	if !ok || j.State != model.JobStateWaiting {
		return false, nil
	}
	delete(m.jobs, taskID)
	return true, nil
}

func (m *mockDispatcher) Retry(ctx context.Context, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[taskID]
	if !ok || j.State != model.JobStateFailed {
		return false, nil
	}
	j.State = model.JobStateWaiting
	j.FailedReason = ""
	return true, nil
}

func (m *mockDispatcher) JobStatus(ctx context.Context, taskID string) (*model.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &model.JobStatus{State: j.State, Progress: j.Progress, Result: j.Result, FailedReason: j.FailedReason}, nil
}

func (m *mockDispatcher) GetStats(ctx context.Context) (*queue.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s queue.Stats
	for _, j := range m.jobs {
		switch j.State {
		case model.JobStateWaiting:
			s.Waiting++
		case model.JobStateActive:
			s.Active++
		case model.JobStateCompleted:
			s.Completed++
		case model.JobStateFailed:
			s.Failed++
		case model.JobStateDelayed:
			s.Delayed++
		}
	}
	return &s, nil
}

// setState force-sets a job state, bypassing lifecycle rules.
func (m *mockDispatcher) setState(taskID string, st model.JobState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[taskID]; ok {
		j.State = st
	}
}

var (
	_ repository.AgentRepository    = (*mockAgentRepo)(nil)
	_ repository.TaskRepository     = (*mockTaskRepo)(nil)
	_ repository.LogRepository      = (*mockLogRepo)(nil)
	_ repository.TransactionManager = (*mockTxManager)(nil)
	_ TaskDispatcher                = (*mockDispatcher)(nil)
)
