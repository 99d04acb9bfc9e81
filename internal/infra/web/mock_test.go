package web

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"agenthub/internal/domain"
	"agenthub/internal/domain/model"
	"agenthub/internal/infra/queue"
	"agenthub/internal/usecase"
)

// fakeTaskService is a minimal in-memory TaskService for handler tests.
type fakeTaskService struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
	stats queue.Stats
}

func newFakeTaskService() *fakeTaskService {
	return &fakeTaskService{tasks: make(map[string]*model.Task)}
}

func (f *fakeTaskService) Create(ctx context.Context, in usecase.CreateTaskInput) (*model.Task, error) {
	if in.Input == "" || in.AgentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if in.AgentID == "ghost" {
		return nil, domain.ErrAgentNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &model.Task{
		ID:       uuid.NewString(),
		AgentID:  in.AgentID,
		Title:    in.Title,
		Input:    in.Input,
		Priority: in.Priority,
		Status:   model.TaskStatusPending,
	}
	if t.Priority == "" {
		t.Priority = model.PriorityNormal
	}
	f.tasks[t.ID] = t
	f.stats.Waiting++
	return t, nil
}

func (f *fakeTaskService) Cancel(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if !t.Status.Cancellable() {
		return domain.ErrTaskNotCancellable
	}
	t.Status = model.TaskStatusCancelled
	return nil
}

func (f *fakeTaskService) Retry(ctx context.Context, taskID string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !t.Status.Terminal() {
		return nil, domain.ErrTaskNotRetryable
	}
	t.Status = model.TaskStatusPending
	return t, nil
}

func (f *fakeTaskService) Status(ctx context.Context, taskID string) (*usecase.TaskView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &usecase.TaskView{Task: t}, nil
}

func (f *fakeTaskService) Logs(ctx context.Context, taskID string, limit int) ([]*model.Log, error) {
	return nil, nil
}

func (f *fakeTaskService) QueueStats(ctx context.Context) (*queue.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stats
	return &s, nil
}

func (f *fakeTaskService) ListByAgent(ctx context.Context, agentID string, offset, limit int) ([]*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Task
	for _, t := range f.tasks {
		if t.AgentID == agentID {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeAgentService struct {
	mu     sync.Mutex
	agents map[string]*model.Agent
}

func newFakeAgentService() *fakeAgentService {
	return &fakeAgentService{agents: make(map[string]*model.Agent)}
}

func (f *fakeAgentService) Create(ctx context.Context, in usecase.CreateAgentInput) (*model.Agent, error) {
	if in.Name == "" {
		return nil, domain.ErrInvalidArgument
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &model.Agent{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Status:      model.AgentStatusActive,
		Config:      in.Config,
	}
	f.agents[a.ID] = a
	return a, nil
}

func (f *fakeAgentService) Get(ctx context.Context, id string) (*model.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeAgentService) List(ctx context.Context, offset, limit int) ([]*model.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Agent, 0, len(f.agents))
	for _, a := range f.agents {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAgentService) SetStatus(ctx context.Context, id string, status model.AgentStatus) (*model.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	a.Status = status
	return a, nil
}

var (
	_ TaskService  = (*fakeTaskService)(nil)
	_ AgentService = (*fakeAgentService)(nil)
)
