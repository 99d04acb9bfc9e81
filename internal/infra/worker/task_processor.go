// Package worker executes queued tasks against AI providers and keeps the
// task, log and agent-statistics records consistent with what happened.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agenthub/internal/config"
	"agenthub/internal/domain"
	"agenthub/internal/domain/model"
	"agenthub/internal/domain/ports/adapter"
	"agenthub/internal/domain/ports/repository"
	"agenthub/internal/infra/adapters/ai"
	"agenthub/internal/infra/logging"
	"agenthub/internal/infra/metrics"
)

// Processor turns one claimed queue job into a terminal task outcome.
//
// AI failures are a business outcome, not an infrastructure fault: the task
// is marked failed, the agent's statistics absorb it, and the queue sees a
// successful delivery. Only repository errors propagate to the queue, where
// its own retry policy applies.
type Processor struct {
	cfg      *config.Config
	registry *ai.Registry
	agents   repository.AgentRepository
	tasks    repository.TaskRepository
	logs     repository.LogRepository
	log      *zerolog.Logger

	mu        sync.Mutex
	providers map[string]adapter.Provider // cached per provider+credential
}

func NewProcessor(
	cfg *config.Config,
	registry *ai.Registry,
	agents repository.AgentRepository,
	tasks repository.TaskRepository,
	logs repository.LogRepository,
	log *zerolog.Logger,
) *Processor {
	return &Processor{
		cfg:       cfg,
		registry:  registry,
		agents:    agents,
		tasks:     tasks,
		logs:      logs,
		log:       log,
		providers: make(map[string]adapter.Provider),
	}
}

// Handle is the queue handler. It returns an error only for infrastructure
// faults; every AI-level outcome is absorbed into the returned result.
func (p *Processor) Handle(ctx context.Context, job *model.Job) (*model.JobResult, error) {
	ctx = logging.WithTaskID(logging.WithAgentID(ctx, job.AgentID), job.TaskID)
	log := logging.With(ctx, p.log)
	defer logging.TraceDuration(log, "Processor.Handle")()

	ok, err := p.tasks.MarkRunning(ctx, job.TaskID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("mark running: %w", err)
	}
	if !ok {
		// The task left pending before we got here: an external cancel, or
		// a redelivery of a job whose task already finished. The delivery
		// succeeds with nothing to do.
		log.Info().Msg("task no longer pending, skipping")
		return &model.JobResult{TaskID: job.TaskID, Success: false, Error: "task no longer pending"}, nil
	}

	agent, err := p.agents.FindByID(ctx, nil, job.AgentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return p.failTask(ctx, job, agent, "agent not found", nil)
		}
		return nil, fmt.Errorf("load agent: %w", err)
	}
	if !agent.IsActive() {
		return p.failTask(ctx, job, agent, "agent is not active", nil)
	}

	provider, err := p.providerFor(agent)
	if err != nil {
		return p.failTask(ctx, job, agent, err.Error(), nil)
	}

	req := p.buildRequest(agent, job.Input)
	log.Debug().
		Str("provider", agent.Config.Provider).
		Str("model", req.Model).
		Int("estimated_tokens", ai.EstimateTokens(req.Model, job.Input)).
		Msg("dispatching task to provider")

	exec := ai.NewExecutor(provider, ai.RetryPolicy{MaxRetries: p.cfg.AI.MaxRetries}, log)
	resp, m, execErr := exec.ExecuteWithMetrics(ctx, req)
	if execErr != nil {
		return p.failTask(ctx, job, agent, execErr.Error(), &m)
	}

	out := model.TaskOutput{
		Content:      resp.Content,
		FinishReason: string(resp.FinishReason),
	}
	ok, err = p.tasks.MarkCompleted(ctx, job.TaskID, out, time.Now())
	if err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	if !ok {
		// Cancelled mid-flight; the response is discarded and the
		// cancellation stands. No statistics update.
		log.Info().Msg("task cancelled during execution, result discarded")
		metrics.IncTaskOutcome("cancelled")
		return &model.JobResult{TaskID: job.TaskID, Success: false, Error: "task was cancelled during execution"}, nil
	}

	stats, err := p.agents.RecordOutcome(ctx, job.AgentID, true)
	if err != nil {
		return nil, fmt.Errorf("record outcome: %w", err)
	}
	p.appendLog(ctx, job, model.LogLevelInfo, "task completed", map[string]any{
		"provider":    string(m.Provider),
		"model":       m.Model,
		"durationMs":  m.Duration.Milliseconds(),
		"retryCount":  m.RetryCount,
		"totalTokens": resp.Usage.TotalTokens,
		"costUsd":     resp.Usage.EstimatedCost,
	})
	metrics.IncTaskOutcome("completed")
	log.Info().
		Int("total_tasks", stats.TotalTasks).
		Float64("success_rate", stats.SuccessRate).
		Dur("duration", m.Duration).
		Msg("task completed")

	return &model.JobResult{
		TaskID:  job.TaskID,
		Success: true,
		Output:  &out,
		Usage: &model.JobUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			Cost:             resp.Usage.EstimatedCost,
		},
	}, nil
}

// failTask finalizes a running task as failed and absorbs the failure into
// the agent's statistics. The delivery itself still succeeds.
func (p *Processor) failTask(ctx context.Context, job *model.Job, agent *model.Agent, reason string, m *adapter.ExecutionMetrics) (*model.JobResult, error) {
	log := logging.With(ctx, p.log)

	ok, err := p.tasks.MarkFailed(ctx, job.TaskID, reason, time.Now())
	if err != nil {
		return nil, fmt.Errorf("mark failed: %w", err)
	}
	if !ok {
		log.Info().Str("reason", reason).Msg("task cancelled during execution, failure discarded")
		metrics.IncTaskOutcome("cancelled")
		return &model.JobResult{TaskID: job.TaskID, Success: false, Error: "task was cancelled during execution"}, nil
	}

	if agent != nil {
		if _, err := p.agents.RecordOutcome(ctx, job.AgentID, false); err != nil {
			return nil, fmt.Errorf("record outcome: %w", err)
		}
	}

	meta := map[string]any{"error": reason}
	if m != nil {
		meta["provider"] = string(m.Provider)
		meta["model"] = m.Model
		meta["retryCount"] = m.RetryCount
		if m.Err != nil {
			meta["code"] = string(m.Err.Code)
		}
	}
	p.appendLog(ctx, job, model.LogLevelError, "task failed", meta)
	metrics.IncTaskOutcome("failed")
	log.Warn().Str("reason", reason).Msg("task failed")

	return &model.JobResult{TaskID: job.TaskID, Success: false, Error: reason}, nil
}

// providerFor resolves the agent's provider, falling back to process-level
// credentials when the agent carries no key of its own. Instances are cached
// per provider and credential so the concurrency cap spans all workers.
func (p *Processor) providerFor(agent *model.Agent) (adapter.Provider, error) {
	apiKey := agent.Config.APIKey
	if apiKey == "" {
		apiKey = p.cfg.EnvKeyFor(agent.Config.Provider)
	}
	baseURL := p.baseURLFor(agent.Config.Provider)
	key := agent.Config.Provider + "\x00" + apiKey + "\x00" + baseURL

	p.mu.Lock()
	defer p.mu.Unlock()
	if prov, ok := p.providers[key]; ok {
		return prov, nil
	}

	prov, err := p.registry.Create(adapter.ProviderType(agent.Config.Provider), adapter.Config{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Timeout: p.cfg.AI.Timeout,
	})
	if err != nil {
		return nil, err
	}
	prov = ai.NewLimitedProvider(prov, p.cfg.AI.ConcurrentLimit)
	p.providers[key] = prov
	return prov, nil
}

func (p *Processor) baseURLFor(provider string) string {
	switch provider {
	case "openai":
		return p.cfg.AI.OpenAI.BaseURL
	case "anthropic":
		return p.cfg.AI.Anthropic.BaseURL
	case "google":
		return p.cfg.AI.Google.BaseURL
	}
	return ""
}

func (p *Processor) buildRequest(agent *model.Agent, input string) adapter.Request {
	system := agent.Config.SystemPrompt
	if system == "" {
		system = fmt.Sprintf("You are %s, %s", agent.Name, agent.Description)
	}
	return adapter.Request{
		Model: agent.Config.Model,
		Messages: []adapter.Message{
			{Role: adapter.RoleSystem, Content: system},
			{Role: adapter.RoleUser, Content: input},
		},
		Temperature: agent.Config.Temperature,
		MaxTokens:   agent.Config.MaxTokens,
	}
}

// appendLog persists an execution log record. Log storage is best effort;
// a failure here never changes the task outcome. The ID stays empty so the
// repository mints one that sorts by creation time.
func (p *Processor) appendLog(ctx context.Context, job *model.Job, level model.LogLevel, msg string, meta map[string]any) {
	entry := &model.Log{
		Level:     level,
		Message:   msg,
		Metadata:  meta,
		TaskID:    job.TaskID,
		AgentID:   job.AgentID,
		CreatedAt: time.Now(),
	}
	if err := p.logs.Append(ctx, nil, entry); err != nil {
		p.log.Error().Err(err).Str("task_id", job.TaskID).Msg("failed to persist execution log")
	}
}
