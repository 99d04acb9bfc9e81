// Package queue implements the persistent priority task queue backing the
// execution engine. Redis is the single source of truth for job state; all
// workers and enqueue/cancel callers go through it.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"agenthub/internal/domain"
	"agenthub/internal/domain/model"
	"agenthub/internal/infra/logging"
	"agenthub/internal/infra/metrics"
)

// Handler processes one claimed job to completion. A nil error marks the
// job completed even when the task itself failed; returning an error is
// reserved for infrastructure faults and triggers the queue-level retry.
type Handler func(ctx context.Context, job *model.Job) (*model.JobResult, error)

// Options bound the queue's delivery and retention behaviour.
type Options struct {
	Name          string
	JobTimeout    time.Duration // per-job wall clock budget
	MaxAttempts   int           // queue-level delivery attempts
	Backoff       time.Duration // initial delay between delivery attempts
	PollInterval  time.Duration
	KeepCompleted int // retained history of successful jobs
	KeepFailed    int // retained history of failed jobs
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "ai-tasks"
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 5 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.KeepCompleted <= 0 {
		o.KeepCompleted = 100
	}
	if o.KeepFailed <= 0 {
		o.KeepFailed = 200
	}
	return o
}

// Stats is a point-in-time census of jobs by state.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Paused    int64 `json:"paused"`
}

// TaskQueue is a redis-backed priority queue keyed by task identity.
type TaskQueue struct {
	cli  *redis.Client
	opts Options
	log  *zerolog.Logger
	wg   sync.WaitGroup
}

func NewTaskQueue(cli *redis.Client, opts Options, log *zerolog.Logger) *TaskQueue {
	return &TaskQueue{cli: cli, opts: opts.withDefaults(), log: log}
}

// ---- keys ----

func (q *TaskQueue) key(suffix string) string { return "queue:" + q.opts.Name + ":" + suffix }

func (q *TaskQueue) jobsKey() string      { return q.key("jobs") }
func (q *TaskQueue) waitingKey() string   { return q.key("waiting") }
func (q *TaskQueue) pausedKey() string    { return q.key("paused") }
func (q *TaskQueue) delayedKey() string   { return q.key("delayed") }
func (q *TaskQueue) activeKey() string    { return q.key("active") }
func (q *TaskQueue) completedKey() string { return q.key("completed") }
func (q *TaskQueue) failedKey() string    { return q.key("failed") }
func (q *TaskQueue) seqKey() string       { return q.key("seq") }

// score ranks by priority first, then enqueue order within a tier.
func score(p model.Priority, seq int64) float64 {
	return float64(p.QueueRank())*1e12 + float64(seq)
}

// ---- enqueue ----

// Add enqueues a job under its task ID. A task that already has a waiting,
// delayed or active job cannot be enqueued again; a terminal record is
// overwritten so an explicit retry can re-admit the task.
func (q *TaskQueue) Add(ctx context.Context, job *model.Job) error {
	if job.TaskID == "" {
		return domain.ErrInvalidArgument
	}
	if !job.Priority.Valid() {
		job.Priority = model.PriorityNormal
	}

	if existing, err := q.loadJob(ctx, job.TaskID); err != nil {
		return err
	} else if existing != nil {
		switch existing.State {
		case model.JobStateCompleted, model.JobStateFailed:
			// stale history entry; evict before re-admitting
			q.cli.LRem(ctx, q.completedKey(), 0, job.TaskID)
			q.cli.LRem(ctx, q.failedKey(), 0, job.TaskID)
		default:
			return domain.ErrAlreadyExists
		}
	}

	seq, err := q.cli.Incr(ctx, q.seqKey()).Result()
	if err != nil {
		return err
	}
	job.Seq = seq
	job.State = model.JobStateWaiting
	job.AttemptsMade = 0
	job.EnqueuedAt = time.Now()

	if err := q.saveJob(ctx, job); err != nil {
		return err
	}
	if err := q.cli.ZAdd(ctx, q.waitingKey(), &redis.Z{
		Score:  score(job.Priority, seq),
		Member: job.TaskID,
	}).Err(); err != nil {
		return err
	}

	metrics.IncQueueJob(q.opts.Name, "added")
	q.log.Info().
		Str("task_id", job.TaskID).
		Str("agent_id", job.AgentID).
		Str("priority", string(job.Priority)).
		Msg("queue job added")
	return nil
}

// ---- worker pool ----

// Process starts exactly concurrency workers, each pulling the next eligible
// job by priority order and running the handler to completion before taking
// another. It blocks until ctx is cancelled and all workers have drained.
func (q *TaskQueue) Process(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.recoverStalled(ctx)

	for i := 0; i < concurrency; i++ {
		q.wg.Add(1)
		go func(worker int) {
			defer q.wg.Done()
			// worker index rides the context so every log line downstream
			// of this loop carries it, handler included
			wctx := logging.WithWorker(ctx, worker)
			log := logging.With(wctx, q.log)
			for {
				select {
				case <-wctx.Done():
					return
				default:
				}
				q.promoteDelayed(wctx)
				job, err := q.claim(wctx)
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("queue claim failed")
				}
				if job == nil {
					select {
					case <-wctx.Done():
						return
					case <-time.After(q.opts.PollInterval):
					}
					continue
				}
				q.runJob(wctx, job, handler)
			}
		}(i)
	}
	q.wg.Wait()
}

// recoverStalled re-admits jobs a crashed worker left behind in the active
// set, preserving at-least-once delivery.
func (q *TaskQueue) recoverStalled(ctx context.Context) {
	ids, err := q.cli.SMembers(ctx, q.activeKey()).Result()
	if err != nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil || job == nil {
			q.cli.SRem(ctx, q.activeKey(), id)
			continue
		}
		job.State = model.JobStateWaiting
		_ = q.saveJob(ctx, job)
		q.cli.ZAdd(ctx, q.waitingKey(), &redis.Z{Score: score(job.Priority, job.Seq), Member: id})
		q.cli.SRem(ctx, q.activeKey(), id)
		metrics.IncQueueJob(q.opts.Name, "stalled")
		q.log.Warn().Str("task_id", id).Msg("queue job stalled, re-admitted")
	}
}

// promoteDelayed moves due retry-delayed jobs back to the waiting set.
func (q *TaskQueue) promoteDelayed(ctx context.Context) {
	nowMs := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.cli.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf", Max: nowMs, Count: 16,
	}).Result()
	if err != nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if removed, _ := q.cli.ZRem(ctx, q.delayedKey(), id).Result(); removed == 0 {
			continue // another worker promoted it
		}
		job, err := q.loadJob(ctx, id)
		if err != nil || job == nil {
			continue
		}
		job.State = model.JobStateWaiting
		_ = q.saveJob(ctx, job)
		q.cli.ZAdd(ctx, q.waitingKey(), &redis.Z{Score: score(job.Priority, job.Seq), Member: id})
	}
}

// claim pops the best-ranked waiting job and marks it active.
func (q *TaskQueue) claim(ctx context.Context) (*model.Job, error) {
	popped, err := q.cli.ZPopMin(ctx, q.waitingKey(), 1).Result()
	if err != nil {
		return nil, err
	}
	if len(popped) == 0 {
		return nil, nil
	}
	id, _ := popped[0].Member.(string)
	job, err := q.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil // cancelled between pop and load
	}
	now := time.Now()
	job.State = model.JobStateActive
	job.ProcessedAt = &now
	if err := q.saveJob(ctx, job); err != nil {
		return nil, err
	}
	q.cli.SAdd(ctx, q.activeKey(), id)
	metrics.IncQueueJob(q.opts.Name, "processing")
	return job, nil
}

func (q *TaskQueue) runJob(ctx context.Context, job *model.Job, handler Handler) {
	log := logging.With(ctx, q.log)
	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, q.opts.JobTimeout)
	defer cancel()

	type outcome struct {
		result *model.JobResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		res, err := handler(tctx, job)
		done <- outcome{result: res, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-tctx.Done():
		// Job exceeded its wall-clock budget; the queue terminates it and
		// records an infrastructure failure regardless of the handler.
		res = outcome{err: fmt.Errorf("job timed out after %s", q.opts.JobTimeout)}
	}

	metrics.ObserveJobDuration(q.opts.Name, int(time.Since(start)/time.Millisecond))
	q.cli.SRem(ctx, q.activeKey(), job.TaskID)
	now := time.Now()

	if res.err == nil {
		job.State = model.JobStateCompleted
		job.Result = res.result
		job.Progress = 100
		job.FinishedAt = &now
		_ = q.saveJob(ctx, job)
		q.pushHistory(ctx, q.completedKey(), job.TaskID, q.opts.KeepCompleted)
		metrics.IncQueueJob(q.opts.Name, "completed")
		log.Info().Str("task_id", job.TaskID).
			Dur("duration", time.Since(start)).Msg("queue job completed")
		return
	}

	job.AttemptsMade++
	if job.AttemptsMade < q.opts.MaxAttempts {
		delay := q.opts.Backoff << uint(job.AttemptsMade-1)
		job.State = model.JobStateDelayed
		_ = q.saveJob(ctx, job)
		q.cli.ZAdd(ctx, q.delayedKey(), &redis.Z{
			Score:  float64(now.Add(delay).UnixMilli()),
			Member: job.TaskID,
		})
		metrics.IncQueueJob(q.opts.Name, "retried")
		log.Warn().Err(res.err).Str("task_id", job.TaskID).
			Int("attempt", job.AttemptsMade).Dur("delay", delay).
			Msg("queue job failed, retry scheduled")
		return
	}

	job.State = model.JobStateFailed
	job.FailedReason = res.err.Error()
	job.FinishedAt = &now
	_ = q.saveJob(ctx, job)
	q.pushHistory(ctx, q.failedKey(), job.TaskID, q.opts.KeepFailed)
	metrics.IncQueueJob(q.opts.Name, "failed")
	log.Error().Err(res.err).Str("task_id", job.TaskID).Msg("queue job failed permanently")
}

// pushHistory retains the most recent ids up to cap, evicting both the list
// entry and the job record of anything older.
func (q *TaskQueue) pushHistory(ctx context.Context, listKey, id string, cap int) {
	q.cli.LPush(ctx, listKey, id)
	for {
		n, err := q.cli.LLen(ctx, listKey).Result()
		if err != nil || n <= int64(cap) {
			return
		}
		old, err := q.cli.RPop(ctx, listKey).Result()
		if err != nil {
			return
		}
		q.cli.HDel(ctx, q.jobsKey(), old)
	}
}

// ---- external surface ----

// JobStatus reports the current lifecycle snapshot of a job, or
// domain.ErrNotFound if it was never enqueued or has been purged.
func (q *TaskQueue) JobStatus(ctx context.Context, taskID string) (*model.JobStatus, error) {
	job, err := q.loadJob(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domain.ErrNotFound
	}
	return &model.JobStatus{
		State:        job.State,
		Progress:     job.Progress,
		Result:       job.Result,
		FailedReason: job.FailedReason,
	}, nil
}

// Cancel removes a job that has not started running. It reports false for
// unknown jobs and for jobs already active or finished; cancelling running
// work is a task-level concern the queue knows nothing about.
func (q *TaskQueue) Cancel(ctx context.Context, taskID string) (bool, error) {
	removed := int64(0)
	for _, key := range []string{q.waitingKey(), q.pausedKey(), q.delayedKey()} {
		n, err := q.cli.ZRem(ctx, key, taskID).Result()
		if err != nil {
			return false, err
		}
		removed += n
	}
	if removed == 0 {
		return false, nil
	}
	q.cli.HDel(ctx, q.jobsKey(), taskID)
	metrics.IncQueueJob(q.opts.Name, "cancelled")
	q.log.Info().Str("task_id", taskID).Msg("queue job cancelled")
	return true, nil
}

// Retry re-admits a previously failed job under the same key.
func (q *TaskQueue) Retry(ctx context.Context, taskID string) (bool, error) {
	job, err := q.loadJob(ctx, taskID)
	if err != nil {
		return false, err
	}
	if job == nil || job.State != model.JobStateFailed {
		return false, nil
	}
	seq, err := q.cli.Incr(ctx, q.seqKey()).Result()
	if err != nil {
		return false, err
	}
	job.Seq = seq
	job.State = model.JobStateWaiting
	job.AttemptsMade = 0
	job.FailedReason = ""
	job.Result = nil
	job.FinishedAt = nil
	if err := q.saveJob(ctx, job); err != nil {
		return false, err
	}
	q.cli.LRem(ctx, q.failedKey(), 0, taskID)
	if err := q.cli.ZAdd(ctx, q.waitingKey(), &redis.Z{
		Score:  score(job.Priority, seq),
		Member: taskID,
	}).Err(); err != nil {
		return false, err
	}
	metrics.IncQueueJob(q.opts.Name, "retried")
	return true, nil
}

// GetStats returns a point-in-time census of the queue.
func (q *TaskQueue) GetStats(ctx context.Context) (*Stats, error) {
	var s Stats
	var err error
	if s.Waiting, err = q.cli.ZCard(ctx, q.waitingKey()).Result(); err != nil {
		return nil, err
	}
	if s.Paused, err = q.cli.ZCard(ctx, q.pausedKey()).Result(); err != nil {
		return nil, err
	}
	if s.Delayed, err = q.cli.ZCard(ctx, q.delayedKey()).Result(); err != nil {
		return nil, err
	}
	if s.Active, err = q.cli.SCard(ctx, q.activeKey()).Result(); err != nil {
		return nil, err
	}
	if s.Completed, err = q.cli.LLen(ctx, q.completedKey()).Result(); err != nil {
		return nil, err
	}
	if s.Failed, err = q.cli.LLen(ctx, q.failedKey()).Result(); err != nil {
		return nil, err
	}

	metrics.SetQueueDepth(q.opts.Name, "waiting", int(s.Waiting))
	metrics.SetQueueDepth(q.opts.Name, "active", int(s.Active))
	metrics.SetQueueDepth(q.opts.Name, "delayed", int(s.Delayed))
	return &s, nil
}

// Pause moves all waiting jobs aside so workers stop claiming new work;
// in-flight jobs run to completion.
func (q *TaskQueue) Pause(ctx context.Context) error {
	zs, err := q.cli.ZRangeWithScores(ctx, q.waitingKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	for _, z := range zs {
		if err := q.cli.ZAdd(ctx, q.pausedKey(), &z).Err(); err != nil {
			return err
		}
	}
	return q.cli.Del(ctx, q.waitingKey()).Err()
}

// Resume moves paused jobs back into the waiting set, keeping their ranks.
func (q *TaskQueue) Resume(ctx context.Context) error {
	zs, err := q.cli.ZRangeWithScores(ctx, q.pausedKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	for _, z := range zs {
		if err := q.cli.ZAdd(ctx, q.waitingKey(), &z).Err(); err != nil {
			return err
		}
	}
	return q.cli.Del(ctx, q.pausedKey()).Err()
}

// Drain discards every job that has not started running.
func (q *TaskQueue) Drain(ctx context.Context) error {
	for _, key := range []string{q.waitingKey(), q.pausedKey(), q.delayedKey()} {
		ids, err := q.cli.ZRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}
		for _, id := range ids {
			q.cli.HDel(ctx, q.jobsKey(), id)
		}
		if err := q.cli.Del(ctx, key).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Clean discards retained history for the given terminal state
// ("completed" or "failed").
func (q *TaskQueue) Clean(ctx context.Context, state string) error {
	key := q.completedKey()
	if state == "failed" {
		key = q.failedKey()
	}
	ids, err := q.cli.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		q.cli.HDel(ctx, q.jobsKey(), id)
	}
	return q.cli.Del(ctx, key).Err()
}

func (q *TaskQueue) Close() error { return q.cli.Close() }

// ---- storage ----

func (q *TaskQueue) saveJob(ctx context.Context, job *model.Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.cli.HSet(ctx, q.jobsKey(), job.TaskID, string(b)).Err()
}

func (q *TaskQueue) loadJob(ctx context.Context, taskID string) (*model.Job, error) {
	raw, err := q.cli.HGet(ctx, q.jobsKey(), taskID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var job model.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, err
	}
	return &job, nil
}
