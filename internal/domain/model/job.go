package model

import "time"

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// QueueRank maps a priority to its queue rank; a smaller rank is served first.
func (p Priority) QueueRank() int {
	switch p {
	case PriorityUrgent:
		return 1
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 3
	case PriorityLow:
		return 4
	default:
		return 3
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateDelayed   JobState = "delayed"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Job is one queued unit of work for a task. The task ID doubles as the
// queue job key, so a task can never be enqueued twice while a prior job
// for it is still waiting or active.
type Job struct {
	TaskID       string     `json:"taskId"`
	AgentID      string     `json:"agentId"`
	Input        string     `json:"input"`
	Priority     Priority   `json:"priority"`
	State        JobState   `json:"state"`
	Seq          int64      `json:"seq"`
	AttemptsMade int        `json:"attemptsMade"`
	Progress     int        `json:"progress"`
	FailedReason string     `json:"failedReason,omitempty"`
	Result       *JobResult `json:"result,omitempty"`
	EnqueuedAt   time.Time  `json:"enqueuedAt"`
	ProcessedAt  *time.Time `json:"processedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// JobUsage mirrors the usage block of the job result payload handed back
// to the task CRUD/API layer.
type JobUsage struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	TotalTokens      int     `json:"totalTokens"`
	Cost             float64 `json:"cost"`
}

// JobResult is the bookkeeping payload a handler returns to the queue.
type JobResult struct {
	TaskID  string      `json:"taskId"`
	Success bool        `json:"success"`
	Output  *TaskOutput `json:"output,omitempty"`
	Error   string      `json:"error,omitempty"`
	Usage   *JobUsage   `json:"usage,omitempty"`
}

// JobStatus is the externally observable snapshot of a job.
type JobStatus struct {
	State        JobState   `json:"state"`
	Progress     int        `json:"progress"`
	Result       *JobResult `json:"result,omitempty"`
	FailedReason string     `json:"failedReason,omitempty"`
}
