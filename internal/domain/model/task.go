package model

import "time"

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Terminal reports whether no further transition can happen automatically.
// A terminal task may still be reset to pending by an explicit retry.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Cancellable reports whether an external cancel request may target the task.
func (s TaskStatus) Cancellable() bool {
	return s == TaskStatusPending || s == TaskStatusRunning
}

// TaskOutput is what a completed task produced.
type TaskOutput struct {
	Content      string `json:"content"`
	FinishReason string `json:"finishReason"`
}

type Task struct {
	ID          string
	AgentID     string
	Title       string
	Input       string
	Priority    Priority
	Status      TaskStatus
	Output      *TaskOutput
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
