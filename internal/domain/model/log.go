package model

import "time"

type LogLevel string

const (
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// Log is one persisted execution log record, attached to a task and agent.
// Metadata carries arbitrary structured context (provider, model, usage).
type Log struct {
	ID        string
	Level     LogLevel
	Message   string
	Metadata  map[string]any
	TaskID    string
	AgentID   string
	CreatedAt time.Time
}
