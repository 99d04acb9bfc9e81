package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrAgentInactive      = errors.New("agent is not active")
	ErrTaskNotCancellable = errors.New("task is not in a cancellable state")
	ErrTaskNotRetryable   = errors.New("task is not in a terminal state")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context for query")
)
