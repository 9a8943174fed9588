package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrHandlerNotFound is recorded on a job whose command has no registered handler.
	ErrHandlerNotFound = errors.New("no handler registered for command")

	// ErrDuplicateHandler is returned when a command is registered twice.
	ErrDuplicateHandler = errors.New("handler already registered")

	// ErrStoreRequired is returned when no job store is provided.
	ErrStoreRequired = errors.New("job store required")

	// ErrRegistryRequired is returned when no registry is provided.
	ErrRegistryRequired = errors.New("command registry required")

	// ErrWorkerRunning is returned by Start when the worker is already running.
	ErrWorkerRunning = errors.New("worker already running")
)

// JobFailedError describes a job whose handler failed, panicked or was missing.
// Its text is what gets stored as the job's error message.
type JobFailedError struct {
	JobID       string
	Namespace   string
	CommandName string
	Err         error
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s (%s.%s): %v", e.JobID, e.Namespace, e.CommandName, e.Err)
}

func (e *JobFailedError) Unwrap() error {
	return e.Err
}
