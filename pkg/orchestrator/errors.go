package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTask is returned by Submit for an empty task.
	ErrNoTask = errors.New("No task provided") //nolint:staticcheck // message is part of the API
	// ErrNoActiveTask is returned by Cancel, Pause and Resume when nothing is running.
	ErrNoActiveTask = errors.New("No active task found") //nolint:staticcheck // message is part of the API
	// ErrAgentNotStarted is returned by Pause and Resume before the live
	// task's agent exists.
	ErrAgentNotStarted = errors.New("Agent has not started yet") //nolint:staticcheck // message is part of the API
	// ErrShuttingDown is returned by Submit after Shutdown.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// TaskRunningError rejects a submission while the agent slot is taken.
type TaskRunningError struct {
	CurrentSession string
}

func (e *TaskRunningError) Error() string {
	return "Another task is currently running. Please wait for it to complete or stop it first."
}

// SessionMismatchError rejects a control request for a session that is not the live one.
type SessionMismatchError struct {
	Current   string
	Requested string
}

func (e *SessionMismatchError) Error() string {
	return fmt.Sprintf("Session ID mismatch. Current session is %s, not %s", e.Current, e.Requested)
}

// NoResultsError is returned by Result when the history file is absent.
type NoResultsError struct {
	SessionID string
}

func (e *NoResultsError) Error() string {
	return fmt.Sprintf("No results found for session ID: %s", e.SessionID)
}

// CorruptHistoryError is returned by Result when the history file does not parse.
type CorruptHistoryError struct {
	SessionID string
	Err       error
}

func (e *CorruptHistoryError) Error() string {
	return fmt.Sprintf("Failed to parse history file for session %s", e.SessionID)
}

func (e *CorruptHistoryError) Unwrap() error {
	return e.Err
}
