package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowArchived indicates the operation needs a workflow that is not archived.
	ErrWorkflowArchived = errors.New("workflow is archived")

	// ErrRunNotFound indicates a workflow run was not found by the given identifier.
	ErrRunNotFound = errors.New("workflow run not found")

	// ErrRunNotRetryable indicates the run is complete or cancelled.
	ErrRunNotRetryable = errors.New("workflow run cannot be retried")

	// ErrActionInUse indicates an action cannot be removed while it is current for an active run.
	ErrActionInUse = errors.New("action is the current action of an active run")

	// ErrIDConflict indicates a trigger or action ID already belongs to another workflow.
	ErrIDConflict = errors.New("id belongs to another workflow")

	// ErrLeaseLost indicates the caller no longer holds the lease of a run.
	ErrLeaseLost = errors.New("run lease lost")

	// ErrProviderAccountNotFound indicates the workspace has no account for the provider.
	ErrProviderAccountNotFound = errors.New("provider account not found")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Archive")
	WorkflowID string
	Err        error
	Message    string // Additional context message
}

func (e *WorkflowError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for workflow %s: %s (%v)", e.Op, e.WorkflowID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op    string
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{
		Op:    op,
		RunID: runID,
		Err:   err,
	}
}

// ActionInUseError lists the actions a definition update tried to remove while runs still point at them.
type ActionInUseError struct {
	WorkflowID string
	ActionIDs  []string
}

func (e *ActionInUseError) Error() string {
	return fmt.Sprintf("workflow %s: actions %v are current for active runs", e.WorkflowID, e.ActionIDs)
}

func (e *ActionInUseError) Unwrap() error {
	return ErrActionInUse
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
