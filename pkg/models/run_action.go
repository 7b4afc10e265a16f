package models

import "time"

// RunActionStatus is the outcome of one attempted action.
type RunActionStatus string

const (
	RunActionStatusSuccess RunActionStatus = "success"
	RunActionStatusSkipped RunActionStatus = "skipped"
	RunActionStatusFailed  RunActionStatus = "failed"
)

// WorkflowRunAction is an append-only audit row for one attempted action.
type WorkflowRunAction struct {
	ID               string          `json:"id"`
	WorkflowRunID    string          `json:"workflow_run_id"`
	WorkflowActionID string          `json:"workflow_action_id"`
	Status           RunActionStatus `json:"status"`
	SkippedReason    string          `json:"skipped_reason,omitempty"`
	Error            string          `json:"error,omitempty"`
	Attempt          int             `json:"attempt"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Settled reports whether the action should not be executed again for the run.
func (a *WorkflowRunAction) Settled() bool {
	return a.Status == RunActionStatusSuccess || a.Status == RunActionStatusSkipped
}
