package models

import "time"

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// IsActive reports whether runs in this status are still polled.
func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusInProgress
}

// ActiveRunStatuses are the statuses selected by the poller.
func ActiveRunStatuses() []RunStatus {
	return []RunStatus{RunStatusPending, RunStatusInProgress}
}

// WorkflowRun is one execution of a workflow for the fan that triggered it.
type WorkflowRun struct {
	ID                 string         `json:"id"`
	WorkflowID         string         `json:"workflow_id"`
	WorkspaceID        string         `json:"workspace_id"`
	TriggerFanID       string         `json:"trigger_fan_id"`
	TriggerData        map[string]any `json:"trigger_data,omitempty"`
	CurrentActionID    string         `json:"current_action_id,omitempty"`
	RunCurrentActionAt time.Time      `json:"run_current_action_at"`
	Status             RunStatus      `json:"status"`
	Attempts           int            `json:"attempts"`
	LeaseOwner         string         `json:"lease_owner,omitempty"`
	LeaseExpiresAt     *time.Time     `json:"lease_expires_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// IsDue reports whether the run should be picked up at now.
func (r *WorkflowRun) IsDue(now time.Time) bool {
	return r.Status.IsActive() && r.RunCurrentActionAt.Before(now)
}

// IsLeased reports whether another worker holds a live lease at now.
func (r *WorkflowRun) IsLeased(now time.Time) bool {
	return r.LeaseOwner != "" && r.LeaseExpiresAt != nil && r.LeaseExpiresAt.After(now)
}

// RunTransition is everything that changes when a run records an action outcome.
// Persistence applies it atomically, guarded by LeaseOwner.
type RunTransition struct {
	RunID              string
	LeaseOwner         string
	Record             *WorkflowRunAction
	CurrentActionID    string
	RunCurrentActionAt time.Time
	Status             RunStatus
	Attempts           int
	CompletedAt        *time.Time
	UpdatedAt          time.Time

	// KeepLease keeps the lease so the same worker can cascade into the next action.
	KeepLease bool
}

// Apply copies the transition onto run.
func (t *RunTransition) Apply(run *WorkflowRun) {
	run.CurrentActionID = t.CurrentActionID
	run.RunCurrentActionAt = t.RunCurrentActionAt
	run.Status = t.Status
	run.Attempts = t.Attempts
	run.CompletedAt = t.CompletedAt
	run.UpdatedAt = t.UpdatedAt

	if !t.KeepLease {
		run.LeaseOwner = ""
		run.LeaseExpiresAt = nil
	}
}
