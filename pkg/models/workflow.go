// Package models defines the core domain models for workflow automations and their runs.
package models

import (
	"sort"
	"time"
)

// TriggerType identifies the event that starts a workflow run.
type TriggerType string

const (
	TriggerNewCartOrder TriggerType = "NEW_CART_ORDER"
)

// Workflow is a named automation owned by one workspace.
type Workflow struct {
	ID          string             `json:"id"`
	WorkspaceID string             `json:"workspace_id"          validate:"required"`
	Name        string             `json:"name"                  validate:"required,min=3"`
	Description string             `json:"description"`
	Triggers    []*WorkflowTrigger `json:"triggers"              validate:"dive"`
	Actions     []*WorkflowAction  `json:"actions"               validate:"dive"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	ArchivedAt  *time.Time         `json:"archived_at,omitempty"`
}

// WorkflowTrigger is an entry condition that can instantiate a run.
type WorkflowTrigger struct {
	ID           string      `json:"id"`
	WorkflowID   string      `json:"workflow_id"`
	Trigger      TriggerType `json:"trigger"                  validate:"required,oneof=NEW_CART_ORDER"`
	CartFunnelID *string     `json:"cart_funnel_id,omitempty"`
}

// IsArchived reports whether the workflow was soft-deleted.
func (w *Workflow) IsArchived() bool {
	return w.ArchivedAt != nil
}

// SortedActions returns the actions ordered by lexorank.
func (w *Workflow) SortedActions() []*WorkflowAction {
	actions := make([]*WorkflowAction, len(w.Actions))
	copy(actions, w.Actions)

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Lexorank < actions[j].Lexorank
	})

	return actions
}

// ActionByID returns the action with the given ID or nil.
func (w *Workflow) ActionByID(id string) *WorkflowAction {
	for _, action := range w.Actions {
		if action.ID == id {
			return action
		}
	}

	return nil
}

// FirstAction returns the action with the smallest lexorank, or nil for an empty workflow.
func (w *Workflow) FirstAction() *WorkflowAction {
	var first *WorkflowAction

	for _, action := range w.Actions {
		if first == nil || action.Lexorank < first.Lexorank {
			first = action
		}
	}

	return first
}

// NextAction returns the action with the smallest lexorank strictly greater than lexorank.
func (w *Workflow) NextAction(lexorank string) *WorkflowAction {
	var next *WorkflowAction

	for _, action := range w.Actions {
		if action.Lexorank <= lexorank {
			continue
		}

		if next == nil || action.Lexorank < next.Lexorank {
			next = action
		}
	}

	return next
}
