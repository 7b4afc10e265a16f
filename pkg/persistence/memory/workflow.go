package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence"
)

type workflowRepository struct {
	p *Persistence
}

func (r *workflowRepository) List(_ context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflows := make([]*models.Workflow, 0, len(r.p.workflows))

	for _, workflow := range r.p.workflows {
		if filter.WorkspaceID != "" && workflow.WorkspaceID != filter.WorkspaceID {
			continue
		}

		if workflow.IsArchived() && !filter.IncludeArchived {
			continue
		}

		workflows = append(workflows, cloneWorkflow(workflow))
	}

	sortWorkflows(workflows)

	return workflows, nil
}

func (r *workflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflow, ok := r.p.workflows[id]
	if !ok {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return cloneWorkflow(workflow), nil
}

func (r *workflowRepository) ListByTrigger(_ context.Context, workspaceID string, trigger models.TriggerType) ([]*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var workflows []*models.Workflow

	for _, workflow := range r.p.workflows {
		if workflow.WorkspaceID != workspaceID || workflow.IsArchived() {
			continue
		}

		hasTrigger := slices.ContainsFunc(workflow.Triggers, func(t *models.WorkflowTrigger) bool {
			return t.Trigger == trigger
		})
		if hasTrigger {
			workflows = append(workflows, cloneWorkflow(workflow))
		}
	}

	sortWorkflows(workflows)

	return workflows, nil
}

func (r *workflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if existing, ok := r.p.workflows[workflow.ID]; ok {
		inUse := r.p.actionsInUse(existing, workflow)
		if len(inUse) > 0 {
			return &persistence.WorkflowError{
				Op:         "Save",
				WorkflowID: workflow.ID,
				Err:        &persistence.ActionInUseError{WorkflowID: workflow.ID, ActionIDs: inUse},
			}
		}
	}

	err := r.p.checkOwnedIDs(workflow)
	if err != nil {
		return err
	}

	stored := cloneWorkflow(workflow)
	for _, trigger := range stored.Triggers {
		trigger.WorkflowID = stored.ID
	}

	for _, action := range stored.Actions {
		action.WorkflowID = stored.ID
	}

	r.p.workflows[stored.ID] = stored

	return nil
}

// checkOwnedIDs rejects trigger and action IDs stored under a different workflow.
func (p *Persistence) checkOwnedIDs(workflow *models.Workflow) error {
	for _, other := range p.workflows {
		if other.ID == workflow.ID {
			continue
		}

		for _, trigger := range workflow.Triggers {
			for _, owned := range other.Triggers {
				if owned.ID == trigger.ID {
					return fmt.Errorf("%w: trigger %s", persistence.ErrIDConflict, trigger.ID)
				}
			}
		}

		for _, action := range workflow.Actions {
			if other.ActionByID(action.ID) != nil {
				return fmt.Errorf("%w: action %s", persistence.ErrIDConflict, action.ID)
			}
		}
	}

	return nil
}

func (r *workflowRepository) Archive(_ context.Context, id string, at time.Time) (int, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflow, ok := r.p.workflows[id]
	if !ok {
		return 0, persistence.NewWorkflowError("Archive", id, persistence.ErrWorkflowNotFound)
	}

	if workflow.ArchivedAt == nil {
		archivedAt := at
		workflow.ArchivedAt = &archivedAt
		workflow.UpdatedAt = at
	}

	cancelled := 0

	for _, run := range r.p.runs {
		if run.WorkflowID != id || !run.Status.IsActive() {
			continue
		}

		completedAt := at
		run.Status = models.RunStatusCancelled
		run.CompletedAt = &completedAt
		run.UpdatedAt = at
		run.LeaseOwner = ""
		run.LeaseExpiresAt = nil
		cancelled++
	}

	return cancelled, nil
}

// actionsInUse returns the actions of existing that updated drops while an active run points at them.
// Callers hold p.mu.
func (p *Persistence) actionsInUse(existing, updated *models.Workflow) []string {
	var inUse []string

	for _, action := range existing.Actions {
		if updated.ActionByID(action.ID) != nil {
			continue
		}

		for _, run := range p.runs {
			if run.WorkflowID == existing.ID && run.Status.IsActive() && run.CurrentActionID == action.ID {
				inUse = append(inUse, action.ID)

				break
			}
		}
	}

	return inUse
}

func sortWorkflows(workflows []*models.Workflow) {
	sort.Slice(workflows, func(i, j int) bool {
		if workflows[i].CreatedAt.Equal(workflows[j].CreatedAt) {
			return workflows[i].ID < workflows[j].ID
		}

		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})
}
