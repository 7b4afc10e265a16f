package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence"
)

type runRepository struct {
	p *Persistence
}

func (r *runRepository) Create(_ context.Context, run *models.WorkflowRun) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.runs[run.ID] = cloneRun(run)

	return nil
}

func (r *runRepository) GetByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	run, ok := r.p.runs[id]
	if !ok {
		return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
	}

	return cloneRun(run), nil
}

func (r *runRepository) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.WorkflowRun, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	runs := make([]*models.WorkflowRun, 0)

	for _, run := range r.p.runs {
		if run.WorkflowID == workflowID {
			runs = append(runs, cloneRun(run))
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}

		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

func (r *runRepository) ClaimDue(_ context.Context, opts persistence.ClaimOptions) ([]*models.WorkflowRun, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	due := make([]*models.WorkflowRun, 0)

	for _, run := range r.p.runs {
		if !run.IsDue(opts.Now) || run.IsLeased(opts.Now) || slices.Contains(opts.ExcludeIDs, run.ID) {
			continue
		}

		workflow, ok := r.p.workflows[run.WorkflowID]
		if !ok || workflow.IsArchived() {
			continue
		}

		due = append(due, run)
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].RunCurrentActionAt.Equal(due[j].RunCurrentActionAt) {
			return due[i].ID < due[j].ID
		}

		return due[i].RunCurrentActionAt.Before(due[j].RunCurrentActionAt)
	})

	if opts.Limit > 0 && len(due) > opts.Limit {
		due = due[:opts.Limit]
	}

	expiresAt := opts.Now.Add(opts.LeaseFor)
	claimed := make([]*models.WorkflowRun, 0, len(due))

	for _, run := range due {
		run.LeaseOwner = opts.Owner
		run.LeaseExpiresAt = &expiresAt
		claimed = append(claimed, cloneRun(run))
	}

	return claimed, nil
}

func (r *runRepository) Release(_ context.Context, runID, owner string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	run, ok := r.p.runs[runID]
	if !ok {
		return persistence.NewRunError("Release", runID, persistence.ErrRunNotFound)
	}

	if run.LeaseOwner == owner {
		run.LeaseOwner = ""
		run.LeaseExpiresAt = nil
	}

	return nil
}

func (r *runRepository) ApplyTransition(_ context.Context, transition *models.RunTransition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	run, ok := r.p.runs[transition.RunID]
	if !ok {
		return persistence.NewRunError("ApplyTransition", transition.RunID, persistence.ErrRunNotFound)
	}

	if transition.LeaseOwner != "" && run.LeaseOwner != transition.LeaseOwner {
		return persistence.NewRunError("ApplyTransition", transition.RunID, persistence.ErrLeaseLost)
	}

	if transition.Record != nil {
		record := *transition.Record
		r.p.runActions[run.ID] = append(r.p.runActions[run.ID], &record)
	}

	transition.Apply(run)

	return nil
}

func (r *runRepository) Retry(_ context.Context, runID string, now time.Time) (*models.WorkflowRun, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	run, ok := r.p.runs[runID]
	if !ok {
		return nil, persistence.NewRunError("Retry", runID, persistence.ErrRunNotFound)
	}

	if run.Status != models.RunStatusFailed && !run.Status.IsActive() {
		return nil, persistence.NewRunError("Retry", runID, persistence.ErrRunNotRetryable)
	}

	if run.Status == models.RunStatusFailed {
		run.Status = models.RunStatusInProgress
		run.CompletedAt = nil
	}

	run.Attempts = 0
	run.RunCurrentActionAt = now
	run.UpdatedAt = now
	run.LeaseOwner = ""
	run.LeaseExpiresAt = nil

	return cloneRun(run), nil
}

type runActionRepository struct {
	p *Persistence
}

func (r *runActionRepository) ListByRun(_ context.Context, runID string) ([]*models.WorkflowRunAction, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	records := r.p.runActions[runID]
	result := make([]*models.WorkflowRunAction, len(records))

	for i, record := range records {
		clone := *record
		result[i] = &clone
	}

	return result, nil
}

func (r *runActionRepository) LastForAction(_ context.Context, runID, actionID string) (*models.WorkflowRunAction, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	records := r.p.runActions[runID]

	for i := len(records) - 1; i >= 0; i-- {
		if records[i].WorkflowActionID == actionID {
			clone := *records[i]

			return &clone, nil
		}
	}

	return nil, nil
}
