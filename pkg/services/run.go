package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flows/pkg/eventbus"
	"github.com/dukex/flows/pkg/events"
	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence"
	"github.com/dukex/flows/pkg/workflow"
	"github.com/go-playground/validator/v10"
)

// DefaultRunListLimit bounds ListByWorkflow when no limit is given.
const DefaultRunListLimit = 50

type Run struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	matcher     *workflow.TriggerMatcher
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
	clock       func() time.Time
}

type RunOption func(*Run)

// WithRunPublisher publishes RunStarted for every created run.
func WithRunPublisher(publisher eventbus.EventPublisher) RunOption {
	return func(r *Run) { r.publisher = publisher }
}

func WithRunClock(clock func() time.Time) RunOption {
	return func(r *Run) { r.clock = clock }
}

// NewRun creates a new run service.
func NewRun(logger *slog.Logger, persistence persistence.Persistence, opts ...RunOption) *Run {
	r := &Run{
		logger:      logger.With("module", "run_service"),
		persistence: persistence,
		matcher:     workflow.NewTriggerMatcher(logger),
		validator:   validator.New(validator.WithRequiredStructEnabled()),
		clock:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// StartFromEvent creates one pending run per workflow whose trigger matches event. The run
// starts at the first action by lexorank, due after that action's wait. A workflow without
// actions still gets a run; the poller completes it.
func (r *Run) StartFromEvent(ctx context.Context, event *events.CartOrderCreated) ([]*models.WorkflowRun, error) {
	if event == nil {
		return nil, ErrInvalidEvent
	}

	err := r.validator.Struct(event)
	if err != nil {
		return nil, &ServiceError{Op: "StartFromEvent", Code: "INVALID_EVENT", Message: err.Error(), Err: fmt.Errorf("%w: %w", ErrInvalidEvent, err)}
	}

	candidates, err := r.persistence.Workflows().ListByTrigger(ctx, event.WorkspaceID, models.TriggerNewCartOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows for trigger: %w", err)
	}

	var (
		runs []*models.WorkflowRun
		errs []error
	)

	for _, match := range r.matcher.MatchCartOrder(event, candidates) {
		run := r.newRun(match.Workflow, event)

		err := r.persistence.Runs().Create(ctx, run)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to create run", "workflow_id", match.Workflow.ID, "error", err)
			errs = append(errs, fmt.Errorf("failed to create run for workflow %s: %w", match.Workflow.ID, err))

			continue
		}

		runs = append(runs, run)

		r.logger.InfoContext(ctx, "Started workflow run",
			"workflow_id", run.WorkflowID,
			"run_id", run.ID,
			"fan_id", run.TriggerFanID,
			"trigger_id", match.MatchedTrigger.ID,
			"current_action_id", run.CurrentActionID,
			"due_at", run.RunCurrentActionAt)

		r.publishStarted(ctx, run)
	}

	return runs, errors.Join(errs...)
}

func (r *Run) newRun(wf *models.Workflow, event *events.CartOrderCreated) *models.WorkflowRun {
	now := r.clock()
	run := &models.WorkflowRun{
		ID:                 newID(),
		WorkflowID:         wf.ID,
		WorkspaceID:        wf.WorkspaceID,
		TriggerFanID:       event.FanID,
		TriggerData:        event.TriggerData(),
		RunCurrentActionAt: now,
		Status:             models.RunStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if first := wf.FirstAction(); first != nil {
		run.CurrentActionID = first.ID
		run.RunCurrentActionAt = now.Add(first.WaitFor())
	}

	return run
}

func (r *Run) publishStarted(ctx context.Context, run *models.WorkflowRun) {
	if r.publisher == nil {
		return
	}

	err := r.publisher.Publish(ctx, run.ID, events.RunStarted{
		BaseEvent:  events.NewBaseEvent(events.RunStartedEvent, run.WorkspaceID),
		WorkflowID: run.WorkflowID,
		RunID:      run.ID,
		FanID:      run.TriggerFanID,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish run started", "run_id", run.ID, "error", err)
	}
}

// FetchByID retrieves a run by its ID.
func (r *Run) FetchByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	return r.persistence.Runs().GetByID(ctx, id)
}

// ListByWorkflow returns the newest runs of an existing workflow.
func (r *Run) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowRun, error) {
	_, err := r.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 500 {
		limit = DefaultRunListLimit
	}

	runs, err := r.persistence.Runs().ListByWorkflow(ctx, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// ListActions returns the action log of a run, oldest first.
func (r *Run) ListActions(ctx context.Context, runID string) ([]*models.WorkflowRunAction, error) {
	_, err := r.persistence.Runs().GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	records, err := r.persistence.RunActions().ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run actions: %w", err)
	}

	return records, nil
}

// Retry makes a failed or stuck run due now with its attempts reset.
func (r *Run) Retry(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	run, err := r.persistence.Runs().Retry(ctx, runID, r.clock())
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "Retrying workflow run", "run_id", run.ID, "current_action_id", run.CurrentActionID)

	return run, nil
}
