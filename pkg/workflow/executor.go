// Package workflow advances workflow runs: it executes the current action of a run, records
// the outcome and moves the run to its next action.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flows/pkg/eventbus"
	"github.com/dukex/flows/pkg/events"
	"github.com/dukex/flows/pkg/metrics"
	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/otelhelper"
	"github.com/dukex/flows/pkg/persistence"
	"github.com/dukex/flows/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCascadeLimit bounds how many zero-wait actions one execution runs back to back.
const DefaultCascadeLimit = 100

// ErrCurrentActionMissing is returned when a run points at an action its workflow no longer has.
var ErrCurrentActionMissing = errors.New("current action not found in workflow")

// ActionDispatcher executes one action. *Dispatcher is the production implementation.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, input protocol.ActionInput) (protocol.Outcome, error)
}

// Executor runs the current action of a run and applies the resulting transition.
type Executor struct {
	logger     *slog.Logger
	workflows  persistence.WorkflowRepository
	runs       persistence.RunRepository
	runActions persistence.RunActionRepository
	dispatcher ActionDispatcher

	publisher    eventbus.EventPublisher
	metrics      *metrics.Collector
	tracer       trace.Tracer
	retry        RetryPolicy
	cascadeLimit int
	clock        func() time.Time
	newID        func() string
}

type ExecutorOption func(*Executor)

// WithPublisher publishes run lifecycle events.
func WithPublisher(publisher eventbus.EventPublisher) ExecutorOption {
	return func(e *Executor) { e.publisher = publisher }
}

func WithMetrics(collector *metrics.Collector) ExecutorOption {
	return func(e *Executor) { e.metrics = collector }
}

func WithTracer(tracer trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = tracer }
}

func WithRetryPolicy(policy RetryPolicy) ExecutorOption {
	return func(e *Executor) { e.retry = policy }
}

func WithCascadeLimit(limit int) ExecutorOption {
	return func(e *Executor) {
		if limit > 0 {
			e.cascadeLimit = limit
		}
	}
}

func WithClock(clock func() time.Time) ExecutorOption {
	return func(e *Executor) { e.clock = clock }
}

func WithIDGenerator(newID func() string) ExecutorOption {
	return func(e *Executor) { e.newID = newID }
}

func NewExecutor(
	logger *slog.Logger,
	store persistence.Persistence,
	dispatcher ActionDispatcher,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		logger:       logger.With("module", "run_executor"),
		workflows:    store.Workflows(),
		runs:         store.Runs(),
		runActions:   store.RunActions(),
		dispatcher:   dispatcher,
		tracer:       otelhelper.NoopTracer(),
		cascadeLimit: DefaultCascadeLimit,
		clock:        func() time.Time { return time.Now().UTC() },
		newID:        newID,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Execute runs the current action of run and keeps going while the next action is due
// immediately. run is updated in place with every applied transition.
func (e *Executor) Execute(ctx context.Context, run *models.WorkflowRun) error {
	logger := e.logger.With("run_id", run.ID, "workflow_id", run.WorkflowID)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow_run.execute",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.WorkflowIDKey, run.WorkflowID),
		attribute.String(otelhelper.WorkspaceIDKey, run.WorkspaceID),
	)
	defer span.End()

	err := e.execute(ctx, logger, run)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

func (e *Executor) execute(ctx context.Context, logger *slog.Logger, run *models.WorkflowRun) error {
	if !run.Status.IsActive() {
		e.release(ctx, logger, run)

		return nil
	}

	workflow, err := e.workflows.GetByID(ctx, run.WorkflowID)
	if err != nil {
		e.release(ctx, logger, run)

		return fmt.Errorf("failed to load workflow of run %s: %w", run.ID, err)
	}

	if workflow.IsArchived() {
		logger.InfoContext(ctx, "Workflow archived, leaving run")
		e.release(ctx, logger, run)

		return nil
	}

	for step := 1; ; step++ {
		cascade, err := e.step(ctx, logger, workflow, run, step < e.cascadeLimit)
		if err != nil {
			return err
		}

		if !cascade {
			return nil
		}
	}
}

// step executes the current action once. It reports whether the next action should run now.
func (e *Executor) step(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	run *models.WorkflowRun,
	allowCascade bool,
) (bool, error) {
	now := e.clock()

	if run.CurrentActionID == "" {
		logger.InfoContext(ctx, "Run has no current action, completing")

		transition := e.newTransition(run, nil, now)
		complete(transition, now)

		return false, e.apply(ctx, logger, workflow, nil, run, transition)
	}

	action := workflow.ActionByID(run.CurrentActionID)
	if action == nil {
		return false, e.failMissingAction(ctx, logger, workflow, run, now)
	}

	logger = logger.With("action_id", action.ID, "action", action.Action)

	outcome, record, execErr, err := e.run(ctx, logger, workflow, action, run, now)
	if err != nil {
		e.release(ctx, logger, run)

		return false, err
	}

	transition := e.transitionFor(ctx, logger, workflow, action, run, outcome, record, now, allowCascade)

	err = e.apply(ctx, logger, workflow, action, run, transition)
	if err != nil {
		return false, err
	}

	if execErr != nil {
		return false, fmt.Errorf("action %s of run %s: %w", action.ID, run.ID, execErr)
	}

	return transition.KeepLease, nil
}

// failMissingAction records a failed attempt for a current action the workflow no longer has,
// so the retry policy eventually fails the run.
func (e *Executor) failMissingAction(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	run *models.WorkflowRun,
	now time.Time,
) error {
	missing := fmt.Errorf("%w: run %s, action %s", ErrCurrentActionMissing, run.ID, run.CurrentActionID)

	logger = logger.With("action_id", run.CurrentActionID)
	logger.WarnContext(ctx, "Current action missing from workflow, recording failure", "attempt", run.Attempts+1)

	record := &models.WorkflowRunAction{
		ID:               e.newID(),
		WorkflowRunID:    run.ID,
		WorkflowActionID: run.CurrentActionID,
		Status:           models.RunActionStatusFailed,
		Attempt:          run.Attempts + 1,
		Error:            missing.Error(),
		CreatedAt:        now,
		FailedAt:         &now,
	}

	transition := e.transitionFor(ctx, logger, workflow, nil, run, protocol.Failed(missing), record, now, false)

	err := e.apply(ctx, logger, workflow, nil, run, transition)
	if err != nil {
		return err
	}

	return missing
}

// run executes action unless the run log already settled it. execErr is a missing-data error
// that was recorded as a failure; err aborts the step without recording anything.
func (e *Executor) run(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	action *models.WorkflowAction,
	run *models.WorkflowRun,
	now time.Time,
) (outcome protocol.Outcome, record *models.WorkflowRunAction, execErr, err error) {
	// Branches have no side effect and must be evaluated again to know their target.
	if action.Action != models.ActionKindBooleanBranch {
		last, err := e.runActions.LastForAction(ctx, run.ID, action.ID)
		if err != nil {
			return protocol.Outcome{}, nil, nil, fmt.Errorf("failed to load run log of run %s: %w", run.ID, err)
		}

		if last != nil && last.Settled() {
			logger.InfoContext(ctx, "Action already settled, advancing without executing", "status", last.Status)

			return protocol.Outcome{Status: last.Status, SkippedReason: last.SkippedReason}, nil, nil, nil
		}
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow_run.action",
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionKindKey, string(action.Action)),
	)
	defer span.End()

	started := time.Now()

	outcome, execErr = e.dispatcher.Dispatch(ctx, protocol.ActionInput{
		Workflow: workflow,
		Action:   action,
		Run:      run,
		Now:      now,
		Logger:   logger,
	})
	if execErr != nil {
		outcome = protocol.Failed(execErr)
	}

	if outcome.Status == "" {
		outcome.Status = models.RunActionStatusSuccess
	}

	span.SetAttributes(attribute.String(otelhelper.ActionStatusKey, string(outcome.Status)))

	if outcome.Err != nil {
		otelhelper.SetError(span, outcome.Err)
	}

	if e.metrics != nil {
		e.metrics.ObserveAction(string(action.Action), string(outcome.Status), time.Since(started))
	}

	record = &models.WorkflowRunAction{
		ID:               e.newID(),
		WorkflowRunID:    run.ID,
		WorkflowActionID: action.ID,
		Status:           outcome.Status,
		SkippedReason:    outcome.SkippedReason,
		Attempt:          run.Attempts + 1,
		CreatedAt:        now,
	}

	switch outcome.Status {
	case models.RunActionStatusFailed:
		record.FailedAt = &now

		if outcome.Err != nil {
			record.Error = outcome.Err.Error()
		}

		logger.WarnContext(ctx, "Action failed", "attempt", record.Attempt, "error", record.Error)
	case models.RunActionStatusSkipped:
		record.CompletedAt = &now

		logger.InfoContext(ctx, "Action skipped", "reason", record.SkippedReason)
	default:
		record.CompletedAt = &now

		logger.InfoContext(ctx, "Action succeeded")
	}

	return outcome, record, execErr, nil
}

func (e *Executor) newTransition(run *models.WorkflowRun, record *models.WorkflowRunAction, now time.Time) *models.RunTransition {
	return &models.RunTransition{
		RunID:              run.ID,
		LeaseOwner:         run.LeaseOwner,
		Record:             record,
		CurrentActionID:    run.CurrentActionID,
		RunCurrentActionAt: run.RunCurrentActionAt,
		Status:             run.Status,
		Attempts:           run.Attempts,
		UpdatedAt:          now,
	}
}

func (e *Executor) transitionFor(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	action *models.WorkflowAction,
	run *models.WorkflowRun,
	outcome protocol.Outcome,
	record *models.WorkflowRunAction,
	now time.Time,
	allowCascade bool,
) *models.RunTransition {
	transition := e.newTransition(run, record, now)

	switch outcome.Status {
	case models.RunActionStatusFailed:
		transition.Status = models.RunStatusInProgress
		transition.Attempts = run.Attempts + 1

		if e.retry.Exhausted(transition.Attempts) {
			logger.WarnContext(ctx, "Retries exhausted, failing run", "attempts", transition.Attempts)

			transition.Status = models.RunStatusFailed
			transition.CompletedAt = &now

			return transition
		}

		transition.RunCurrentActionAt = e.retry.NextAttemptAt(run.RunCurrentActionAt, now, transition.Attempts)

		return transition
	case models.RunActionStatusSkipped:
		if action.SkipPolicy() == models.SkipStop {
			logger.InfoContext(ctx, "Skip stops the run")
			complete(transition, now)

			return transition
		}
	}

	next := e.nextAction(ctx, logger, workflow, action, outcome)
	if next == nil {
		complete(transition, now)

		return transition
	}

	transition.CurrentActionID = next.ID
	transition.Status = models.RunStatusInProgress
	transition.Attempts = 0
	transition.RunCurrentActionAt = now.Add(next.WaitFor())

	due := next.WaitFor() <= 0
	transition.KeepLease = due && allowCascade

	if due && !allowCascade {
		logger.WarnContext(ctx, "Cascade limit reached, leaving the rest for the next poll", "limit", e.cascadeLimit)
	}

	return transition
}

func (e *Executor) nextAction(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	action *models.WorkflowAction,
	outcome protocol.Outcome,
) *models.WorkflowAction {
	if outcome.NextActionID == "" {
		return workflow.NextAction(action.Lexorank)
	}

	target := workflow.ActionByID(outcome.NextActionID)
	if target == nil || target.Lexorank <= action.Lexorank {
		logger.WarnContext(ctx, "Ignoring invalid jump target", "target", outcome.NextActionID)

		return workflow.NextAction(action.Lexorank)
	}

	return target
}

func complete(transition *models.RunTransition, now time.Time) {
	transition.Status = models.RunStatusComplete
	transition.CompletedAt = &now
	transition.KeepLease = false
}

func (e *Executor) apply(
	ctx context.Context,
	logger *slog.Logger,
	workflow *models.Workflow,
	action *models.WorkflowAction,
	run *models.WorkflowRun,
	transition *models.RunTransition,
) error {
	err := e.runs.ApplyTransition(ctx, transition)
	if err != nil {
		if errors.Is(err, persistence.ErrLeaseLost) {
			logger.WarnContext(ctx, "Lease lost, transition dropped")
		}

		return fmt.Errorf("failed to apply transition of run %s: %w", run.ID, err)
	}

	transition.Apply(run)

	if record := transition.Record; record != nil && record.Status == models.RunActionStatusFailed {
		kind := ""
		if action != nil {
			kind = string(action.Action)
		}

		e.publish(ctx, logger, run.ID, events.RunActionFailed{
			BaseEvent:  events.NewBaseEvent(events.RunActionFailedEvent, run.WorkspaceID),
			WorkflowID: workflow.ID,
			RunID:      run.ID,
			ActionID:   record.WorkflowActionID,
			Action:     kind,
			Attempt:    record.Attempt,
			Error:      record.Error,
		})
	}

	if !run.Status.IsActive() {
		logger.InfoContext(ctx, "Run finished", "status", run.Status)

		if e.metrics != nil {
			e.metrics.ObserveRunFinished(string(run.Status))
		}

		completedAt := transition.UpdatedAt
		if run.CompletedAt != nil {
			completedAt = *run.CompletedAt
		}

		e.publish(ctx, logger, run.ID, events.RunCompleted{
			BaseEvent:   events.NewBaseEvent(events.RunCompletedEvent, run.WorkspaceID),
			WorkflowID:  workflow.ID,
			RunID:       run.ID,
			Status:      string(run.Status),
			CompletedAt: completedAt,
		})
	}

	return nil
}

func (e *Executor) publish(ctx context.Context, logger *slog.Logger, key string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, key, event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func (e *Executor) release(ctx context.Context, logger *slog.Logger, run *models.WorkflowRun) {
	if run.LeaseOwner == "" {
		return
	}

	err := e.runs.Release(ctx, run.ID, run.LeaseOwner)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to release run lease", "error", err)

		return
	}

	run.LeaseOwner = ""
	run.LeaseExpiresAt = nil
}
