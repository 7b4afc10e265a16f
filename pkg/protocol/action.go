// Package protocol defines the contracts between the run executor and the action executors.
package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/flows/pkg/models"
)

// ActionInput carries what an executor needs to run one action of a run.
type ActionInput struct {
	Workflow *models.Workflow
	Action   *models.WorkflowAction
	Run      *models.WorkflowRun
	Now      time.Time
	Logger   *slog.Logger
}

// Outcome is the result of executing one action.
type Outcome struct {
	Status        models.RunActionStatus
	SkippedReason string
	Err           error

	// NextActionID jumps to the given action instead of the next one by lexorank.
	NextActionID string
}

// Success advances the run to the next action.
func Success() Outcome {
	return Outcome{Status: models.RunActionStatusSuccess}
}

// Jump advances the run to actionID. An empty actionID behaves like Success.
func Jump(actionID string) Outcome {
	return Outcome{Status: models.RunActionStatusSuccess, NextActionID: actionID}
}

// Skipped records that the action did not apply to the run.
func Skipped(reason string) Outcome {
	return Outcome{Status: models.RunActionStatusSkipped, SkippedReason: reason}
}

// Failed records an action error; the run is retried according to the retry policy.
func Failed(err error) Outcome {
	return Outcome{Status: models.RunActionStatusFailed, Err: err}
}

// Executor runs one action kind against its typed payload.
// A returned error means data the action depends on is missing; it is recorded as a failure
// and reported to the caller.
type Executor[P models.ActionPayload] interface {
	Execute(ctx context.Context, input ActionInput, payload P) (Outcome, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc[P models.ActionPayload] func(ctx context.Context, input ActionInput, payload P) (Outcome, error)

func (f ExecutorFunc[P]) Execute(ctx context.Context, input ActionInput, payload P) (Outcome, error) {
	return f(ctx, input, payload)
}
