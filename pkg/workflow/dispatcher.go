package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/protocol"
)

// ErrNoExecutor is returned when the dispatcher has no executor for an action kind.
var ErrNoExecutor = errors.New("no executor registered for action kind")

// Dispatcher routes an action to the executor of its payload variant.
type Dispatcher struct {
	Wait                   protocol.Executor[*models.WaitAction]
	AddToMailchimpAudience protocol.Executor[*models.AddToMailchimpAudienceAction]
	SendEmail              protocol.Executor[*models.SendEmailAction]
	BooleanBranch          protocol.Executor[*models.BooleanBranchAction]
}

// Dispatch executes input.Action. The error result means missing data, see protocol.Executor.
func (d *Dispatcher) Dispatch(ctx context.Context, input protocol.ActionInput) (protocol.Outcome, error) {
	payload, err := models.PayloadOf(input.Action)
	if err != nil {
		return protocol.Outcome{}, err
	}

	visitor := &dispatchVisitor{ctx: ctx, input: input, dispatcher: d}

	err = payload.Accept(visitor)
	if err != nil {
		return protocol.Outcome{}, err
	}

	return visitor.outcome, nil
}

type dispatchVisitor struct {
	ctx        context.Context
	input      protocol.ActionInput
	dispatcher *Dispatcher
	outcome    protocol.Outcome
}

func (v *dispatchVisitor) VisitWait(payload *models.WaitAction) error {
	return v.run(execute(v.ctx, v.dispatcher.Wait, v.input, payload))
}

func (v *dispatchVisitor) VisitAddToMailchimpAudience(payload *models.AddToMailchimpAudienceAction) error {
	return v.run(execute(v.ctx, v.dispatcher.AddToMailchimpAudience, v.input, payload))
}

func (v *dispatchVisitor) VisitSendEmail(payload *models.SendEmailAction) error {
	return v.run(execute(v.ctx, v.dispatcher.SendEmail, v.input, payload))
}

func (v *dispatchVisitor) VisitBooleanBranch(payload *models.BooleanBranchAction) error {
	return v.run(execute(v.ctx, v.dispatcher.BooleanBranch, v.input, payload))
}

func (v *dispatchVisitor) run(outcome protocol.Outcome, err error) error {
	v.outcome = outcome

	return err
}

func execute[P models.ActionPayload](
	ctx context.Context,
	executor protocol.Executor[P],
	input protocol.ActionInput,
	payload P,
) (protocol.Outcome, error) {
	if executor == nil {
		return protocol.Outcome{}, fmt.Errorf("%w: %s", ErrNoExecutor, payload.Kind())
	}

	return executor.Execute(ctx, input, payload)
}
