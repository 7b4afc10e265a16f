// Package wait implements the WAIT action. The delay itself is applied by the run executor
// when a run enters the action; executing it has no side effect.
package wait

import (
	"context"

	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/protocol"
)

type Action struct{}

func NewAction() *Action {
	return &Action{}
}

func (*Action) Execute(_ context.Context, input protocol.ActionInput, _ *models.WaitAction) (protocol.Outcome, error) {
	if input.Logger != nil {
		input.Logger.Debug("Wait elapsed", "action_id", input.Action.ID)
	}

	return protocol.Success(), nil
}
