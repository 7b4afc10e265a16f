package models

import (
	"errors"
	"fmt"

	"github.com/dukex/flows/pkg/lexorank"
)

// CheckActions verifies the ordering and branching invariants that struct tags cannot express:
// unique IDs, valid and unique lexoranks, payloads matching their kind and forward-only
// branch targets.
func (w *Workflow) CheckActions() error {
	var errs []error

	triggerIDs := make(map[string]struct{}, len(w.Triggers))

	for _, trigger := range w.Triggers {
		if trigger == nil {
			continue
		}

		if _, exists := triggerIDs[trigger.ID]; exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateTriggerID, trigger.ID))
		}

		triggerIDs[trigger.ID] = struct{}{}
	}

	ranks := make(map[string]string, len(w.Actions))
	actionIDs := make(map[string]struct{}, len(w.Actions))

	for _, action := range w.Actions {
		if _, exists := actionIDs[action.ID]; exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateActionID, action.ID))
		}

		actionIDs[action.ID] = struct{}{}

		err := lexorank.Validate(action.Lexorank)
		if err != nil {
			errs = append(errs, fmt.Errorf("action %s: %w", action.ID, err))
		}

		if other, exists := ranks[action.Lexorank]; exists {
			errs = append(errs, fmt.Errorf("%w: actions %s and %s share %q", ErrDuplicateLexorank, other, action.ID, action.Lexorank))
		}

		ranks[action.Lexorank] = action.ID

		if action.Payload != nil && action.Payload.Kind() != action.Action {
			errs = append(errs, fmt.Errorf("%w: action %s is %s but payload is %s", ErrPayloadMismatch, action.ID, action.Action, action.Payload.Kind()))
		}

		if action.WaitForSeconds < 0 {
			errs = append(errs, fmt.Errorf("action %s: wait_for_seconds must not be negative", action.ID))
		}
	}

	for _, action := range w.Actions {
		branch, ok := action.Payload.(*BooleanBranchAction)
		if !ok {
			continue
		}

		for _, targetID := range branch.Targets() {
			target := w.ActionByID(targetID)

			switch {
			case target == nil:
				errs = append(errs, fmt.Errorf("%w: action %s jumps to unknown action %s", ErrInvalidBranchTarget, action.ID, targetID))
			case target.Lexorank <= action.Lexorank:
				errs = append(errs, fmt.Errorf("%w: action %s jumps backwards to %s", ErrInvalidBranchTarget, action.ID, targetID))
			}
		}
	}

	return errors.Join(errs...)
}

// PayloadOf returns the action payload, falling back to the empty payload of its kind.
func PayloadOf(action *WorkflowAction) (ActionPayload, error) {
	if action.Payload != nil {
		return action.Payload, nil
	}

	return NewPayload(action.Action)
}
