// Package branch implements the BOOLEAN_BRANCH action. Conditions are govaluate expressions
// over the run data flattened into dotted parameter names, for example
// "[fan.email_marketing_opt_in] && [trigger.amount] > 50".
package branch

import (
	"context"
	"fmt"

	"github.com/Knetic/govaluate"
	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/protocol"
	"github.com/dukex/flows/pkg/template"
)

type Action struct {
	fans protocol.FanReader
}

func NewAction(fans protocol.FanReader) *Action {
	return &Action{fans: fans}
}

func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, payload *models.BooleanBranchAction) (protocol.Outcome, error) {
	fan, err := a.fans.GetFan(ctx, input.Run.WorkspaceID, input.Run.TriggerFanID)
	if err != nil {
		return protocol.Outcome{}, err
	}

	result, err := Evaluate(payload.Condition, Parameters(template.RunData(input.Workflow, input.Run, fan)))
	if err != nil {
		return protocol.Failed(err), nil
	}

	if input.Logger != nil {
		input.Logger.DebugContext(ctx, "Branch evaluated", "action_id", input.Action.ID, "result", result)
	}

	if result {
		return protocol.Jump(payload.IfTrueActionID), nil
	}

	return protocol.Jump(payload.IfFalseActionID), nil
}

// ParseCondition checks that condition is a valid expression.
func ParseCondition(condition string) error {
	_, err := govaluate.NewEvaluableExpression(condition)
	if err != nil {
		return fmt.Errorf("invalid condition %q: %w", condition, err)
	}

	return nil
}

// Evaluate evaluates condition against parameters; the result must be a boolean.
func Evaluate(condition string, parameters map[string]any) (bool, error) {
	expression, err := govaluate.NewEvaluableExpression(condition)
	if err != nil {
		return false, fmt.Errorf("invalid condition %q: %w", condition, err)
	}

	value, err := expression.Evaluate(parameters)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition %q: %w", condition, err)
	}

	result, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q evaluated to %T, expected bool", condition, value)
	}

	return result, nil
}

// Parameters flattens nested maps into dotted keys and converts numbers to float64.
func Parameters(data map[string]any) map[string]any {
	parameters := make(map[string]any)
	flatten("", data, parameters)

	return parameters
}

func flatten(prefix string, data map[string]any, into map[string]any) {
	for key, value := range data {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}

		switch v := value.(type) {
		case map[string]any:
			flatten(name, v, into)
		case int:
			into[name] = float64(v)
		case int32:
			into[name] = float64(v)
		case int64:
			into[name] = float64(v)
		case float32:
			into[name] = float64(v)
		default:
			into[name] = value
		}
	}
}
