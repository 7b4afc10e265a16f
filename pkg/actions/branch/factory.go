package branch

import "github.com/dukex/flows/pkg/models"

// ActionFactory describes the BOOLEAN_BRANCH action.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() models.ActionKind {
	return models.ActionKindBooleanBranch
}

func (*ActionFactory) Name() string {
	return "Boolean branch"
}

func (*ActionFactory) Description() string {
	return "Evaluates a condition over fan and trigger data and continues with one of two later actions."
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"format":      "code",
				"minLength":   1,
				"description": "Boolean expression. Parameters are dotted paths in brackets.",
				"examples": []string{
					"[fan.email_marketing_opt_in] == true",
					"[trigger.amount] >= 100",
				},
			},
			"if_true_action_id": map[string]any{
				"type":        "string",
				"description": "Action to continue with when the condition holds. Empty continues with the next action.",
			},
			"if_false_action_id": map[string]any{
				"type":        "string",
				"description": "Action to continue with when the condition does not hold. Empty continues with the next action.",
			},
		},
		"required":             []string{"condition"},
		"additionalProperties": false,
	}
}
