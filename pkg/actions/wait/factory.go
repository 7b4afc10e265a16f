package wait

import "github.com/dukex/flows/pkg/models"

// ActionFactory describes the WAIT action.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() models.ActionKind {
	return models.ActionKindWait
}

func (*ActionFactory) Name() string {
	return "Wait"
}

func (*ActionFactory) Description() string {
	return "Pauses the run. The duration is set by the action's wait_for_seconds."
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": false,
	}
}
