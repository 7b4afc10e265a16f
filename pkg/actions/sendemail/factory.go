package sendemail

import "github.com/dukex/flows/pkg/models"

// ActionFactory describes the SEND_EMAIL action.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() models.ActionKind {
	return models.ActionKindSendEmail
}

func (*ActionFactory) Name() string {
	return "Send email"
}

func (*ActionFactory) Description() string {
	return "Sends an email to the fan that triggered the run. Subject and body are Go templates over fan, trigger, workflow and run data."
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"from": map[string]any{
				"type":        "string",
				"format":      "email",
				"description": "Sender address. Defaults to the configured sender.",
			},
			"subject": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Email subject template.",
				"examples":    []string{"Thanks for your order, {{ .fan.first_name }}!"},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"minLength":   1,
				"description": "Plain-text email body template.",
				"examples":    []string{"Your order {{ .trigger.order_id }} is confirmed."},
			},
		},
		"required":             []string{"subject", "body"},
		"additionalProperties": false,
	}
}
