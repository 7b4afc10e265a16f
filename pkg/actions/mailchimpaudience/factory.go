package mailchimpaudience

import "github.com/dukex/flows/pkg/models"

// ActionFactory describes the ADD_TO_MAILCHIMP_AUDIENCE action.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() models.ActionKind {
	return models.ActionKindAddToMailchimpAudience
}

func (*ActionFactory) Name() string {
	return "Add to Mailchimp audience"
}

func (*ActionFactory) Description() string {
	return "Subscribes the fan that triggered the run to a Mailchimp audience. Fans without email marketing consent are skipped."
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mailchimp_audience_id": map[string]any{
				"type":        "string",
				"title":       "Audience",
				"description": "ID of the Mailchimp audience (list) the fan is added to.",
				"minLength":   1,
			},
		},
		"required":             []string{"mailchimp_audience_id"},
		"additionalProperties": false,
	}
}
