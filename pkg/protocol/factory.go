package protocol

import "github.com/dukex/flows/pkg/models"

// ActionFactory describes an action kind for the catalog.
type ActionFactory interface {
	// ID returns the action kind
	ID() models.ActionKind

	// Name returns the human-readable name
	Name() string

	// Description returns what the action does
	Description() string

	// Schema returns the JSON schema of the action config
	Schema() map[string]any
}

// ActionDescriptor is the serialized form of an ActionFactory.
type ActionDescriptor struct {
	ID          models.ActionKind `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Schema      map[string]any    `json:"schema"`
}

// Describe builds the descriptor of factory.
func Describe(factory ActionFactory) ActionDescriptor {
	return ActionDescriptor{
		ID:          factory.ID(),
		Name:        factory.Name(),
		Description: factory.Description(),
		Schema:      factory.Schema(),
	}
}
