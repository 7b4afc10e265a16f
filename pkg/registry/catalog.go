package registry

import (
	"log/slog"

	"github.com/dukex/flows/pkg/actions/branch"
	"github.com/dukex/flows/pkg/actions/mailchimpaudience"
	"github.com/dukex/flows/pkg/actions/sendemail"
	"github.com/dukex/flows/pkg/actions/wait"
	"github.com/dukex/flows/pkg/protocol"
)

// DefaultFactories returns the factories of every built-in action.
func DefaultFactories() []protocol.ActionFactory {
	return []protocol.ActionFactory{
		wait.NewActionFactory(),
		mailchimpaudience.NewActionFactory(),
		sendemail.NewActionFactory(),
		branch.NewActionFactory(),
	}
}

// NewDefaultRegistry returns a registry with every built-in action registered.
func NewDefaultRegistry(logger *slog.Logger) (*Registry, error) {
	registry := NewRegistry(logger)

	for _, factory := range DefaultFactories() {
		if err := registry.RegisterAction(factory); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
