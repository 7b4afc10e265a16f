// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flows/pkg/persistence"
	"github.com/dukex/flows/pkg/persistence/memory"
	"github.com/dukex/flows/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"postgres", "postgresql", "memory"}

// NewPersistence opens the store named by the scheme of databaseURL. A memory store loads
// seedPath when it is set.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL, seedPath string) (persistence.Persistence, error) {
	provider, err := parsePersistenceProvider(databaseURL)
	if err != nil {
		return nil, err
	}

	switch provider {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		store := memory.NewPersistence(logger)

		if seedPath != "" {
			if err := store.LoadSeed(ctx, seedPath); err != nil {
				return nil, err
			}
		}

		return store, nil
	}
}

func parsePersistenceProvider(databaseURL string) (string, error) {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "", fmt.Errorf("database URL %q has no scheme, supported: %s", databaseURL, strings.Join(supportedPersistenceProviders, ", "))
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider, nil
		}
	}

	return "", fmt.Errorf("unsupported persistence provider %q, supported: %s", provider, strings.Join(supportedPersistenceProviders, ", "))
}
