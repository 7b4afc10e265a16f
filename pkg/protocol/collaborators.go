package protocol

import (
	"context"

	"github.com/dukex/flows/pkg/models"
)

// FanReader loads the fan that triggered a run.
type FanReader interface {
	GetFan(ctx context.Context, workspaceID, fanID string) (*models.Fan, error)
}

// ProviderAccountReader loads a workspace's third-party credentials.
type ProviderAccountReader interface {
	GetProviderAccount(ctx context.Context, workspaceID, provider string) (*models.ProviderAccount, error)
}
