package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence"
)

// FanRepository reads fans. The table is owned by the fan management service.
type FanRepository struct {
	db *sql.DB
}

func NewFanRepository(db *sql.DB) *FanRepository {
	return &FanRepository{db: db}
}

func (r *FanRepository) GetFan(ctx context.Context, workspaceID, fanID string) (*models.Fan, error) {
	var (
		fan        models.Fan
		attributes []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, email, first_name, last_name, email_marketing_opt_in, attributes
		FROM fans
		WHERE id = $1 AND workspace_id = $2
	`, fanID, workspaceID).Scan(
		&fan.ID,
		&fan.WorkspaceID,
		&fan.Email,
		&fan.FirstName,
		&fan.LastName,
		&fan.EmailMarketingOptIn,
		&attributes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrFanNotFound, fanID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load fan %s: %w", fanID, err)
	}

	if len(attributes) > 0 {
		err = json.Unmarshal(attributes, &fan.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes of fan %s: %w", fanID, err)
		}
	}

	return &fan, nil
}

// ProviderAccountRepository reads third-party credentials of workspaces.
type ProviderAccountRepository struct {
	db *sql.DB
}

func NewProviderAccountRepository(db *sql.DB) *ProviderAccountRepository {
	return &ProviderAccountRepository{db: db}
}

func (r *ProviderAccountRepository) GetProviderAccount(ctx context.Context, workspaceID, provider string) (*models.ProviderAccount, error) {
	var account models.ProviderAccount

	err := r.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, provider, access_token, server
		FROM provider_accounts
		WHERE workspace_id = $1 AND provider = $2
	`, workspaceID, provider).Scan(
		&account.ID,
		&account.WorkspaceID,
		&account.Provider,
		&account.AccessToken,
		&account.Server,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s for workspace %s", persistence.ErrProviderAccountNotFound, provider, workspaceID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load %s account of workspace %s: %w", provider, workspaceID, err)
	}

	return &account, nil
}
