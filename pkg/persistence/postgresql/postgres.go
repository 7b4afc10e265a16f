// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flows/pkg/persistence"
	"github.com/dukex/flows/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	workflows  *WorkflowRepository
	runs       *RunRepository
	runActions *RunActionRepository
	fans       *FanRepository
	accounts   *ProviderAccountRepository
}

// NewPersistence connects to databaseURL and runs the pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return newPersistence(database, logger), nil
}

func newPersistence(database *sql.DB, logger *slog.Logger) *Persistence {
	return &Persistence{
		db:         database,
		logger:     logger,
		workflows:  NewWorkflowRepository(database, logger),
		runs:       NewRunRepository(database, logger),
		runActions: NewRunActionRepository(database, logger),
		fans:       NewFanRepository(database),
		accounts:   NewProviderAccountRepository(database),
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) Runs() persistence.RunRepository {
	return p.runs
}

func (p *Persistence) RunActions() persistence.RunActionRepository {
	return p.runActions
}

func (p *Persistence) Fans() persistence.FanRepository {
	return p.fans
}

func (p *Persistence) ProviderAccounts() persistence.ProviderAccountRepository {
	return p.accounts
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func rollback(ctx context.Context, logger *slog.Logger, tx *sql.Tx) {
	err := tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.ErrorContext(ctx, "failed to rollback transaction", "error", err)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	v := t.Time.UTC()

	return &v
}
