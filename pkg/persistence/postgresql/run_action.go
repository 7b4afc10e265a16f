package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flows/pkg/models"
)

const runActionColumns = `
	  id
	, workflow_run_id
	, workflow_action_id
	, status
	, skipped_reason
	, error
	, attempt
	, completed_at
	, failed_at
	, created_at
`

// RunActionRepository reads the append-only run action log. Rows are written by RunRepository.ApplyTransition.
type RunActionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunActionRepository(db *sql.DB, logger *slog.Logger) *RunActionRepository {
	return &RunActionRepository{db: db, logger: logger}
}

func (r *RunActionRepository) ListByRun(ctx context.Context, runID string) ([]*models.WorkflowRunAction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+runActionColumns+`
		FROM workflow_run_actions
		WHERE workflow_run_id = $1
		ORDER BY created_at, attempt, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run actions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.WorkflowRunAction, 0)

	for rows.Next() {
		record, err := scanRunAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run action: %w", err)
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

func (r *RunActionRepository) LastForAction(ctx context.Context, runID, actionID string) (*models.WorkflowRunAction, error) {
	record, err := scanRunAction(r.db.QueryRowContext(ctx, `SELECT`+runActionColumns+`
		FROM workflow_run_actions
		WHERE workflow_run_id = $1 AND workflow_action_id = $2
		ORDER BY created_at DESC, attempt DESC
		LIMIT 1
	`, runID, actionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan run action: %w", err)
	}

	return record, nil
}

func insertRunAction(ctx context.Context, tx *sql.Tx, record *models.WorkflowRunAction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_run_actions (
			id, workflow_run_id, workflow_action_id, status, skipped_reason, error,
			attempt, completed_at, failed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		record.ID,
		record.WorkflowRunID,
		record.WorkflowActionID,
		string(record.Status),
		nullString(record.SkippedReason),
		nullString(record.Error),
		record.Attempt,
		nullTime(record.CompletedAt),
		nullTime(record.FailedAt),
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run action %s: %w", record.ID, err)
	}

	return nil
}

func scanRunAction(row rowScanner) (*models.WorkflowRunAction, error) {
	var (
		record        models.WorkflowRunAction
		skippedReason sql.NullString
		errorMessage  sql.NullString
		completedAt   sql.NullTime
		failedAt      sql.NullTime
	)

	err := row.Scan(
		&record.ID,
		&record.WorkflowRunID,
		&record.WorkflowActionID,
		&record.Status,
		&skippedReason,
		&errorMessage,
		&record.Attempt,
		&completedAt,
		&failedAt,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.SkippedReason = skippedReason.String
	record.Error = errorMessage.String
	record.CompletedAt = timePtr(completedAt)
	record.FailedAt = timePtr(failedAt)
	record.CreatedAt = record.CreatedAt.UTC()

	return &record, nil
}
