package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence"
	"github.com/lib/pq"
)

const runColumns = `
	  r.id
	, r.workflow_id
	, r.workspace_id
	, r.trigger_fan_id
	, r.trigger_data
	, r.current_action_id
	, r.run_current_action_at
	, r.status
	, r.attempts
	, r.lease_owner
	, r.lease_expires_at
	, r.created_at
	, r.updated_at
	, r.completed_at
`

// RunRepository handles workflow run database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

func (r *RunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	triggerData, err := json.Marshal(run.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (
			id, workflow_id, workspace_id, trigger_fan_id, trigger_data, current_action_id,
			run_current_action_at, status, attempts, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		run.ID,
		run.WorkflowID,
		run.WorkspaceID,
		run.TriggerFanID,
		triggerData,
		nullString(run.CurrentActionID),
		run.RunCurrentActionAt,
		string(run.Status),
		run.Attempts,
		run.CreatedAt,
		run.UpdatedAt,
		nullTime(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}

	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT`+runColumns+`FROM workflow_runs r WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowRun, error) {
	if limit <= 0 {
		limit = 100
	}

	return r.query(ctx, `SELECT`+runColumns+`
		FROM workflow_runs r
		WHERE r.workflow_id = $1
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $2
	`, workflowID, limit)
}

// activeStatuses binds the polled run statuses as a text[] parameter.
func activeStatuses() any {
	statuses := models.ActiveRunStatuses()

	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}

	return pq.Array(values)
}

// ClaimDue leases due runs with FOR UPDATE SKIP LOCKED so concurrent pollers claim disjoint sets.
func (r *RunRepository) ClaimDue(ctx context.Context, opts persistence.ClaimOptions) ([]*models.WorkflowRun, error) {
	exclude := opts.ExcludeIDs
	if exclude == nil {
		exclude = []string{}
	}

	runs, err := r.query(ctx, `
		WITH due AS (
			SELECT r.id
			FROM workflow_runs r
			JOIN workflows w ON w.id = r.workflow_id
			-- literal statuses so idx_workflow_runs_due applies
			WHERE r.status IN ('pending', 'in_progress')
			  AND r.run_current_action_at < $1
			  AND w.archived_at IS NULL
			  AND (r.lease_expires_at IS NULL OR r.lease_expires_at <= $1)
			  AND NOT (r.id = ANY($5::text[]))
			ORDER BY r.run_current_action_at, r.id
			LIMIT $2
			FOR UPDATE OF r SKIP LOCKED
		)
		UPDATE workflow_runs r
		SET lease_owner = $3, lease_expires_at = $4
		FROM due
		WHERE r.id = due.id
		RETURNING`+runColumns,
		opts.Now, opts.Limit, opts.Owner, opts.Now.Add(opts.LeaseFor), pq.Array(exclude))
	if err != nil {
		return nil, fmt.Errorf("failed to claim due runs: %w", err)
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].RunCurrentActionAt.Equal(runs[j].RunCurrentActionAt) {
			return runs[i].ID < runs[j].ID
		}

		return runs[i].RunCurrentActionAt.Before(runs[j].RunCurrentActionAt)
	})

	return runs, nil
}

func (r *RunRepository) Release(ctx context.Context, runID, owner string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE workflow_runs
		SET lease_owner = NULL, lease_expires_at = NULL
		WHERE id = $1 AND lease_owner = $2
	`, runID, owner)
	if err != nil {
		return fmt.Errorf("failed to release run %s: %w", runID, err)
	}

	return nil
}

// ApplyTransition updates the run, guarded by the lease owner, and appends the record in one transaction.
func (r *RunRepository) ApplyTransition(ctx context.Context, transition *models.RunTransition) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer rollback(ctx, r.logger, tx)

	result, err := tx.ExecContext(ctx, `
		UPDATE workflow_runs
		SET current_action_id = $2,
			run_current_action_at = $3,
			status = $4,
			attempts = $5,
			completed_at = $6,
			updated_at = $7,
			lease_owner = CASE WHEN $8 THEN lease_owner ELSE NULL END,
			lease_expires_at = CASE WHEN $8 THEN lease_expires_at ELSE NULL END
		WHERE id = $1 AND ($9 = '' OR lease_owner = $9)
	`,
		transition.RunID,
		nullString(transition.CurrentActionID),
		transition.RunCurrentActionAt,
		string(transition.Status),
		transition.Attempts,
		nullTime(transition.CompletedAt),
		transition.UpdatedAt,
		transition.KeepLease,
		transition.LeaseOwner,
	)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", transition.RunID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		if transition.LeaseOwner != "" {
			return persistence.NewRunError("ApplyTransition", transition.RunID, persistence.ErrLeaseLost)
		}

		return persistence.NewRunError("ApplyTransition", transition.RunID, persistence.ErrRunNotFound)
	}

	if transition.Record != nil {
		err = insertRunAction(ctx, tx, transition.Record)
		if err != nil {
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transition of run %s: %w", transition.RunID, err)
	}

	return nil
}

func (r *RunRepository) Retry(ctx context.Context, runID string, now time.Time) (*models.WorkflowRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `
		UPDATE workflow_runs r
		SET status = CASE WHEN r.status = 'failed' THEN 'in_progress' ELSE r.status END,
			completed_at = CASE WHEN r.status = 'failed' THEN NULL ELSE r.completed_at END,
			attempts = 0,
			run_current_action_at = $2,
			updated_at = $2,
			lease_owner = NULL,
			lease_expires_at = NULL
		WHERE r.id = $1 AND r.status IN ('pending', 'in_progress', 'failed')
		RETURNING`+runColumns, runID, now))
	if err == nil {
		return run, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to retry run %s: %w", runID, err)
	}

	_, err = r.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	return nil, persistence.NewRunError("Retry", runID, persistence.ErrRunNotRetryable)
}

func (r *RunRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer closeRows(ctx, r.logger, rows)

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func scanRun(row rowScanner) (*models.WorkflowRun, error) {
	var (
		run             models.WorkflowRun
		triggerData     []byte
		currentActionID sql.NullString
		leaseOwner      sql.NullString
		leaseExpiresAt  sql.NullTime
		completedAt     sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&run.WorkspaceID,
		&run.TriggerFanID,
		&triggerData,
		&currentActionID,
		&run.RunCurrentActionAt,
		&run.Status,
		&run.Attempts,
		&leaseOwner,
		&leaseExpiresAt,
		&run.CreatedAt,
		&run.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(triggerData) > 0 {
		err = json.Unmarshal(triggerData, &run.TriggerData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger data of run %s: %w", run.ID, err)
		}
	}

	run.CurrentActionID = currentActionID.String
	run.LeaseOwner = leaseOwner.String
	run.LeaseExpiresAt = timePtr(leaseExpiresAt)
	run.CompletedAt = timePtr(completedAt)
	run.RunCurrentActionAt = run.RunCurrentActionAt.UTC()
	run.CreatedAt = run.CreatedAt.UTC()
	run.UpdatedAt = run.UpdatedAt.UTC()

	return &run, nil
}
