package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence"
	"github.com/lib/pq"
)

const workflowColumns = `
	  id
	, workspace_id
	, name
	, description
	, created_at
	, updated_at
	, archived_at
`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

func (r *WorkflowRepository) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	query := `SELECT` + workflowColumns + `
		FROM workflows
		WHERE ($1 = '' OR workspace_id = $1)
		  AND ($2 OR archived_at IS NULL)
		ORDER BY created_at DESC, id
	`

	return r.query(ctx, query, filter.WorkspaceID, filter.IncludeArchived)
}

func (r *WorkflowRepository) ListByTrigger(ctx context.Context, workspaceID string, trigger models.TriggerType) ([]*models.Workflow, error) {
	query := `SELECT` + workflowColumns + `
		FROM workflows w
		WHERE w.workspace_id = $1
		  AND w.archived_at IS NULL
		  AND EXISTS (
			SELECT 1 FROM workflow_triggers t WHERE t.workflow_id = w.id AND t.trigger = $2
		  )
		ORDER BY w.created_at DESC, w.id
	`

	return r.query(ctx, query, workspaceID, string(trigger))
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT` + workflowColumns + `FROM workflows WHERE id = $1`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadTriggersAndActions(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// Save upserts the workflow, its triggers and actions, and deletes the ones the definition no longer has.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer rollback(ctx, r.logger, tx)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, workspace_id, name, description, created_at, updated_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at,
			archived_at = EXCLUDED.archived_at
	`,
		workflow.ID,
		workflow.WorkspaceID,
		workflow.Name,
		workflow.Description,
		workflow.CreatedAt,
		workflow.UpdatedAt,
		nullTime(workflow.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow base: %w", err)
	}

	actionIDs := make([]string, len(workflow.Actions))
	for i, action := range workflow.Actions {
		actionIDs[i] = action.ID
	}

	inUse, err := actionsInUse(ctx, tx, workflow.ID, actionIDs)
	if err != nil {
		return err
	}

	if len(inUse) > 0 {
		return &persistence.WorkflowError{
			Op:         "Save",
			WorkflowID: workflow.ID,
			Err:        &persistence.ActionInUseError{WorkflowID: workflow.ID, ActionIDs: inUse},
		}
	}

	err = saveTriggers(ctx, tx, workflow)
	if err != nil {
		return err
	}

	err = saveActions(ctx, tx, workflow, actionIDs)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow %s: %w", workflow.ID, err)
	}

	return nil
}

// Archive sets archived_at and cancels the active runs of the workflow in one transaction.
func (r *WorkflowRepository) Archive(ctx context.Context, id string, at time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer rollback(ctx, r.logger, tx)

	result, err := tx.ExecContext(ctx, `
		UPDATE workflows
		SET archived_at = COALESCE(archived_at, $2), updated_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return 0, fmt.Errorf("failed to archive workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return 0, persistence.NewWorkflowError("Archive", id, persistence.ErrWorkflowNotFound)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE workflow_runs
		SET status = 'cancelled', completed_at = $2, updated_at = $2, lease_owner = NULL, lease_expires_at = NULL
		WHERE workflow_id = $1 AND status = ANY($3::text[])
	`, id, at, activeStatuses())
	if err != nil {
		return 0, fmt.Errorf("failed to cancel runs of workflow %s: %w", id, err)
	}

	cancelled, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit archive of workflow %s: %w", id, err)
	}

	return int(cancelled), nil
}

func (r *WorkflowRepository) query(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		err = r.loadTriggersAndActions(ctx, workflow)
		if err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) loadTriggersAndActions(ctx context.Context, workflow *models.Workflow) error {
	triggers, err := r.loadTriggers(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to load triggers of workflow %s: %w", workflow.ID, err)
	}

	actions, err := r.loadActions(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to load actions of workflow %s: %w", workflow.ID, err)
	}

	workflow.Triggers = triggers
	workflow.Actions = actions

	return nil
}

func (r *WorkflowRepository) loadTriggers(ctx context.Context, workflowID string) ([]*models.WorkflowTrigger, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, trigger, cart_funnel_id
		FROM workflow_triggers
		WHERE workflow_id = $1
		ORDER BY id
	`, workflowID)
	if err != nil {
		return nil, err
	}

	defer closeRows(ctx, r.logger, rows)

	triggers := make([]*models.WorkflowTrigger, 0)

	for rows.Next() {
		var (
			trigger      models.WorkflowTrigger
			cartFunnelID sql.NullString
		)

		err := rows.Scan(&trigger.ID, &trigger.WorkflowID, &trigger.Trigger, &cartFunnelID)
		if err != nil {
			return nil, err
		}

		if cartFunnelID.Valid {
			trigger.CartFunnelID = &cartFunnelID.String
		}

		triggers = append(triggers, &trigger)
	}

	return triggers, rows.Err()
}

func (r *WorkflowRepository) loadActions(ctx context.Context, workflowID string) ([]*models.WorkflowAction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, lexorank, action, wait_for_seconds, on_skip, config
		FROM workflow_actions
		WHERE workflow_id = $1
		ORDER BY lexorank
	`, workflowID)
	if err != nil {
		return nil, err
	}

	defer closeRows(ctx, r.logger, rows)

	actions := make([]*models.WorkflowAction, 0)

	for rows.Next() {
		var (
			action models.WorkflowAction
			config []byte
		)

		err := rows.Scan(&action.ID, &action.WorkflowID, &action.Lexorank, &action.Action, &action.WaitForSeconds, &action.OnSkip, &config)
		if err != nil {
			return nil, err
		}

		action.Payload, err = models.DecodePayload(action.Action, config)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", action.ID, err)
		}

		actions = append(actions, &action)
	}

	return actions, rows.Err()
}

func actionsInUse(ctx context.Context, tx *sql.Tx, workflowID string, keep []string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT current_action_id
		FROM workflow_runs
		WHERE workflow_id = $1
		  AND status = ANY($3::text[])
		  AND current_action_id IS NOT NULL
		  AND NOT (current_action_id = ANY($2))
		ORDER BY current_action_id
	`, workflowID, pq.Array(keep), activeStatuses())
	if err != nil {
		return nil, fmt.Errorf("failed to check actions in use: %w", err)
	}

	defer rows.Close()

	var inUse []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan action in use: %w", err)
		}

		inUse = append(inUse, id)
	}

	return inUse, rows.Err()
}

func saveTriggers(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	triggerIDs := make([]string, len(workflow.Triggers))
	for i, trigger := range workflow.Triggers {
		triggerIDs[i] = trigger.ID
	}

	_, err := tx.ExecContext(ctx,
		"DELETE FROM workflow_triggers WHERE workflow_id = $1 AND NOT (id = ANY($2))",
		workflow.ID, pq.Array(triggerIDs))
	if err != nil {
		return fmt.Errorf("failed to delete removed triggers: %w", err)
	}

	for _, trigger := range workflow.Triggers {
		var cartFunnelID sql.NullString
		if trigger.CartFunnelID != nil {
			cartFunnelID = nullString(*trigger.CartFunnelID)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_triggers (id, workflow_id, trigger, cart_funnel_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				trigger = EXCLUDED.trigger,
				cart_funnel_id = EXCLUDED.cart_funnel_id
			WHERE workflow_triggers.workflow_id = EXCLUDED.workflow_id
		`, trigger.ID, workflow.ID, string(trigger.Trigger), cartFunnelID)
		if err != nil {
			return fmt.Errorf("failed to save trigger %s: %w", trigger.ID, err)
		}

		err = requireSaved(result, "trigger", trigger.ID)
		if err != nil {
			return err
		}
	}

	return nil
}

func saveActions(ctx context.Context, tx *sql.Tx, workflow *models.Workflow, actionIDs []string) error {
	_, err := tx.ExecContext(ctx,
		"DELETE FROM workflow_actions WHERE workflow_id = $1 AND NOT (id = ANY($2))",
		workflow.ID, pq.Array(actionIDs))
	if err != nil {
		return fmt.Errorf("failed to delete removed actions: %w", err)
	}

	for _, action := range workflow.Actions {
		config, err := models.MarshalPayload(action.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal config of action %s: %w", action.ID, err)
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_actions (id, workflow_id, lexorank, action, wait_for_seconds, on_skip, config)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				lexorank = EXCLUDED.lexorank,
				action = EXCLUDED.action,
				wait_for_seconds = EXCLUDED.wait_for_seconds,
				on_skip = EXCLUDED.on_skip,
				config = EXCLUDED.config
			WHERE workflow_actions.workflow_id = EXCLUDED.workflow_id
		`,
			action.ID,
			workflow.ID,
			action.Lexorank,
			string(action.Action),
			action.WaitForSeconds,
			string(action.SkipPolicy()),
			config,
		)
		if err != nil {
			return fmt.Errorf("failed to save action %s: %w", action.ID, err)
		}

		err = requireSaved(result, "action", action.ID)
		if err != nil {
			return err
		}
	}

	return nil
}

// requireSaved turns an upsert that touched no row into ErrIDConflict: the conflicting row is
// owned by another workflow.
func requireSaved(result sql.Result, kind, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check saved %s %s: %w", kind, id, err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s %s", persistence.ErrIDConflict, kind, id)
	}

	return nil
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow   models.Workflow
		archivedAt sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.WorkspaceID,
		&workflow.Name,
		&workflow.Description,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
		&archivedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.CreatedAt = workflow.CreatedAt.UTC()
	workflow.UpdatedAt = workflow.UpdatedAt.UTC()
	workflow.ArchivedAt = timePtr(archivedAt)

	return &workflow, nil
}
