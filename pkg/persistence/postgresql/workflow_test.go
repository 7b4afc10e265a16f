package postgresql

import (
	"context"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkflow(now time.Time) *models.Workflow {
	return &models.Workflow{
		ID:          "wf-1",
		WorkspaceID: "ws-1",
		Name:        "Welcome",
		Triggers:    []*models.WorkflowTrigger{{ID: "t1", Trigger: models.TriggerNewCartOrder}},
		Actions: []*models.WorkflowAction{
			{ID: "a1", Lexorank: "i", Action: models.ActionKindWait, WaitForSeconds: 60, Payload: &models.WaitAction{}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestWorkflowRepository_Save_RejectsActionInUse(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflows")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT current_action_id")).
		WillReturnRows(sqlmock.NewRows([]string{"current_action_id"}).AddRow("a0"))
	mock.ExpectRollback()

	err = NewWorkflowRepository(db, slog.Default()).Save(context.Background(), testWorkflow(now))
	require.ErrorIs(t, err, persistence.ErrActionInUse)

	var inUse *persistence.ActionInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, []string{"a0"}, inUse.ActionIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflows")).
		WithArgs("wf-1", "ws-1", "Welcome", "", now, now, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT current_action_id")).
		WillReturnRows(sqlmock.NewRows([]string{"current_action_id"}))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM workflow_triggers")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflow_triggers")).
		WithArgs("t1", "wf-1", "NEW_CART_ORDER", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM workflow_actions")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflow_actions")).
		WithArgs("a1", "wf-1", "i", "WAIT", int64(60), "continue", []byte("{}")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewWorkflowRepository(db, slog.Default()).Save(context.Background(), testWorkflow(now)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_Save_RejectsForeignIDs(t *testing.T) {
	now := time.Now().UTC()

	expectBase := func(mock sqlmock.Sqlmock) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflows")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT current_action_id")).
			WillReturnRows(sqlmock.NewRows([]string{"current_action_id"}))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM workflow_triggers")).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	t.Run("trigger", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectBase(mock)
		mock.ExpectExec(regexp.QuoteMeta("WHERE workflow_triggers.workflow_id = EXCLUDED.workflow_id")).
			WithArgs("t1", "wf-1", "NEW_CART_ORDER", nil).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err = NewWorkflowRepository(db, slog.Default()).Save(context.Background(), testWorkflow(now))
		require.ErrorIs(t, err, persistence.ErrIDConflict)
		assert.Contains(t, err.Error(), "trigger t1")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("action", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectBase(mock)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflow_triggers")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM workflow_actions")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("WHERE workflow_actions.workflow_id = EXCLUDED.workflow_id")).
			WithArgs("a1", "wf-1", "i", "WAIT", int64(60), "continue", []byte("{}")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err = NewWorkflowRepository(db, slog.Default()).Save(context.Background(), testWorkflow(now))
		require.ErrorIs(t, err, persistence.ErrIDConflict)
		assert.Contains(t, err.Error(), "action a1")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWorkflowRepository_Archive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE workflows")).WithArgs("wf-1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_runs")).WithArgs("wf-1", now, `{"pending","in_progress"}`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	cancelled, err := NewWorkflowRepository(db, slog.Default()).Archive(context.Background(), "wf-1", now)
	require.NoError(t, err)
	assert.Equal(t, 3, cancelled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepository_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM workflows WHERE id").WithArgs("missing").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewWorkflowRepository(db, slog.Default()).GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}
