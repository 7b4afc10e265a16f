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

var runColumnNames = []string{
	"id", "workflow_id", "workspace_id", "trigger_fan_id", "trigger_data", "current_action_id",
	"run_current_action_at", "status", "attempts", "lease_owner", "lease_expires_at",
	"created_at", "updated_at", "completed_at",
}

func newMockRunRepository(t *testing.T) (*RunRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return NewRunRepository(db, slog.Default()), mock
}

func TestRunRepository_ClaimDue(t *testing.T) {
	repo, mock := newMockRunRepository(t)
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	expires := now.Add(time.Minute)

	mock.ExpectQuery(`FOR UPDATE OF r SKIP LOCKED`).
		WithArgs(now, 11, "worker-1", expires, "{}").
		WillReturnRows(sqlmock.NewRows(runColumnNames).
			AddRow("r2", "wf-1", "ws-1", "fan-2", []byte(`{"order_id":"o2"}`), "a1", now.Add(-time.Second), "in_progress", 0, "worker-1", expires, now, now, nil).
			AddRow("r1", "wf-1", "ws-1", "fan-1", []byte(`{}`), "a1", now.Add(-time.Hour), "pending", 1, "worker-1", expires, now, now, nil))

	runs, err := repo.ClaimDue(context.Background(), persistence.ClaimOptions{
		Now:      now,
		Limit:    11,
		Owner:    "worker-1",
		LeaseFor: time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "r1", runs[0].ID, "claimed runs are ordered by due time")
	assert.Equal(t, models.RunStatusInProgress, runs[1].Status)
	assert.Equal(t, "o2", runs[1].TriggerData["order_id"])
	assert.Equal(t, "worker-1", runs[0].LeaseOwner)
	require.NotNil(t, runs[0].LeaseExpiresAt)
	assert.Equal(t, expires, *runs[0].LeaseExpiresAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_ApplyTransition(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	record := &models.WorkflowRunAction{
		ID:               "ra-1",
		WorkflowRunID:    "r1",
		WorkflowActionID: "a1",
		Status:           models.RunActionStatusSuccess,
		Attempt:          1,
		CompletedAt:      &now,
		CreatedAt:        now,
	}
	transition := &models.RunTransition{
		RunID:              "r1",
		LeaseOwner:         "worker-1",
		Record:             record,
		CurrentActionID:    "a2",
		RunCurrentActionAt: now,
		Status:             models.RunStatusInProgress,
		UpdatedAt:          now,
		KeepLease:          true,
	}

	t.Run("commits update and record", func(t *testing.T) {
		repo, mock := newMockRunRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_runs")).
			WithArgs("r1", "a2", now, "in_progress", 0, nil, now, true, "worker-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO workflow_run_actions")).
			WithArgs("ra-1", "r1", "a1", "success", nil, nil, 1, now, nil, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.ApplyTransition(context.Background(), transition))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost lease rolls back", func(t *testing.T) {
		repo, mock := newMockRunRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE workflow_runs")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.ApplyTransition(context.Background(), transition)
		require.ErrorIs(t, err, persistence.ErrLeaseLost)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRunRepository_Retry_NotRetryable(t *testing.T) {
	repo, mock := newMockRunRepository(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE workflow_runs r")).
		WithArgs("r1", now).
		WillReturnRows(sqlmock.NewRows(runColumnNames))
	mock.ExpectQuery(regexp.QuoteMeta("FROM workflow_runs r WHERE r.id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(runColumnNames).
			AddRow("r1", "wf-1", "ws-1", "fan-1", []byte(`{}`), nil, now, "complete", 0, nil, nil, now, now, now))

	_, err := repo.Retry(context.Background(), "r1", now)
	require.ErrorIs(t, err, persistence.ErrRunNotRetryable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunActionRepository_LastForAction_None(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM workflow_run_actions").
		WithArgs("r1", "a1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	record, err := NewRunActionRepository(db, slog.Default()).LastForAction(context.Background(), "r1", "a1")
	require.NoError(t, err)
	assert.Nil(t, record)
}
