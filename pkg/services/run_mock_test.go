package services

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/flows/pkg/mocks"
	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRun_StartFromEventKeepsCreatedRunsOnPartialFailure(t *testing.T) {
	errInsert := errors.New("insert failed")

	first := testutil.CreateTestWorkflow(testutil.WithWorkflowID("wf-1"))
	second := testutil.CreateTestWorkflow(testutil.WithWorkflowID("wf-2"))

	store := mocks.NewMockPersistence()
	store.WorkflowRepo.On("ListByTrigger", mock.Anything, "ws-1", models.TriggerNewCartOrder).
		Return([]*models.Workflow{first, second}, nil)
	store.RunRepo.On("Create", mock.Anything, mock.MatchedBy(func(run *models.WorkflowRun) bool {
		return run.WorkflowID == "wf-1"
	})).Return(nil)
	store.RunRepo.On("Create", mock.Anything, mock.MatchedBy(func(run *models.WorkflowRun) bool {
		return run.WorkflowID == "wf-2"
	})).Return(errInsert)

	service := NewRun(testLogger(), store, WithRunClock(func() time.Time { return runTestNow }))

	runs, err := service.StartFromEvent(t.Context(), orderEvent("funnel-1"))

	require.ErrorIs(t, err, errInsert)
	require.Len(t, runs, 1)
	assert.Equal(t, "wf-1", runs[0].WorkflowID)
	store.RunRepo.AssertNumberOfCalls(t, "Create", 2)
}

func TestRun_StartFromEventListFailure(t *testing.T) {
	errList := errors.New("connection reset")

	store := mocks.NewMockPersistence()
	store.WorkflowRepo.On("ListByTrigger", mock.Anything, "ws-1", models.TriggerNewCartOrder).Return(nil, errList)

	runs, err := NewRun(testLogger(), store).StartFromEvent(t.Context(), orderEvent("funnel-1"))

	require.ErrorIs(t, err, errList)
	assert.Empty(t, runs)
	store.RunRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRun_ListByWorkflowCapsLimit(t *testing.T) {
	store := mocks.NewMockPersistence()
	store.WorkflowRepo.On("GetByID", mock.Anything, "wf-1").Return(testutil.CreateTestWorkflow(), nil)
	store.RunRepo.On("ListByWorkflow", mock.Anything, "wf-1", DefaultRunListLimit).Return([]*models.WorkflowRun{}, nil)

	_, err := NewRun(testLogger(), store).ListByWorkflow(t.Context(), "wf-1", 10_000)

	require.NoError(t, err)
	store.RunRepo.AssertExpectations(t)
}
