package mocks

import (
	"context"
	"time"

	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence. Its repositories are
// the exported fields so tests can set expectations on each of them.
type MockPersistence struct {
	mock.Mock

	WorkflowRepo        *MockWorkflowRepository
	RunRepo             *MockRunRepository
	RunActionRepo       *MockRunActionRepository
	FanRepo             *MockFanReader
	ProviderAccountRepo *MockProviderAccountReader
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		WorkflowRepo:        &MockWorkflowRepository{},
		RunRepo:             &MockRunRepository{},
		RunActionRepo:       &MockRunActionRepository{},
		FanRepo:             &MockFanReader{},
		ProviderAccountRepo: &MockProviderAccountReader{},
	}
}

//nolint:ireturn // implements persistence.Persistence
func (m *MockPersistence) Workflows() persistence.WorkflowRepository { return m.WorkflowRepo }

//nolint:ireturn // implements persistence.Persistence
func (m *MockPersistence) Runs() persistence.RunRepository { return m.RunRepo }

//nolint:ireturn // implements persistence.Persistence
func (m *MockPersistence) RunActions() persistence.RunActionRepository { return m.RunActionRepo }

//nolint:ireturn // implements persistence.Persistence
func (m *MockPersistence) Fans() persistence.FanRepository { return m.FanRepo }

//nolint:ireturn // implements persistence.Persistence
func (m *MockPersistence) ProviderAccounts() persistence.ProviderAccountRepository {
	return m.ProviderAccountRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ListByTrigger(ctx context.Context, workspaceID string, trigger models.TriggerType) ([]*models.Workflow, error) {
	args := m.Called(ctx, workspaceID, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Archive(ctx context.Context, id string, at time.Time) (int, error) {
	args := m.Called(ctx, id, at)

	return args.Int(0), args.Error(1)
}

// MockRunRepository is a mock implementation of persistence.RunRepository interface.
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockRunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowRun), args.Error(1)
}

func (m *MockRunRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowRun, error) {
	args := m.Called(ctx, workflowID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowRun), args.Error(1)
}

func (m *MockRunRepository) ClaimDue(ctx context.Context, opts persistence.ClaimOptions) ([]*models.WorkflowRun, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowRun), args.Error(1)
}

func (m *MockRunRepository) Release(ctx context.Context, runID, owner string) error {
	args := m.Called(ctx, runID, owner)

	return args.Error(0)
}

func (m *MockRunRepository) ApplyTransition(ctx context.Context, transition *models.RunTransition) error {
	args := m.Called(ctx, transition)

	return args.Error(0)
}

func (m *MockRunRepository) Retry(ctx context.Context, runID string, now time.Time) (*models.WorkflowRun, error) {
	args := m.Called(ctx, runID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowRun), args.Error(1)
}

// MockRunActionRepository is a mock implementation of persistence.RunActionRepository interface.
type MockRunActionRepository struct {
	mock.Mock
}

func (m *MockRunActionRepository) ListByRun(ctx context.Context, runID string) ([]*models.WorkflowRunAction, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkflowRunAction), args.Error(1)
}

func (m *MockRunActionRepository) LastForAction(ctx context.Context, runID, actionID string) (*models.WorkflowRunAction, error) {
	args := m.Called(ctx, runID, actionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowRunAction), args.Error(1)
}
