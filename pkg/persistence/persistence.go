// Package persistence provides the storage abstraction for workflow definitions, runs and their action log.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/flows/pkg/models"
)

type Persistence interface {
	Workflows() WorkflowRepository
	Runs() RunRepository
	RunActions() RunActionRepository
	Fans() FanRepository
	ProviderAccounts() ProviderAccountRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowFilter narrows List results.
type WorkflowFilter struct {
	WorkspaceID     string
	IncludeArchived bool
}

type WorkflowRepository interface {
	List(ctx context.Context, filter WorkflowFilter) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)

	// ListByTrigger returns the non-archived workflows of a workspace with a trigger of the given type.
	ListByTrigger(ctx context.Context, workspaceID string, trigger models.TriggerType) ([]*models.Workflow, error)

	// Save stores the full definition. Triggers and actions missing from workflow are deleted,
	// the rest are upserted, in one transaction. Removing the current action of an active run
	// fails with ErrActionInUse.
	Save(ctx context.Context, workflow *models.Workflow) error

	// Archive soft-deletes the workflow and cancels its active runs. It returns the number of
	// cancelled runs.
	Archive(ctx context.Context, id string, at time.Time) (int, error)
}

// ClaimOptions configures a claim of due runs.
type ClaimOptions struct {
	Now      time.Time
	Limit    int
	Owner    string
	LeaseFor time.Duration

	// ExcludeIDs are never claimed, for runs already handled in the current pass.
	ExcludeIDs []string
}

type RunRepository interface {
	Create(ctx context.Context, run *models.WorkflowRun) error
	GetByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.WorkflowRun, error)

	// ClaimDue leases up to Limit active runs of non-archived workflows that are due before Now
	// and not leased by anyone else, oldest first.
	ClaimDue(ctx context.Context, opts ClaimOptions) ([]*models.WorkflowRun, error)

	// Release drops owner's lease on the run without changing it.
	Release(ctx context.Context, runID, owner string) error

	// ApplyTransition inserts the transition record and updates the run atomically. When the
	// transition names a lease owner that no longer holds the lease it fails with ErrLeaseLost.
	ApplyTransition(ctx context.Context, transition *models.RunTransition) error

	// Retry makes a failed or stalled run due at now with its attempts reset.
	Retry(ctx context.Context, runID string, now time.Time) (*models.WorkflowRun, error)
}

type RunActionRepository interface {
	ListByRun(ctx context.Context, runID string) ([]*models.WorkflowRunAction, error)

	// LastForAction returns the newest record of actionID in the run, or nil when there is none.
	LastForAction(ctx context.Context, runID, actionID string) (*models.WorkflowRunAction, error)
}

type FanRepository interface {
	GetFan(ctx context.Context, workspaceID, fanID string) (*models.Fan, error)
}

type ProviderAccountRepository interface {
	GetProviderAccount(ctx context.Context, workspaceID, provider string) (*models.ProviderAccount, error)
}
