package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/flows/pkg/actions/branch"
	"github.com/dukex/flows/pkg/lexorank"
	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence"
	"github.com/dukex/flows/pkg/protocol"
	"github.com/dukex/flows/pkg/registry"
	"github.com/dukex/flows/pkg/template"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Workflow struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
	clock       func() time.Time
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(logger *slog.Logger, persistence persistence.Persistence, registry *registry.Registry) *Workflow {
	return &Workflow{
		logger:      logger.With("module", "workflow_service"),
		persistence: persistence,
		registry:    registry,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Actions returns the action catalog.
func (w *Workflow) Actions() []protocol.ActionDescriptor {
	return w.registry.Actions()
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	WorkspaceID     string
	IncludeArchived bool
}

// ListWorkflows returns the workflows of a workspace, archived ones only when asked.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) ([]*models.Workflow, error) {
	workflows, err := w.persistence.Workflows().List(ctx, persistence.WorkflowFilter{
		WorkspaceID:     strings.TrimSpace(req.WorkspaceID),
		IncludeArchived: req.IncludeArchived,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.Workflows().GetByID(ctx, id)
}

// Create validates and stores a new workflow. Missing IDs and lexoranks are assigned.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	now := w.clock()
	workflow.ID = newID()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.ArchivedAt = nil

	err := w.prepare("Create", workflow)
	if err != nil {
		return nil, err
	}

	err = w.persistence.Workflows().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Created workflow",
		"workflow_id", workflow.ID,
		"workspace_id", workflow.WorkspaceID,
		"actions", len(workflow.Actions))

	return workflow, nil
}

// Update replaces the definition of workflowID with workflow. Actions and triggers left out
// are deleted; removing the current action of an active run fails with ErrActionInUse.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if existing.IsArchived() {
		return nil, persistence.NewWorkflowError("Update", workflowID, ErrWorkflowArchived)
	}

	workflow.ID = workflowID
	workflow.WorkspaceID = existing.WorkspaceID
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = w.clock()
	workflow.ArchivedAt = nil

	err = w.prepare("Update", workflow)
	if err != nil {
		return nil, err
	}

	err = w.persistence.Workflows().Save(ctx, workflow)
	if err != nil {
		if errors.Is(err, ErrActionInUse) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Updated workflow", "workflow_id", workflow.ID, "actions", len(workflow.Actions))

	return workflow, nil
}

// Archive soft-deletes the workflow and cancels its active runs.
func (w *Workflow) Archive(ctx context.Context, workflowID string) (int, error) {
	cancelled, err := w.persistence.Workflows().Archive(ctx, workflowID, w.clock())
	if err != nil {
		return 0, err
	}

	w.logger.InfoContext(ctx, "Archived workflow", "workflow_id", workflowID, "cancelled_runs", cancelled)

	return cancelled, nil
}

// prepare assigns missing IDs and lexoranks, then validates the definition.
func (w *Workflow) prepare(op string, workflow *models.Workflow) error {
	for _, trigger := range workflow.Triggers {
		if trigger == nil {
			return NewValidationError(op, "INVALID_TRIGGER", errors.New("trigger cannot be null"))
		}

		if trigger.ID == "" {
			trigger.ID = newID()
		}

		trigger.WorkflowID = workflow.ID
	}

	for _, action := range workflow.Actions {
		if action == nil {
			return NewValidationError(op, "INVALID_ACTION", errors.New("action cannot be null"))
		}

		if action.ID == "" {
			action.ID = newID()
		}

		action.WorkflowID = workflow.ID
	}

	err := assignLexoranks(workflow.Actions)
	if err != nil {
		return NewValidationError(op, "INVALID_LEXORANK", err)
	}

	err = w.validate(workflow)
	if err != nil {
		return NewValidationError(op, "INVALID_WORKFLOW", err)
	}

	return nil
}

func (w *Workflow) validate(workflow *models.Workflow) error {
	err := w.validator.Struct(workflow)
	if err != nil {
		return err
	}

	var errs []error

	for _, action := range workflow.Actions {
		if action.Payload != nil {
			if err := w.validator.Struct(action.Payload); err != nil {
				errs = append(errs, fmt.Errorf("action %s: %w", action.ID, err))
			}
		}

		switch payload := action.Payload.(type) {
		case *models.BooleanBranchAction:
			if err := branch.ParseCondition(payload.Condition); err != nil {
				errs = append(errs, fmt.Errorf("action %s: %w", action.ID, err))
			}
		case *models.SendEmailAction:
			if err := template.Parse(action.ID+".subject", payload.Subject); err != nil {
				errs = append(errs, err)
			}

			if err := template.Parse(action.ID+".body", payload.Body); err != nil {
				errs = append(errs, err)
			}
		}
	}

	errs = append(errs, workflow.CheckActions(), w.registry.ValidateWorkflow(workflow))

	return errors.Join(errs...)
}

// assignLexoranks gives every action without a lexorank a key between its neighbours in
// request order.
func assignLexoranks(actions []*models.WorkflowAction) error {
	prev := ""

	for i, action := range actions {
		if action.Lexorank != "" {
			prev = action.Lexorank

			continue
		}

		next := ""

		for _, later := range actions[i+1:] {
			if later.Lexorank != "" {
				next = later.Lexorank

				break
			}
		}

		var (
			rank string
			err  error
		)

		switch {
		case next == "":
			rank, err = lexorank.After(prev)
		case prev == "":
			rank, err = lexorank.Before(next)
		default:
			rank, err = lexorank.Between(prev, next)
		}

		if err != nil {
			return fmt.Errorf("cannot place action %s: %w", action.ID, err)
		}

		action.Lexorank = rank
		prev = rank
	}

	return nil
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}
