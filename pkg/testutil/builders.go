// Package testutil provides test data builders shared by package tests.
package testutil

import (
	"time"

	"github.com/dukex/flows/pkg/models"
	"github.com/google/uuid"
)

// CreateTestWorkflow creates a workflow with one NEW_CART_ORDER trigger and no actions.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:          uuid.NewString(),
		WorkspaceID: "ws-1",
		Name:        "Test Workflow",
		Triggers: []*models.WorkflowTrigger{
			{ID: uuid.NewString(), Trigger: models.TriggerNewCartOrder},
		},
		Actions:   []*models.WorkflowAction{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(workflow)
	}

	for _, trigger := range workflow.Triggers {
		trigger.WorkflowID = workflow.ID
	}

	for _, action := range workflow.Actions {
		action.WorkflowID = workflow.ID
	}

	return workflow
}

// WithWorkflowID sets the workflow ID.
func WithWorkflowID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

// WithWorkspace sets the owning workspace.
func WithWorkspace(workspaceID string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.WorkspaceID = workspaceID
	}
}

// WithActions replaces the workflow actions.
func WithActions(actions ...*models.WorkflowAction) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Actions = actions
	}
}

// WithCartFunnel restricts the trigger to one funnel.
func WithCartFunnel(funnelID string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Triggers = []*models.WorkflowTrigger{
			{ID: uuid.NewString(), Trigger: models.TriggerNewCartOrder, CartFunnelID: &funnelID},
		}
	}
}

// WaitAction builds a WAIT action.
func WaitAction(id, lexorank string, waitFor time.Duration) *models.WorkflowAction {
	return &models.WorkflowAction{
		ID:             id,
		Lexorank:       lexorank,
		Action:         models.ActionKindWait,
		WaitForSeconds: int64(waitFor / time.Second),
		Payload:        &models.WaitAction{},
	}
}

// MailchimpAction builds an ADD_TO_MAILCHIMP_AUDIENCE action.
func MailchimpAction(id, lexorank, audienceID string, onSkip models.SkipPolicy) *models.WorkflowAction {
	return &models.WorkflowAction{
		ID:       id,
		Lexorank: lexorank,
		Action:   models.ActionKindAddToMailchimpAudience,
		OnSkip:   onSkip,
		Payload:  &models.AddToMailchimpAudienceAction{MailchimpAudienceID: audienceID},
	}
}

// SendEmailAction builds a SEND_EMAIL action.
func SendEmailAction(id, lexorank, subject, body string) *models.WorkflowAction {
	return &models.WorkflowAction{
		ID:       id,
		Lexorank: lexorank,
		Action:   models.ActionKindSendEmail,
		Payload:  &models.SendEmailAction{Subject: subject, Body: body},
	}
}

// BranchAction builds a BOOLEAN_BRANCH action.
func BranchAction(id, lexorank, condition, ifTrue, ifFalse string) *models.WorkflowAction {
	return &models.WorkflowAction{
		ID:       id,
		Lexorank: lexorank,
		Action:   models.ActionKindBooleanBranch,
		Payload: &models.BooleanBranchAction{
			Condition:       condition,
			IfTrueActionID:  ifTrue,
			IfFalseActionID: ifFalse,
		},
	}
}

// CreateTestRun creates a pending run positioned on the workflow's first action, due at dueAt.
func CreateTestRun(workflow *models.Workflow, fanID string, dueAt time.Time) *models.WorkflowRun {
	run := &models.WorkflowRun{
		ID:                 uuid.NewString(),
		WorkflowID:         workflow.ID,
		WorkspaceID:        workflow.WorkspaceID,
		TriggerFanID:       fanID,
		TriggerData:        map[string]any{},
		RunCurrentActionAt: dueAt,
		Status:             models.RunStatusPending,
		CreatedAt:          dueAt,
		UpdatedAt:          dueAt,
	}

	if first := workflow.FirstAction(); first != nil {
		run.CurrentActionID = first.ID
	}

	return run
}

// CreateTestFan creates a fan that opted in to email marketing.
func CreateTestFan(id, workspaceID string) *models.Fan {
	return &models.Fan{
		ID:                  id,
		WorkspaceID:         workspaceID,
		Email:               id + "@example.com",
		FirstName:           "Test",
		LastName:            "Fan",
		EmailMarketingOptIn: true,
	}
}
