// Package web provides the HTTP handlers of the flows management API.
package web

import (
	"github.com/dukex/flows/pkg/events"
	"github.com/dukex/flows/pkg/models"
)

// WorkflowRequest is the body of POST /workflows and PUT /workflows/:id. A PUT replaces the
// whole definition; its workspace_id is ignored.
type WorkflowRequest struct {
	WorkspaceID string                    `json:"workspace_id"`
	Name        string                    `json:"name"         validate:"required,min=3"`
	Description string                    `json:"description"`
	Triggers    []*models.WorkflowTrigger `json:"triggers"`
	Actions     []*models.WorkflowAction  `json:"actions"`
}

func (r WorkflowRequest) toModel() *models.Workflow {
	return &models.Workflow{
		WorkspaceID: r.WorkspaceID,
		Name:        r.Name,
		Description: r.Description,
		Triggers:    r.Triggers,
		Actions:     r.Actions,
	}
}

// CartOrderRequest is the body of POST /events/cart-orders.
type CartOrderRequest struct {
	WorkspaceID  string  `json:"workspace_id"       validate:"required"`
	CartFunnelID string  `json:"cart_funnel_id"     validate:"required"`
	FanID        string  `json:"fan_id"             validate:"required"`
	OrderID      string  `json:"order_id"           validate:"required"`
	Amount       float64 `json:"amount"             validate:"min=0"`
	Currency     string  `json:"currency,omitempty" validate:"omitempty,len=3"`
}

func (r CartOrderRequest) toEvent() *events.CartOrderCreated {
	return &events.CartOrderCreated{
		BaseEvent:    events.NewBaseEvent(events.CartOrderCreatedEvent, r.WorkspaceID),
		CartFunnelID: r.CartFunnelID,
		FanID:        r.FanID,
		OrderID:      r.OrderID,
		Amount:       r.Amount,
		Currency:     r.Currency,
	}
}

// StartedRunsResponse lists the runs created for an event.
type StartedRunsResponse struct {
	EventID string                `json:"event_id"`
	Runs    []*models.WorkflowRun `json:"runs"`
}

// ArchiveResponse reports the outcome of DELETE /workflows/:id.
type ArchiveResponse struct {
	WorkflowID    string `json:"workflow_id"`
	CancelledRuns int    `json:"cancelled_runs"`
}
