// Package events defines the messages exchanged on the flows event bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every flows event.
const Topic = "flows.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Trigger events.
	CartOrderCreatedEvent EventType = "cart_order.created"

	// Run lifecycle events.
	RunStartedEvent      EventType = "workflow_run.started"
	RunCompletedEvent    EventType = "workflow_run.completed"
	RunActionFailedEvent EventType = "workflow_run.action_failed"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkspaceID string         `json:"workspace_id"       validate:"required"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workspaceID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkspaceID: workspaceID,
	}
}

// CartOrderCreated is emitted by the storefront when a fan places an order.
type CartOrderCreated struct {
	BaseEvent

	CartFunnelID string  `json:"cart_funnel_id"     validate:"required"`
	FanID        string  `json:"fan_id"             validate:"required"`
	OrderID      string  `json:"order_id"           validate:"required"`
	Amount       float64 `json:"amount"             validate:"min=0"`
	Currency     string  `json:"currency,omitempty" validate:"omitempty,len=3"`
}

func (CartOrderCreated) GetType() EventType {
	return CartOrderCreatedEvent
}

// TriggerData is the payload stored on runs started by this event.
func (e CartOrderCreated) TriggerData() map[string]any {
	data := map[string]any{
		"event_id":       e.ID,
		"cart_funnel_id": e.CartFunnelID,
		"fan_id":         e.FanID,
		"order_id":       e.OrderID,
		"amount":         e.Amount,
	}

	if e.Currency != "" {
		data["currency"] = e.Currency
	}

	return data
}

type RunStarted struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	FanID      string `json:"fan_id"`
}

func (RunStarted) GetType() EventType {
	return RunStartedEvent
}

// RunCompleted is emitted when a run reaches a terminal status.
type RunCompleted struct {
	BaseEvent

	WorkflowID  string    `json:"workflow_id"`
	RunID       string    `json:"run_id"`
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completed_at"`
}

func (RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunActionFailed struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
	ActionID   string `json:"action_id"`
	Action     string `json:"action"`
	Attempt    int    `json:"attempt"`
	Error      string `json:"error"`
}

func (RunActionFailed) GetType() EventType {
	return RunActionFailedEvent
}
