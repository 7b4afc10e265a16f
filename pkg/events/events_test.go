package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(RunCompletedEvent, "ws-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, RunCompletedEvent, event.Type)
	assert.Equal(t, "ws-1", event.WorkspaceID)
	assert.False(t, event.Timestamp.IsZero())
}

func TestCartOrderCreated_JSON(t *testing.T) {
	original := CartOrderCreated{
		BaseEvent:    NewBaseEvent(CartOrderCreatedEvent, "ws-1"),
		CartFunnelID: "funnel-1",
		FanID:        "fan-1",
		OrderID:      "order-1",
		Amount:       42.5,
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"cart_order.created"`)
	assert.Contains(t, string(data), `"cart_funnel_id":"funnel-1"`)

	var decoded CartOrderCreated
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.FanID, decoded.FanID)
	assert.InDelta(t, original.Amount, decoded.Amount, 0.0001)
	assert.Equal(t, CartOrderCreatedEvent, decoded.GetType())
}

func TestCartOrderCreated_TriggerData(t *testing.T) {
	event := CartOrderCreated{
		BaseEvent:    BaseEvent{ID: "evt-1"},
		CartFunnelID: "funnel-1",
		FanID:        "fan-1",
		OrderID:      "order-1",
		Amount:       10,
	}

	data := event.TriggerData()

	assert.Equal(t, "evt-1", data["event_id"])
	assert.Equal(t, "order-1", data["order_id"])
	assert.InDelta(t, 10.0, data["amount"], 0.0001)
	assert.NotContains(t, data, "currency")
}

func TestRunEvents_GetType(t *testing.T) {
	assert.Equal(t, RunStartedEvent, RunStarted{}.GetType())
	assert.Equal(t, RunCompletedEvent, RunCompleted{}.GetType())
	assert.Equal(t, RunActionFailedEvent, RunActionFailed{}.GetType())
}
