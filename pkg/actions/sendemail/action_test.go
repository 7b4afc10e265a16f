package sendemail

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/flows/pkg/mailer"
	"github.com/dukex/flows/pkg/mocks"
	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testInput() protocol.ActionInput {
	return protocol.ActionInput{
		Workflow: &models.Workflow{ID: "wf-1", Name: "Post purchase"},
		Action:   &models.WorkflowAction{ID: "a1", Action: models.ActionKindSendEmail},
		Run: &models.WorkflowRun{
			ID:           "run-1",
			WorkspaceID:  "ws-1",
			TriggerFanID: "fan-1",
			TriggerData:  map[string]any{"order_id": "o-7"},
		},
	}
}

func TestAction_Execute_SendsRenderedEmail(t *testing.T) {
	ctx := context.Background()
	fans := &mocks.MockFanReader{}
	sender := &mocks.MockMailer{}

	fans.On("GetFan", ctx, "ws-1", "fan-1").Return(&models.Fan{ID: "fan-1", Email: "ana@example.com", FirstName: "Ana", EmailMarketingOptIn: true}, nil)
	sender.On("Send", ctx, mailer.Message{
		From:    "shop@example.com",
		To:      "ana@example.com",
		Subject: "Thanks Ana",
		Body:    "Order o-7 from Post purchase",
	}).Return(nil)

	outcome, err := NewAction(fans, sender).Execute(ctx, testInput(), &models.SendEmailAction{
		From:    "shop@example.com",
		Subject: "Thanks {{ .fan.first_name }}",
		Body:    "Order {{ .trigger.order_id }} from {{ .workflow.name }}",
	})
	require.NoError(t, err)

	assert.Equal(t, protocol.Success(), outcome)
	sender.AssertExpectations(t)
}

func TestAction_Execute_SkipsWithoutConsent(t *testing.T) {
	ctx := context.Background()
	fans := &mocks.MockFanReader{}
	sender := &mocks.MockMailer{}

	fans.On("GetFan", ctx, "ws-1", "fan-1").Return(&models.Fan{ID: "fan-1", Email: "ana@example.com"}, nil)

	outcome, err := NewAction(fans, sender).Execute(ctx, testInput(), &models.SendEmailAction{Subject: "s", Body: "b"})
	require.NoError(t, err)

	assert.Equal(t, models.RunActionStatusSkipped, outcome.Status)
	assert.Equal(t, SkipReasonNotOptedIn, outcome.SkippedReason)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestAction_Execute_Failures(t *testing.T) {
	ctx := context.Background()
	fan := &models.Fan{ID: "fan-1", Email: "ana@example.com", EmailMarketingOptIn: true}

	t.Run("mailer error", func(t *testing.T) {
		fans := &mocks.MockFanReader{}
		sender := &mocks.MockMailer{}

		fans.On("GetFan", ctx, "ws-1", "fan-1").Return(fan, nil)
		sender.On("Send", ctx, mock.Anything).Return(errors.New("relay refused"))

		outcome, err := NewAction(fans, sender).Execute(ctx, testInput(), &models.SendEmailAction{Subject: "s", Body: "b"})
		require.NoError(t, err)
		assert.Equal(t, models.RunActionStatusFailed, outcome.Status)
		assert.ErrorContains(t, outcome.Err, "relay refused")
	})

	t.Run("broken template", func(t *testing.T) {
		fans := &mocks.MockFanReader{}
		sender := &mocks.MockMailer{}

		fans.On("GetFan", ctx, "ws-1", "fan-1").Return(fan, nil)

		outcome, err := NewAction(fans, sender).Execute(ctx, testInput(), &models.SendEmailAction{Subject: "{{ .fan", Body: "b"})
		require.NoError(t, err)
		assert.Equal(t, models.RunActionStatusFailed, outcome.Status)
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("missing fan", func(t *testing.T) {
		fans := &mocks.MockFanReader{}

		fans.On("GetFan", ctx, "ws-1", "fan-1").Return(nil, models.ErrFanNotFound)

		_, err := NewAction(fans, &mocks.MockMailer{}).Execute(ctx, testInput(), &models.SendEmailAction{Subject: "s", Body: "b"})
		require.ErrorIs(t, err, models.ErrFanNotFound)
	})
}
