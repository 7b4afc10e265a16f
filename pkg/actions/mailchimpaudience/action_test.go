package mailchimpaudience

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/flows/pkg/mailchimp"
	"github.com/dukex/flows/pkg/mocks"
	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence"
	"github.com/dukex/flows/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testInput() protocol.ActionInput {
	return protocol.ActionInput{
		Workflow: &models.Workflow{ID: "wf-1"},
		Action:   &models.WorkflowAction{ID: "a1", Action: models.ActionKindAddToMailchimpAudience},
		Run:      &models.WorkflowRun{ID: "run-1", WorkspaceID: "ws-1", TriggerFanID: "fan-1"},
	}
}

func TestAction_Execute(t *testing.T) {
	ctx := context.Background()
	account := &models.ProviderAccount{WorkspaceID: "ws-1", Provider: models.ProviderMailchimp, AccessToken: "t", Server: "us1"}
	payload := &models.AddToMailchimpAudienceAction{MailchimpAudienceID: "list-1"}

	tests := []struct {
		name          string
		fan           *models.Fan
		fanErr        error
		account       *models.ProviderAccount
		accountErr    error
		clientErr     error
		expectCall    bool
		expectStatus  models.RunActionStatus
		expectReason  string
		expectErrorIs error
	}{
		{
			name:         "opted in fan is subscribed",
			fan:          &models.Fan{ID: "fan-1", Email: "ana@example.com", FirstName: "Ana", EmailMarketingOptIn: true},
			account:      account,
			expectCall:   true,
			expectStatus: models.RunActionStatusSuccess,
		},
		{
			name:         "fan without consent is skipped",
			fan:          &models.Fan{ID: "fan-1", Email: "ana@example.com"},
			account:      account,
			expectStatus: models.RunActionStatusSkipped,
			expectReason: SkipReasonNotOptedIn,
		},
		{
			name:         "fan without email is skipped",
			fan:          &models.Fan{ID: "fan-1", EmailMarketingOptIn: true},
			account:      account,
			expectStatus: models.RunActionStatusSkipped,
			expectReason: SkipReasonNoEmail,
		},
		{
			name:         "mailchimp error fails the action",
			fan:          &models.Fan{ID: "fan-1", Email: "ana@example.com", EmailMarketingOptIn: true},
			account:      account,
			clientErr:    errors.New("mailchimp down"),
			expectCall:   true,
			expectStatus: models.RunActionStatusFailed,
		},
		{
			name:          "missing fan",
			fanErr:        models.ErrFanNotFound,
			expectErrorIs: models.ErrFanNotFound,
		},
		{
			name:          "missing mailchimp account",
			fan:           &models.Fan{ID: "fan-1", Email: "ana@example.com", EmailMarketingOptIn: true},
			accountErr:    persistence.ErrProviderAccountNotFound,
			expectErrorIs: models.ErrMailchimpNotConfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fans := &mocks.MockFanReader{}
			accounts := &mocks.MockProviderAccountReader{}
			client := &mocks.MockAudienceClient{}

			fans.On("GetFan", ctx, "ws-1", "fan-1").Return(tt.fan, tt.fanErr)

			if tt.fanErr == nil {
				accounts.On("GetProviderAccount", ctx, "ws-1", models.ProviderMailchimp).Return(tt.account, tt.accountErr)
			}

			if tt.expectCall {
				client.On("AddListMember", ctx, account, "list-1", mock.MatchedBy(func(m mailchimp.Member) bool {
					return m.EmailAddress == "ana@example.com" && m.StatusIfNew == mailchimp.StatusSubscribed
				})).Return(tt.clientErr)
			}

			outcome, err := NewAction(fans, accounts, client).Execute(ctx, testInput(), payload)

			if tt.expectErrorIs != nil {
				require.ErrorIs(t, err, tt.expectErrorIs)
				client.AssertNotCalled(t, "AddListMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectStatus, outcome.Status)
			assert.Equal(t, tt.expectReason, outcome.SkippedReason)

			if tt.expectStatus == models.RunActionStatusFailed {
				require.Error(t, outcome.Err)
				assert.Contains(t, outcome.Err.Error(), "mailchimp down")
			}

			if !tt.expectCall {
				client.AssertNotCalled(t, "AddListMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}

			fans.AssertExpectations(t)
			accounts.AssertExpectations(t)
			client.AssertExpectations(t)
		})
	}
}

func TestActionFactory_Schema(t *testing.T) {
	factory := NewActionFactory()

	assert.Equal(t, models.ActionKindAddToMailchimpAudience, factory.ID())
	assert.Equal(t, []string{"mailchimp_audience_id"}, factory.Schema()["required"])
}
