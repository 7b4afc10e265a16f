package registry

import (
	"log/slog"
	"testing"

	"github.com/dukex/flows/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	registry, err := NewDefaultRegistry(slog.Default())
	require.NoError(t, err)

	return registry
}

func TestRegistry_Actions(t *testing.T) {
	registry := newTestRegistry(t)

	actions := registry.Actions()
	require.Len(t, actions, len(models.ActionKinds()))

	for _, kind := range models.ActionKinds() {
		assert.True(t, registry.IsRegistered(kind), kind)
	}

	assert.Equal(t, models.ActionKindAddToMailchimpAudience, actions[0].ID)
	assert.NotEmpty(t, actions[0].Name)
	assert.NotEmpty(t, actions[0].Schema)
}

func TestRegistry_ValidateAction(t *testing.T) {
	registry := newTestRegistry(t)

	tests := []struct {
		name    string
		action  *models.WorkflowAction
		wantErr bool
	}{
		{
			name:   "wait without config",
			action: &models.WorkflowAction{ID: "a1", Action: models.ActionKindWait},
		},
		{
			name: "audience with list",
			action: &models.WorkflowAction{
				ID:      "a2",
				Action:  models.ActionKindAddToMailchimpAudience,
				Payload: &models.AddToMailchimpAudienceAction{MailchimpAudienceID: "list-1"},
			},
		},
		{
			name: "audience without list",
			action: &models.WorkflowAction{
				ID:      "a3",
				Action:  models.ActionKindAddToMailchimpAudience,
				Payload: &models.AddToMailchimpAudienceAction{},
			},
			wantErr: true,
		},
		{
			name: "email without body",
			action: &models.WorkflowAction{
				ID:      "a4",
				Action:  models.ActionKindSendEmail,
				Payload: &models.SendEmailAction{Subject: "Hi"},
			},
			wantErr: true,
		},
		{
			name: "branch with condition",
			action: &models.WorkflowAction{
				ID:      "a5",
				Action:  models.ActionKindBooleanBranch,
				Payload: &models.BooleanBranchAction{Condition: "[fan.email_marketing_opt_in]"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.ValidateAction(tt.action)
			if !tt.wantErr {
				assert.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, ErrInvalidConfig)

			var configErr *ConfigError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tt.action.ID, configErr.ActionID)
			assert.NotEmpty(t, configErr.Problems)
		})
	}
}

func TestRegistry_ValidateAction_Unregistered(t *testing.T) {
	registry := NewRegistry(slog.Default())

	err := registry.ValidateAction(&models.WorkflowAction{ID: "a1", Action: models.ActionKindWait})
	assert.ErrorIs(t, err, models.ErrUnsupportedAction)
}
