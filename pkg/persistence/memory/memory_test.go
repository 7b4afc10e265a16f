package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func seedWorkflow(t *testing.T, p *Persistence) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		ID:          "wf-1",
		WorkspaceID: "ws-1",
		Name:        "Welcome",
		Triggers:    []*models.WorkflowTrigger{{ID: "t1", Trigger: models.TriggerNewCartOrder}},
		Actions: []*models.WorkflowAction{
			{ID: "a1", Lexorank: "i", Action: models.ActionKindWait, Payload: &models.WaitAction{}},
			{ID: "a2", Lexorank: "r", Action: models.ActionKindWait, Payload: &models.WaitAction{}},
		},
		CreatedAt: now,
	}

	require.NoError(t, p.Workflows().Save(context.Background(), workflow))

	return workflow
}

func seedRun(t *testing.T, p *Persistence, id string, dueAt time.Time) *models.WorkflowRun {
	t.Helper()

	run := &models.WorkflowRun{
		ID:                 id,
		WorkflowID:         "wf-1",
		WorkspaceID:        "ws-1",
		TriggerFanID:       "fan-1",
		CurrentActionID:    "a1",
		RunCurrentActionAt: dueAt,
		Status:             models.RunStatusPending,
		CreatedAt:          dueAt,
	}

	require.NoError(t, p.Runs().Create(context.Background(), run))

	return run
}

func TestClaimDue_SelectsDueRunsOldestFirst(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(slog.Default())
	seedWorkflow(t, p)

	seedRun(t, p, "late", now.Add(-time.Minute))
	seedRun(t, p, "early", now.Add(-time.Hour))
	seedRun(t, p, "future", now.Add(time.Minute))
	seedRun(t, p, "exact", now)

	claimed, err := p.Runs().ClaimDue(ctx, persistence.ClaimOptions{Now: now, Limit: 10, Owner: "w1", LeaseFor: time.Minute})
	require.NoError(t, err)

	require.Len(t, claimed, 2)
	assert.Equal(t, "early", claimed[0].ID)
	assert.Equal(t, "late", claimed[1].ID)
	assert.Equal(t, "w1", claimed[0].LeaseOwner)

	again, err := p.Runs().ClaimDue(ctx, persistence.ClaimOptions{Now: now, Limit: 10, Owner: "w2", LeaseFor: time.Minute})
	require.NoError(t, err)
	assert.Empty(t, again, "leased runs are not claimable")

	expired, err := p.Runs().ClaimDue(ctx, persistence.ClaimOptions{Now: now.Add(2 * time.Minute), Limit: 10, Owner: "w2", LeaseFor: time.Minute})
	require.NoError(t, err)
	assert.Len(t, expired, 4, "expired leases and newly due runs are claimable")
}

func TestClaimDue_ConcurrentClaimsNeverOverlap(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(slog.Default())
	seedWorkflow(t, p)

	for i := range 50 {
		seedRun(t, p, fmt.Sprintf("run-%02d", i), now.Add(-time.Duration(i+1)*time.Second))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]string)
	)

	for w := range 5 {
		wg.Add(1)

		go func(owner string) {
			defer wg.Done()

			for {
				claimed, err := p.Runs().ClaimDue(ctx, persistence.ClaimOptions{Now: now, Limit: 3, Owner: owner, LeaseFor: time.Hour})
				if err != nil || len(claimed) == 0 {
					return
				}

				mu.Lock()
				for _, run := range claimed {
					_, dup := seen[run.ID]
					assert.False(t, dup, "run %s claimed twice", run.ID)
					seen[run.ID] = owner
				}
				mu.Unlock()
			}
		}(fmt.Sprintf("worker-%d", w))
	}

	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestClaimDue_SkipsArchivedWorkflows(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(slog.Default())
	seedWorkflow(t, p)
	seedRun(t, p, "r1", now.Add(-time.Minute))

	cancelled, err := p.Workflows().Archive(ctx, "wf-1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	claimed, err := p.Runs().ClaimDue(ctx, persistence.ClaimOptions{Now: now.Add(time.Hour), Limit: 10, Owner: "w1"})
	require.NoError(t, err)
	assert.Empty(t, claimed)

	run, err := p.Runs().GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, run.Status)
	assert.NotNil(t, run.CompletedAt)

	workflows, err := p.Workflows().List(ctx, persistence.WorkflowFilter{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	assert.Empty(t, workflows)

	workflows, err = p.Workflows().List(ctx, persistence.WorkflowFilter{WorkspaceID: "ws-1", IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, workflows, 1)
}

func TestApplyTransition(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(slog.Default())
	seedWorkflow(t, p)
	seedRun(t, p, "r1", now.Add(-time.Minute))

	_, err := p.Runs().ClaimDue(ctx, persistence.ClaimOptions{Now: now, Limit: 1, Owner: "w1", LeaseFor: time.Minute})
	require.NoError(t, err)

	transition := &models.RunTransition{
		RunID:      "r1",
		LeaseOwner: "w2",
		Record: &models.WorkflowRunAction{
			ID:               "ra1",
			WorkflowRunID:    "r1",
			WorkflowActionID: "a1",
			Status:           models.RunActionStatusSuccess,
			Attempt:          1,
		},
		CurrentActionID:    "a2",
		RunCurrentActionAt: now,
		Status:             models.RunStatusInProgress,
		UpdatedAt:          now,
	}

	err = p.Runs().ApplyTransition(ctx, transition)
	require.ErrorIs(t, err, persistence.ErrLeaseLost)

	records, err := p.RunActions().ListByRun(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, records, "nothing is written when the lease is lost")

	transition.LeaseOwner = "w1"
	require.NoError(t, p.Runs().ApplyTransition(ctx, transition))

	run, err := p.Runs().GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "a2", run.CurrentActionID)
	assert.Equal(t, models.RunStatusInProgress, run.Status)
	assert.Empty(t, run.LeaseOwner)

	last, err := p.RunActions().LastForAction(ctx, "r1", "a1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "ra1", last.ID)

	none, err := p.RunActions().LastForAction(ctx, "r1", "a2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSave_RejectsRemovingCurrentAction(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(slog.Default())
	workflow := seedWorkflow(t, p)
	seedRun(t, p, "r1", now)

	updated := *workflow
	updated.Actions = []*models.WorkflowAction{workflow.Actions[1]}

	err := p.Workflows().Save(ctx, &updated)
	require.ErrorIs(t, err, persistence.ErrActionInUse)

	updated.Actions = []*models.WorkflowAction{workflow.Actions[0]}
	require.NoError(t, p.Workflows().Save(ctx, &updated), "removing an action no run points at is allowed")

	stored, err := p.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, stored.Actions, 1)
	assert.Equal(t, "wf-1", stored.Actions[0].WorkflowID)
}

func TestSave_RejectsIDsOfAnotherWorkflow(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(slog.Default())
	seedWorkflow(t, p)

	other := &models.Workflow{
		ID:          "wf-2",
		WorkspaceID: "ws-2",
		Name:        "Takeover",
		Actions: []*models.WorkflowAction{
			{ID: "a1", Lexorank: "i", Action: models.ActionKindWait, Payload: &models.WaitAction{}},
		},
		CreatedAt: now,
	}

	err := p.Workflows().Save(ctx, other)
	require.ErrorIs(t, err, persistence.ErrIDConflict)

	other.Actions[0].ID = "b1"
	other.Triggers = []*models.WorkflowTrigger{{ID: "t1", Trigger: models.TriggerNewCartOrder}}
	err = p.Workflows().Save(ctx, other)
	require.ErrorIs(t, err, persistence.ErrIDConflict)

	stored, err := p.Workflows().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", stored.Actions[0].WorkflowID)
	assert.Equal(t, "wf-1", stored.Triggers[0].WorkflowID)

	other.Triggers[0].ID = "t2"
	require.NoError(t, p.Workflows().Save(ctx, other))
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(slog.Default())
	seedWorkflow(t, p)
	run := seedRun(t, p, "r1", now.Add(-time.Hour))

	completedAt := now
	require.NoError(t, p.Runs().ApplyTransition(ctx, &models.RunTransition{
		RunID:              run.ID,
		CurrentActionID:    "a1",
		RunCurrentActionAt: run.RunCurrentActionAt,
		Status:             models.RunStatusFailed,
		Attempts:           3,
		CompletedAt:        &completedAt,
		UpdatedAt:          now,
	}))

	retried, err := p.Runs().Retry(ctx, "r1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusInProgress, retried.Status)
	assert.Zero(t, retried.Attempts)
	assert.Nil(t, retried.CompletedAt)
	assert.Equal(t, now.Add(time.Minute), retried.RunCurrentActionAt)

	_, err = p.Runs().Retry(ctx, "missing", now)
	require.ErrorIs(t, err, persistence.ErrRunNotFound)
}

func TestFansAndAccounts(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(slog.Default())

	p.SaveFan(&models.Fan{ID: "fan-1", WorkspaceID: "ws-1", Email: "ana@example.com"})
	p.SaveProviderAccount(&models.ProviderAccount{WorkspaceID: "ws-1", Provider: models.ProviderMailchimp, Server: "us1"})

	fan, err := p.Fans().GetFan(ctx, "ws-1", "fan-1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", fan.Email)

	_, err = p.Fans().GetFan(ctx, "ws-2", "fan-1")
	require.ErrorIs(t, err, models.ErrFanNotFound)

	account, err := p.ProviderAccounts().GetProviderAccount(ctx, "ws-1", models.ProviderMailchimp)
	require.NoError(t, err)
	assert.Equal(t, "us1", account.Server)

	_, err = p.ProviderAccounts().GetProviderAccount(ctx, "ws-2", models.ProviderMailchimp)
	require.ErrorIs(t, err, persistence.ErrProviderAccountNotFound)
}

func TestLoadSeed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seed.json")

	require.NoError(t, os.WriteFile(path, []byte(`{
		"workflows": [{
			"id": "wf-1", "workspace_id": "ws-1", "name": "Welcome",
			"triggers": [{"id": "t1", "trigger": "NEW_CART_ORDER"}],
			"actions": [{"id": "a1", "lexorank": "i", "action": "ADD_TO_MAILCHIMP_AUDIENCE", "config": {"mailchimp_audience_id": "list-1"}}]
		}],
		"fans": [{"id": "fan-1", "workspace_id": "ws-1", "email": "ana@example.com", "email_marketing_opt_in": true}],
		"provider_accounts": [{"workspace_id": "ws-1", "provider": "mailchimp", "access_token": "secret", "server": "us1"}]
	}`), 0o600))

	p := NewPersistence(slog.Default())
	require.NoError(t, p.LoadSeed(ctx, path))

	workflows, err := p.Workflows().ListByTrigger(ctx, "ws-1", models.TriggerNewCartOrder)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, "list-1", workflows[0].Actions[0].Payload.(*models.AddToMailchimpAudienceAction).MailchimpAudienceID)

	account, err := p.ProviderAccounts().GetProviderAccount(ctx, "ws-1", models.ProviderMailchimp)
	require.NoError(t, err)
	assert.Equal(t, "secret", account.AccessToken)
}
