// Package memory provides an in-process persistence implementation for development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence"
)

// Persistence keeps every record in maps guarded by one mutex, so a claim and a transition are
// each atomic with respect to every other operation.
type Persistence struct {
	logger *slog.Logger

	mu         sync.Mutex
	workflows  map[string]*models.Workflow
	runs       map[string]*models.WorkflowRun
	runActions map[string][]*models.WorkflowRunAction
	fans       map[string]*models.Fan
	accounts   map[string]*models.ProviderAccount
}

func NewPersistence(logger *slog.Logger) *Persistence {
	return &Persistence{
		logger:     logger.With("module", "memory_persistence"),
		workflows:  make(map[string]*models.Workflow),
		runs:       make(map[string]*models.WorkflowRun),
		runActions: make(map[string][]*models.WorkflowRunAction),
		fans:       make(map[string]*models.Fan),
		accounts:   make(map[string]*models.ProviderAccount),
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return &workflowRepository{p: p}
}

func (p *Persistence) Runs() persistence.RunRepository {
	return &runRepository{p: p}
}

func (p *Persistence) RunActions() persistence.RunActionRepository {
	return &runActionRepository{p: p}
}

func (p *Persistence) Fans() persistence.FanRepository {
	return &fanRepository{p: p}
}

func (p *Persistence) ProviderAccounts() persistence.ProviderAccountRepository {
	return &providerAccountRepository{p: p}
}

func (*Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (*Persistence) Close(_ context.Context) error {
	return nil
}

// SaveFan stores fan. Fans are owned by another system; this exists for seeding.
func (p *Persistence) SaveFan(fan *models.Fan) {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *fan
	p.fans[fan.ID] = &clone
}

// SaveProviderAccount stores account. Provider accounts are owned by another system; this exists for seeding.
func (p *Persistence) SaveProviderAccount(account *models.ProviderAccount) {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *account
	p.accounts[accountKey(account.WorkspaceID, account.Provider)] = &clone
}

type seedAccount struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Provider    string `json:"provider"`
	AccessToken string `json:"access_token"`
	Server      string `json:"server"`
}

type seed struct {
	Workflows        []*models.Workflow `json:"workflows"`
	Fans             []*models.Fan      `json:"fans"`
	ProviderAccounts []seedAccount      `json:"provider_accounts"`
}

// LoadSeed loads workflows, fans and provider accounts from a JSON file.
func (p *Persistence) LoadSeed(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var s seed
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	for _, workflow := range s.Workflows {
		if err := p.Workflows().Save(ctx, workflow); err != nil {
			return err
		}
	}

	for _, fan := range s.Fans {
		p.SaveFan(fan)
	}

	for _, account := range s.ProviderAccounts {
		p.SaveProviderAccount(&models.ProviderAccount{
			ID:          account.ID,
			WorkspaceID: account.WorkspaceID,
			Provider:    account.Provider,
			AccessToken: account.AccessToken,
			Server:      account.Server,
		})
	}

	p.logger.InfoContext(ctx, "Loaded seed", "path", path, "workflows", len(s.Workflows), "fans", len(s.Fans))

	return nil
}

func accountKey(workspaceID, provider string) string {
	return workspaceID + "/" + provider
}

func cloneWorkflow(workflow *models.Workflow) *models.Workflow {
	clone := *workflow

	clone.Triggers = make([]*models.WorkflowTrigger, len(workflow.Triggers))
	for i, trigger := range workflow.Triggers {
		t := *trigger
		clone.Triggers[i] = &t
	}

	clone.Actions = make([]*models.WorkflowAction, len(workflow.Actions))
	for i, action := range workflow.Actions {
		a := *action
		clone.Actions[i] = &a
	}

	return &clone
}

func cloneRun(run *models.WorkflowRun) *models.WorkflowRun {
	clone := *run

	return &clone
}

type fanRepository struct {
	p *Persistence
}

func (r *fanRepository) GetFan(_ context.Context, workspaceID, fanID string) (*models.Fan, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	fan, ok := r.p.fans[fanID]
	if !ok || fan.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("%w: %s", models.ErrFanNotFound, fanID)
	}

	clone := *fan

	return &clone, nil
}

type providerAccountRepository struct {
	p *Persistence
}

func (r *providerAccountRepository) GetProviderAccount(_ context.Context, workspaceID, provider string) (*models.ProviderAccount, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	account, ok := r.p.accounts[accountKey(workspaceID, provider)]
	if !ok {
		return nil, fmt.Errorf("%w: %s for workspace %s", persistence.ErrProviderAccountNotFound, provider, workspaceID)
	}

	clone := *account

	return &clone, nil
}
