// Package registry holds the action catalog and validates action configs against it.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidConfig = errors.New("invalid action config")

// ConfigError lists the schema violations of one action config.
type ConfigError struct {
	ActionID string
	Kind     models.ActionKind
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("action %s (%s): %s", e.ActionID, e.Kind, strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

type entry struct {
	factory protocol.ActionFactory
	schema  *gojsonschema.Schema
}

type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	actions map[models.ActionKind]entry
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:  log,
		actions: make(map[models.ActionKind]entry),
	}
}

// RegisterAction adds factory to the catalog. Its schema is compiled once here.
func (r *Registry) RegisterAction(factory protocol.ActionFactory) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(factory.Schema()))
	if err != nil {
		return fmt.Errorf("invalid schema for action %s: %w", factory.ID(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.actions[factory.ID()] = entry{factory: factory, schema: schema}
	r.logger.Debug("Registered action", "action", factory.ID())

	return nil
}

// Actions returns the catalog ordered by action kind.
func (r *Registry) Actions() []protocol.ActionDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]protocol.ActionDescriptor, 0, len(r.actions))
	for _, e := range r.actions {
		descriptors = append(descriptors, protocol.Describe(e.factory))
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].ID < descriptors[j].ID
	})

	return descriptors
}

func (r *Registry) IsRegistered(kind models.ActionKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.actions[kind]

	return ok
}

// ValidateAction checks the action payload against the catalog schema of its kind.
func (r *Registry) ValidateAction(action *models.WorkflowAction) error {
	r.mu.RLock()
	e, ok := r.actions[action.Action]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", models.ErrUnsupportedAction, action.Action)
	}

	config, err := models.MarshalPayload(action.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode config of action %s: %w", action.ID, err)
	}

	result, err := e.schema.Validate(gojsonschema.NewBytesLoader(config))
	if err != nil {
		return fmt.Errorf("failed to validate config of action %s: %w", action.ID, err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		problems = append(problems, resultErr.String())
	}

	return &ConfigError{ActionID: action.ID, Kind: action.Action, Problems: problems}
}

// ValidateWorkflow validates every action of workflow and joins the errors.
func (r *Registry) ValidateWorkflow(workflow *models.Workflow) error {
	var errs []error

	for _, action := range workflow.Actions {
		if err := r.ValidateAction(action); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
