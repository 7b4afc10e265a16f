package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flows/pkg/eventbus"
	"github.com/dukex/flows/pkg/events"
	"github.com/dukex/flows/pkg/models"
)

// RunStarter creates the runs an incoming cart order starts.
type RunStarter interface {
	StartFromEvent(ctx context.Context, event *events.CartOrderCreated) ([]*models.WorkflowRun, error)
}

// Activator consumes cart order events and starts the workflows they trigger.
type Activator struct {
	id         string
	subscriber eventbus.EventSubscriber
	runs       RunStarter
	logger     *slog.Logger
}

func NewActivator(id string, subscriber eventbus.EventSubscriber, runs RunStarter, logger *slog.Logger) *Activator {
	return &Activator{
		id:         id,
		subscriber: subscriber,
		runs:       runs,
		logger:     logger.With("module", "activator"),
	}
}

// Start subscribes to cart order events and blocks until ctx is done.
func (a *Activator) Start(ctx context.Context) error {
	a.logger.InfoContext(ctx, "Starting activator")

	err := a.subscriber.Handle(events.CartOrderCreatedEvent, a.handleEvent)
	if err != nil {
		return fmt.Errorf("failed to register cart order handler: %w", err)
	}

	err = a.subscriber.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	a.logger.InfoContext(ctx, "Subscribed to cart order events")

	<-ctx.Done()
	a.logger.InfoContext(ctx, "Activator context cancelled, stopping")

	return nil
}

func (a *Activator) handleEvent(ctx context.Context, event any) error {
	order, ok := event.(*events.CartOrderCreated)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	return a.handleCartOrder(ctx, order)
}

// handleCartOrder returns an error, so the message is redelivered, only when no run could be
// created.
func (a *Activator) handleCartOrder(ctx context.Context, order *events.CartOrderCreated) error {
	logger := a.logger.With(
		"event_id", order.ID,
		"workspace_id", order.WorkspaceID,
		"cart_funnel_id", order.CartFunnelID,
		"fan_id", order.FanID,
	)

	runs, err := a.runs.StartFromEvent(ctx, order)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start runs", "started", len(runs), "error", err)

		if len(runs) == 0 {
			return err
		}
	}

	logger.InfoContext(ctx, "Processed cart order", "started", len(runs))

	return nil
}
