// Package eventbus publishes and consumes flows events over watermill.
package eventbus

import (
	"context"

	"github.com/dukex/flows/pkg/events"
)

// Event is anything published on the bus; its type selects the decoder on the consuming side.
type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	// Publish sends event on the flows topic. Events sharing key keep their order on
	// partitioned transports.
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	// Handle registers the handler of one event type. It must be called before Subscribe.
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives the decoded event as a pointer, e.g. *events.CartOrderCreated.
// Returning an error nacks the message so it is redelivered.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}
