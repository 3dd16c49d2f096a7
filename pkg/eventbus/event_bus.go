// Package eventbus carries workflow events between the engine and interested consumers.
package eventbus

import (
	"context"

	"github.com/dukex/docstates/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}

// Discard drops every event. It is used when no bus is configured.
var Discard EventPublisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, string, Event) error {
	return nil
}
