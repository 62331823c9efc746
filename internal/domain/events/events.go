// Package events provides domain event handling capabilities for communicating
// state changes from the synchronization core to consumers (rendering layers)
// in a decoupled way.
package events

import (
	"context"
	"time"
)

// EventType represents a domain event category, enabling type-safe event
// routing and handling. It allows consumers to distinguish between per-stage
// status updates and run-level lifecycle changes.
type EventType string

// Domain event type constants. These describe "something happened" in the
// progress synchronization core.
const (
	EventTypeStageStatusUpdated EventType = "StageStatusUpdated"
	EventTypeRunStateChanged    EventType = "RunStateChanged"
	EventTypeSessionReset       EventType = "SessionReset"
)

// DomainEvent encapsulates all event data flowing from the synchronization
// core to its consumers, providing a standardized format for event processing
// and distribution.
type DomainEvent struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, containing the run id the event
	// belongs to so consumers can discard events from a superseded session.
	Key string

	// Timestamp records when this event was created, enabling temporal
	// tracking and debugging of event flows.
	Timestamp time.Time

	// Payload contains the actual event data (e.g., pipeline.StageStatusEvent).
	// The concrete type depends on the EventType.
	Payload any
}

// HandlerFunc processes a single domain event. Returning an error stops
// delivery of the current event to later handlers.
type HandlerFunc func(ctx context.Context, evt DomainEvent) error

// DomainEventPublisher publishes domain events to notify consumers about
// state changes. It provides a technology-agnostic interface to decouple the
// synchronization core from the notification mechanism.
type DomainEventPublisher interface {
	// PublishDomainEvent sends a domain event to interested subscribers.
	// Returns an error if publishing fails.
	PublishDomainEvent(ctx context.Context, event DomainEvent) error
}

// EventBus enables publishing and subscribing to domain events within the
// process. It abstracts delivery details to keep the core focused on
// reconciliation rather than notification plumbing.
type EventBus interface {
	DomainEventPublisher

	// Subscribe registers a handler function to process events of the
	// specified types. The handler executes for each matching event published
	// on this bus. The subscription lasts until the provided context is done.
	Subscribe(ctx context.Context, eventTypes []EventType, handler HandlerFunc) error
}
