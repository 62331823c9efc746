// Package memory provides an in-memory implementation of the domain event
// bus. It offers a lightweight, non-persistent broker suitable for a single
// process client where events only travel from the synchronization core to
// co-resident consumers.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ironsite/pipewatch/internal/domain/events"
)

type subscription struct {
	types   map[events.EventType]struct{}
	handler events.HandlerFunc
}

// Broker provides an in-memory implementation of the events.EventBus
// interface. It enables decoupled communication between the synchronization
// core and rendering consumers through message passing.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]subscription
	nextID int
}

// NewBroker creates and initializes a new in-memory event broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]subscription)}
}

// PublishDomainEvent broadcasts an event to all handlers subscribed to its
// type, stopping at the first handler error. Handlers are copied before
// iteration to avoid holding the lock while executing them.
func (b *Broker) PublishDomainEvent(ctx context.Context, event events.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	handlers := make([]events.HandlerFunc, 0, len(b.subs))
	for _, sub := range b.subs {
		if _, ok := sub.types[event.Type]; ok {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for the given event types. The subscription
// is removed when ctx is done.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	types := make(map[events.EventType]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = struct{}{}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscription{types: types, handler: handler}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}()

	return nil
}
