// Package events provides an in-memory event bus for session lifecycle
// notifications. The session manager publishes state changes here so that
// feature surfaces can react without the core knowing who listens.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session lifecycle event types
const (
	TypeSignedIn    = "session.signed_in"
	TypeSignedOut   = "session.signed_out"
	TypeRevalidated = "session.revalidated"
	TypeRoleChanged = "session.role_changed"

	// TypeDemoted fires when revalidation detects the principal's new role has
	// a strictly lower hierarchy level than before. Consumers holding
	// privileged views are expected to exit them.
	TypeDemoted = "session.demoted"
)

// Event represents a session lifecycle event
type Event struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	PrincipalID string                 `json:"principal_id,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// NewEvent creates a new event with a generated ID and timestamp
func NewEvent(eventType, principalID string, payload map[string]interface{}) Event {
	return Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		PrincipalID: principalID,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
}

// Handler processes events
type Handler func(ctx context.Context, event Event)

// Subscription represents a registered handler
type Subscription struct {
	ID        string
	EventType string
	Handler   Handler
}

// Bus is the event bus interface
type Bus interface {
	// Publish delivers an event synchronously to all matching subscribers
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for a specific event type; "*" matches all
	Subscribe(eventType string, handler Handler) *Subscription

	// Unsubscribe removes a subscription
	Unsubscribe(sub *Subscription)

	// Close shuts down the bus; further publishes fail
	Close() error
}

// MemoryBus is an in-memory event bus implementation
type MemoryBus struct {
	mu            sync.RWMutex
	subscriptions map[string][]*Subscription
	closed        bool
}

// NewMemoryBus creates a new in-memory event bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subscriptions: make(map[string][]*Subscription),
	}
}

// Publish delivers an event synchronously to all matching subscribers
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("event bus is closed")
	}

	handlers := make([]*Subscription, 0)
	if subs, ok := b.subscriptions[event.Type]; ok {
		handlers = append(handlers, subs...)
	}
	if subs, ok := b.subscriptions["*"]; ok {
		handlers = append(handlers, subs...)
	}
	b.mu.RUnlock()

	for _, sub := range handlers {
		sub.Handler(ctx, event)
	}

	return nil
}

// Subscribe registers a handler for events of a specific type
func (b *MemoryBus) Subscribe(eventType string, handler Handler) *Subscription {
	sub := &Subscription{
		ID:        uuid.New().String(),
		EventType: eventType,
		Handler:   handler,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions[eventType] = append(b.subscriptions[eventType], sub)

	return sub
}

// Unsubscribe removes a subscription
func (b *MemoryBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscriptions[sub.EventType]
	for i, s := range subs {
		if s.ID == sub.ID {
			b.subscriptions[sub.EventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Close shuts down the event bus
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscriptions = make(map[string][]*Subscription)
	return nil
}
