// Package messaging provides the concrete implementation of the event bus.
package messaging

import (
	"sync"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/events"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/observability/logging"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/security"
)

type subscription struct {
	id       string
	userID   string
	listener Listener
	types    map[events.Type]bool // empty means all types
}

func (s *subscription) wants(eventType events.Type) bool {
	return len(s.types) == 0 || s.types[eventType]
}

// EventBus delivers events synchronously to subscribers in registration order.
type EventBus struct {
	subscriptions []*subscription
	mu            sync.Mutex
	logger        *logging.ChanneledLogger
}

var (
	globalBus *EventBus
	once      sync.Once
)

// NewEventBus creates the singleton EventBus instance.
func NewEventBus(logger *logging.ChanneledLogger) *EventBus {
	once.Do(func() {
		globalBus = &EventBus{
			subscriptions: make([]*subscription, 0),
			logger:        logger,
		}
	})
	return globalBus
}

// NewIsolatedBus creates a standalone bus not backed by the singleton,
// for use in tests and short-lived pipelines.
func NewIsolatedBus(logger *logging.ChanneledLogger) *EventBus {
	return &EventBus{
		subscriptions: make([]*subscription, 0),
		logger:        logger,
	}
}

// Subscribe registers a listener for the given event types. With no types
// the listener receives every event. The returned function removes the
// registration and is safe to call more than once.
func (b *EventBus) Subscribe(listener Listener, types ...events.Type) func() {
	return b.register("", listener, types)
}

// SubscribeForSession registers a listener bound to one user's session so
// that DetachSession can remove it on sign-out.
func (b *EventBus) SubscribeForSession(userID string, listener Listener, types ...events.Type) func() {
	return b.register(userID, listener, types)
}

func (b *EventBus) register(userID string, listener Listener, types []events.Type) func() {
	sub := &subscription{
		id:       security.GenerateULID(),
		userID:   userID,
		listener: listener,
		types:    make(map[events.Type]bool, len(types)),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	b.subscriptions = append(b.subscriptions, sub)
	b.mu.Unlock()

	if b.logger != nil {
		b.logger.Cache().Debug("Event listener registered", "subscriptionId", sub.id, "userId", userID, "types", len(types))
	}

	return func() { b.remove(sub.id) }
}

func (b *EventBus) remove(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscriptions {
		if sub.id == subscriptionID {
			b.subscriptions = append(b.subscriptions[:i], b.subscriptions[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every matching subscriber, synchronously
// and in registration order. A panicking listener is logged and skipped so
// later listeners still observe the event.
func (b *EventBus) Publish(event events.Event) {
	if event.Timestamp.IsZero() {
		event = event.Stamped()
	}

	b.mu.Lock()
	matched := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		if sub.wants(event.Type) {
			matched = append(matched, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range matched {
		b.deliver(sub, event)
	}
}

func (b *EventBus) deliver(sub *subscription, event events.Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Cache().Error("Panic recovered in event listener", "error", r, "subscriptionId", sub.id, "type", string(event.Type))
		}
	}()
	sub.listener(event)
}

// SubscriberCount returns the number of listeners that would receive an
// event of the given type.
func (b *EventBus) SubscriberCount(eventType events.Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, sub := range b.subscriptions {
		if sub.wants(eventType) {
			count++
		}
	}
	return count
}

// DetachSession removes every listener bound to the given user. Called on
// sign-out after the session-changed event has been delivered.
func (b *EventBus) DetachSession(userID string) {
	if userID == "" {
		return
	}

	b.mu.Lock()
	kept := make([]*subscription, 0, len(b.subscriptions))
	removed := 0
	for _, sub := range b.subscriptions {
		if sub.userID == userID {
			removed++
			continue
		}
		kept = append(kept, sub)
	}
	b.subscriptions = kept
	b.mu.Unlock()

	if removed > 0 && b.logger != nil {
		b.logger.Cache().Debug("Session listeners detached", "userId", userID, "removed", removed)
	}
}
