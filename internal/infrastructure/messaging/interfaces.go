// Package messaging defines interfaces for in-process event delivery.
package messaging

import "github.com/LinguaQuest/linguaquest-go/internal/domain/events"

// Listener receives events synchronously on the publishing goroutine.
type Listener func(event events.Event)

// Bus defines the interface for typed publish/subscribe between the
// reward engine and UI-facing consumers.
type Bus interface {
	Subscribe(listener Listener, types ...events.Type) (unsubscribe func())
	SubscribeForSession(userID string, listener Listener, types ...events.Type) (unsubscribe func())
	Publish(event events.Event)
	SubscriberCount(eventType events.Type) int
	DetachSession(userID string)
}
