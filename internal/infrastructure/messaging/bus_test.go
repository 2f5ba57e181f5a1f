package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LinguaQuest/linguaquest-go/internal/domain/events"
)

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	bus := NewIsolatedBus(nil)

	var order []string
	bus.Subscribe(func(events.Event) { order = append(order, "first") })
	bus.Subscribe(func(events.Event) { order = append(order, "second") })
	bus.Subscribe(func(events.Event) { order = append(order, "third") })

	bus.Publish(events.New(events.XPUpdated, "user-1", nil))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestSubscribeFiltersByType(t *testing.T) {
	bus := NewIsolatedBus(nil)

	var got []events.Type
	bus.Subscribe(func(e events.Event) { got = append(got, e.Type) }, events.XPUpdated, events.StreakUpdated)

	bus.Publish(events.New(events.XPUpdated, "user-1", nil))
	bus.Publish(events.New(events.ProgressUpdated, "user-1", nil))
	bus.Publish(events.New(events.StreakUpdated, "user-1", nil))

	assert.Equal(t, []events.Type{events.XPUpdated, events.StreakUpdated}, got)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewIsolatedBus(nil)

	calls := 0
	unsubscribe := bus.Subscribe(func(events.Event) { calls++ })
	bus.Publish(events.New(events.XPUpdated, "user-1", nil))

	unsubscribe()
	unsubscribe()
	bus.Publish(events.New(events.XPUpdated, "user-1", nil))

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.SubscriberCount(events.XPUpdated))
}

func TestDetachSessionRemovesOnlyThatUser(t *testing.T) {
	bus := NewIsolatedBus(nil)

	var delivered []string
	bus.SubscribeForSession("user-1", func(events.Event) { delivered = append(delivered, "user-1") })
	bus.SubscribeForSession("user-2", func(events.Event) { delivered = append(delivered, "user-2") })
	bus.Subscribe(func(events.Event) { delivered = append(delivered, "global") })

	bus.DetachSession("user-1")
	bus.Publish(events.New(events.SessionChanged, "user-1", nil))

	assert.Equal(t, []string{"user-2", "global"}, delivered)
}

func TestPublishStampsTimestamp(t *testing.T) {
	bus := NewIsolatedBus(nil)

	var seen events.Event
	bus.Subscribe(func(e events.Event) { seen = e })
	bus.Publish(events.Event{Type: events.XPUpdated, UserID: "user-1"})

	require.False(t, seen.Timestamp.IsZero())
}

func TestPanickingListenerDoesNotBlockOthers(t *testing.T) {
	bus := NewIsolatedBus(nil)

	reached := false
	bus.Subscribe(func(events.Event) { panic("widget exploded") })
	bus.Subscribe(func(events.Event) { reached = true })

	bus.Publish(events.New(events.XPUpdated, "user-1", nil))
	assert.True(t, reached)
}
