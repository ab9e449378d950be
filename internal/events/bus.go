package events

import (
	"sync/atomic"

	"github.com/kelindar/event"
)

// Bus carries supervisor events to any number of observers. It sits on a
// kelindar/event dispatcher: every subscriber gets its own ordered queue and
// goroutine, so Publish returns without waiting for handlers.
type Bus struct {
	dispatcher *event.Dispatcher
	dropped    atomic.Uint64
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Emit publishes e to the subscribers of T.
func Emit[T Event](b *Bus, e T) {
	event.Publish(b.dispatcher, e)
}

// On subscribes fn to events of type T and returns the unsubscribe function.
func On[T Event](b *Bus, fn func(T)) func() {
	return event.Subscribe(b.dispatcher, fn)
}

// Publish is the untyped form of Emit for the event types of this package.
// Values of other types are ignored.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case LogBatchEvent:
		Emit(b, e)
	case RunStateEvent:
		Emit(b, e)
	case StatusChangedEvent:
		Emit(b, e)
	case RestartScheduledEvent:
		Emit(b, e)
	}
}

// Subscribe is the untyped form of On. The parameter type of handler selects
// the events it receives:
//
//	unsub := bus.Subscribe(func(e StatusChangedEvent) { ... })
//
// An unsupported handler type subscribes to nothing.
func (b *Bus) Subscribe(handler any) (unsubscribe func()) {
	switch h := handler.(type) {
	case func(LogBatchEvent):
		return On(b, h)
	case func(RunStateEvent):
		return On(b, h)
	case func(StatusChangedEvent):
		return On(b, h)
	case func(RestartScheduledEvent):
		return On(b, h)
	}
	return func() {}
}

// Dropped counts events discarded by full channel subscriptions.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
