package events

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to a
// bounded channel for consumers that want a select loop.
//
// When ch is full the oldest queued value is discarded to make room, so a slow
// reader sees the most recent events. Every discarded value is counted in
// Bus.Dropped.
func SubscribeToChannel[T Event](bus *Bus, ch chan any) func() {
	return On(bus, func(e T) {
		for attempt := 0; attempt < 2; attempt++ {
			select {
			case ch <- e:
				return
			default:
			}
			select {
			case <-ch:
				bus.dropped.Add(1)
			default:
			}
		}
		bus.dropped.Add(1)
	})
}
