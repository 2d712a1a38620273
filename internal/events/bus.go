package events

import (
	"context"
	"sync"

	"complexityofneed.org/internal/complexity"
	"complexityofneed.org/internal/obs"
)

// Bus fans events out to in-process subscribers without blocking publishers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	buffer int
}

// NewBus creates a bus whose subscriber channels hold buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe registers a subscriber. The channel is closed when ctx ends.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers evt to every subscriber with room for it. Full
// subscribers miss the event.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			obs.ObserveEventPublish("dropped")
		}
	}
}

// Notifier adapts the bus to complexity.Notifier.
func (b *Bus) Notifier(baseURL string) complexity.Notifier {
	return complexity.NotifierFunc(func(_ context.Context, r complexity.Record) {
		b.Publish(FromRecord(r, baseURL))
	})
}
