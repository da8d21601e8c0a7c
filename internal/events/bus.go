// Package events fans lottery notifications out to subscribers.
package events

import (
	"sync"

	"vrflottery/internal/models"

	"github.com/google/logger"
)

// Bus delivers every published event to every subscriber. A subscriber whose
// buffer is full misses the event; publishing never blocks.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan models.Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan models.Event)}
}

// Publish implements services.Publisher.
func (b *Bus) Publish(event models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			logger.Warningf("Subscriber %d is full, dropped %s event", id, event.Type)
		}
	}
}

// Subscribe returns a channel of events and a function that closes it.
func (b *Bus) Subscribe(buffer int) (<-chan models.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports how many subscriptions are open.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
