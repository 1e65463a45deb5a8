// Package events fans run events out to in-process subscribers (websocket
// clients, the run log) and optionally mirrors them to Redis.
package events

import (
	"sync"

	"github.com/fenixctl/enroller/internal/model"
)

// Bus publishes run events without blocking the publisher.
type Bus interface {
	Publish(ev model.RunEvent)
	Subscribe(buffer int) (<-chan model.RunEvent, func())
}

// MemoryBus is an in-process Bus. Subscribers that fall behind lose events.
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan model.RunEvent
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]chan model.RunEvent)}
}

// Publish delivers ev to every subscriber with room in its buffer.
func (b *MemoryBus) Publish(ev model.RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel; it is safe to call more than once.
func (b *MemoryBus) Subscribe(buffer int) (<-chan model.RunEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan model.RunEvent, buffer)

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

// Subscribers returns the number of live subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
