package events

import (
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer bounds how many unconsumed events a slow subscriber may
// accumulate before Publish starts dropping its oldest.
const subscriberBuffer = 64

// Bus fans Event values out to any number of subscribers, each identified
// by a uuid handle so a caller can Unsubscribe precisely.
type Bus struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]chan Event
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uuid.UUID]chan Event)}
}

// Subscribe registers a new listener and returns its handle and channel.
// The channel is closed by Unsubscribe; callers must stop reading from it
// once that happens.
func (b *Bus) Subscribe() (uuid.UUID, <-chan Event) {
	id := uuid.New()
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if ok {
		close(ch)
	}
}

// Publish fans ev out to every current subscriber. A subscriber whose
// buffer is full has its oldest pending event dropped to make room, so one
// stalled consumer never blocks Publish or the others.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// SubscriberCount reports how many listeners are currently registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
