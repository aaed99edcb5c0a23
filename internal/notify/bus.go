// Package notify implements the in-process fan-out channel observers use to
// learn when an item finished updating, failed, or became newly available.
package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

// Kind is the notification category.
type Kind string

const (
	UpdateComplete Kind = "updateComplete"
	UpdateFailed   Kind = "updateFailed"
	OwnershipReady Kind = "ownershipReady"
)

// Handler receives the item the notification concerns.
type Handler func(itemID string)

type subscriber struct {
	id int
	fn Handler
}

// Bus fans notifications out to per-kind subscribers. Delivery is at most
// once per Publish call, synchronous, in subscription order. A panicking
// subscriber does not prevent delivery to the others.
type Bus struct {
	log zerolog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[Kind][]subscriber
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{log: log, subs: make(map[Kind][]subscriber)}
}

// Subscribe registers fn for notifications of the given kind and returns an
// unsubscribe function. Unsubscribing twice is harmless.
func (b *Bus) Subscribe(kind Kind, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscriber{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[kind]
		for i, s := range list {
			if s.id == id {
				b.subs[kind] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers itemID to every subscriber of kind.
func (b *Bus) Publish(kind Kind, itemID string) {
	b.mu.RLock()
	list := make([]subscriber, len(b.subs[kind]))
	copy(list, b.subs[kind])
	b.mu.RUnlock()

	for _, s := range list {
		b.deliver(kind, itemID, s)
	}
}

func (b *Bus) deliver(kind Kind, itemID string, s subscriber) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("kind", string(kind)).Str("item", itemID).
				Msg("notification subscriber panic")
		}
	}()
	s.fn(itemID)
}
