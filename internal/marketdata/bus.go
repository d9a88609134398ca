package marketdata

import (
	"sync"
)

const (
	EventQuote          = "quote"
	EventOrderCreated   = "order_created"
	EventOrderCancelled = "order_cancelled"
)

// Event is one message on the bus. UserID is zero for events every
// subscriber may see.
type Event struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId,omitempty"`
	Data   any    `json:"data"`
}

type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 100)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}
