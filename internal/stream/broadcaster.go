// Package stream fans finished ledger rows out to live subscribers.
package stream

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-emergency-alerts/internal/metrics"
	"github.com/mr1hm/go-emergency-alerts/internal/models"
)

const subscriberBuffer = 100

type subscriber struct {
	ch      chan models.AlertDelivery
	filter  Filter
	dropped atomic.Uint64
}

// Broadcaster delivers each published row to every subscriber whose filter
// matches it. Filtering happens before buffering, so a quiet subscription
// does not fill up with rows it would discard.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextID      atomic.Uint64
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]*subscriber),
	}
}

func (b *Broadcaster) Subscribe(filter Filter) (uint64, <-chan models.AlertDelivery) {
	sub := &subscriber{
		ch:     make(chan models.AlertDelivery, subscriberBuffer),
		filter: filter,
	}
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()

	return id, sub.ch
}

// Unsubscribe closes the subscriber's channel and returns how many rows it
// missed because its buffer was full. Unknown ids return 0.
func (b *Broadcaster) Unsubscribe(id uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subscribers[id]
	if !ok {
		return 0
	}
	close(sub.ch)
	delete(b.subscribers, id)
	return sub.dropped.Load()
}

// Publish never blocks. Matches a subscriber cannot take are counted as drops.
func (b *Broadcaster) Publish(d models.AlertDelivery) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if !sub.filter.Match(d) {
			continue
		}
		select {
		case sub.ch <- d:
		default:
			sub.dropped.Add(1)
			metrics.StreamDropped.Inc()
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close ends every subscription. Handlers see their channel close and send a
// going-away frame.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
