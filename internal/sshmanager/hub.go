package sshmanager

import (
	"log"
	"sync"
)

// DefaultSubscriberBuffer is the per-subscriber queue length used when
// Subscribe is called with n <= 0.
const DefaultSubscriberBuffer = 256

// Hub fans events out to subscribers and records lifecycle events in an
// EventLog. Publish never blocks: a subscriber whose queue is full is
// disconnected (its channel is closed) rather than silently missing events,
// so every subscriber sees either a gap-free stream or a closed channel.
type Hub struct {
	log *EventLog

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub returns a hub recording lifecycle events into log. log may be nil.
func NewHub(log *EventLog) *Hub {
	return &Hub{log: log, subs: make(map[chan Event]struct{})}
}

// Publish delivers ev to every subscriber.
func (h *Hub) Publish(ev Event) {
	if h.log != nil {
		h.log.Record(ev)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			delete(h.subs, ch)
			close(ch)
			log.Printf("[hub] subscriber queue full (%d events); disconnecting", cap(ch))
		}
	}
}

// Subscribe registers a subscriber with a queue of n events and returns its
// channel and an unsubscribe function. The channel is closed on
// unsubscribe or when the subscriber falls behind.
func (h *Hub) Subscribe(n int) (<-chan Event, func()) {
	if n <= 0 {
		n = DefaultSubscriberBuffer
	}
	ch := make(chan Event, n)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	unsub := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, unsub
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
