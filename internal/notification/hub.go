// Package notification fans image change events out to push channel
// subscribers.
package notification

import (
	"log/slog"
	"sync"

	"github.com/segmentio/ksuid"

	"github.com/lehigh-university-libraries/gallery/internal/observability"
)

const DefaultBuffer = 16

type subscriber struct {
	events chan []byte
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.events) })
}

// Hub delivers every published payload to every live subscriber in
// publication order. A subscriber whose buffer is full is dropped.
type Hub struct {
	subscribers map[string]*subscriber
	buffer      int
	closed      bool
	mu          sync.RWMutex
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subscribers: make(map[string]*subscriber),
		buffer:      buffer,
	}
}

// Subscribe registers a new subscriber. The returned channel is closed when
// the subscriber is cancelled, dropped, or the hub is closed.
func (h *Hub) Subscribe() (string, <-chan []byte, func()) {
	id := ksuid.New().String()
	sub := &subscriber{events: make(chan []byte, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return id, sub.events, func() {}
	}
	h.subscribers[id] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	observability.SetStreamSubscribers(count)
	slog.Debug("Stream subscriber added", "subscriber", id, "subscribers", count)
	return id, sub.events, func() { h.remove(id) }
}

// Publish delivers payload without blocking on slow subscribers.
func (h *Hub) Publish(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	for id, sub := range h.subscribers {
		select {
		case sub.events <- payload:
			observability.RecordPublished(true)
		default:
			slog.Warn("Dropping slow stream subscriber", "subscriber", id)
			observability.RecordPublished(false)
			delete(h.subscribers, id)
			sub.close()
		}
	}
	observability.SetStreamSubscribers(len(h.subscribers))
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close ends every subscription. Later publishes are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		sub.close()
	}
	observability.SetStreamSubscribers(0)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
		sub.close()
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		observability.SetStreamSubscribers(count)
		slog.Debug("Stream subscriber removed", "subscriber", id, "subscribers", count)
	}
}
