// Package hub implements the per-rift broadcast channel (spec §4.1, §9):
// a bounded, multi-subscriber fan-out queue with a drop-on-overflow
// backpressure policy, so one slow subscriber never stalls the others.
// Grounded on victorarias/attn's wsHub (internal/daemon/websocket.go):
// register/unregister/broadcast channels feeding a single owning goroutine,
// and rybkr/gitvista's RepoSession broadcast-per-session pattern for
// isolating state per logical channel instead of one global hub.
package hub

import (
	"sync"
)

// Subscriber is a per-session fan-out target. Send must be non-blocking
// from the hub's perspective — the Coordinator wraps an actual WebSocket
// session's outbound queue.
type Subscriber interface {
	// ID uniquely identifies the subscriber (a Session ID).
	ID() string
	// TrySend attempts a non-blocking enqueue of a wire frame. It returns
	// false if the subscriber's own queue is full.
	TrySend(frame []byte) bool
	// OnLagged is called exactly once when the hub drops this subscriber
	// for queue overflow (spec: "must re-JoinRift to resync"). riftID
	// identifies which rift's hub dropped the subscriber.
	OnLagged(riftID string)
}

// Hub is a single rift's broadcast channel: non-blocking publish,
// drop-on-overflow per subscriber. Hub holds no queue of its own; the
// capacity passed to New is recorded but bounds nothing, since each
// Subscriber's own queue decides when TrySend reports full.
type Hub struct {
	riftID      string
	mu          sync.RWMutex
	subscribers map[string]Subscriber
	capacity    int
}

// New creates a Hub for riftID with the given per-subscriber send-queue
// capacity. The capacity itself lives on each Subscriber implementation
// (the Coordinator's session send queue); Hub just enforces the drop policy
// when TrySend reports the queue full.
func New(riftID string, capacity int) *Hub {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Hub{riftID: riftID, subscribers: make(map[string]Subscriber), capacity: capacity}
}

// Join registers sub to receive future broadcasts. Re-joining with the same
// ID replaces the prior registration (idempotent rejoin after Lagged).
func (h *Hub) Join(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub.ID()] = sub
}

// Leave deregisters a subscriber. Idempotent.
func (h *Hub) Leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, id)
}

// Count returns the number of currently joined subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish fans frame out to every subscriber except exclude (the committing
// session itself, enforcing P3 — no self-echo). Publish is non-blocking per
// subscriber: a subscriber whose queue is full is dropped and notified via
// OnLagged, then deregistered (spec §4.1 "Lagged" policy).
func (h *Hub) Publish(frame []byte, exclude string) {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subscribers))
	for id, sub := range h.subscribers {
		if id == exclude {
			continue
		}
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	var lagged []string
	for _, sub := range targets {
		if !sub.TrySend(frame) {
			lagged = append(lagged, sub.ID())
		}
	}

	if len(lagged) == 0 {
		return
	}

	h.mu.Lock()
	for _, id := range lagged {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		for _, id := range lagged {
			if sub.ID() == id {
				sub.OnLagged(h.riftID)
			}
		}
	}
}

// Registry owns one Hub per rift, created lazily on first Get.
type Registry struct {
	mu       sync.Mutex
	hubs     map[string]*Hub
	capacity int
}

// NewRegistry creates a Registry whose Hubs are sized to capacity.
func NewRegistry(capacity int) *Registry {
	return &Registry{hubs: make(map[string]*Hub), capacity: capacity}
}

// Get returns the Hub for riftID, creating it if absent.
func (r *Registry) Get(riftID string) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[riftID]
	if !ok {
		h = New(riftID, r.capacity)
		r.hubs[riftID] = h
	}
	return h
}
