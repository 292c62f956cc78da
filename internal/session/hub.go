package session

import (
	"sync"

	"onboarding_backend/internal/identity"
)

// Event is an auth-state notification for one session.
type Event struct {
	SessionID string
	State     AuthState
	User      *identity.User
}

// Hub fans auth-state changes out to the requests of the same session that are
// waiting on them.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers for events of sid. The returned func unsubscribes.
func (h *Hub) Subscribe(sid string) (<-chan Event, func()) {
	ch := make(chan Event, 1)

	h.mu.Lock()
	if h.subs[sid] == nil {
		h.subs[sid] = make(map[chan Event]struct{})
	}
	h.subs[sid][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[sid], ch)
		if len(h.subs[sid]) == 0 {
			delete(h.subs, sid)
		}
	}
}

// Publish delivers ev to current subscribers without blocking. A subscriber that
// has not consumed its previous event only keeps the older one.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
