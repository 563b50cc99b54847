package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/activity"
)

// Hub is an in-process broadcaster: events published for a session fan out to
// every live subscriber of that session.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan activity.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan activity.Event]struct{})}
}

func (h *Hub) Publish(_ context.Context, sessionID string, event activity.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[sessionID] {
		select {
		case ch <- event:
		default:
			// Slow subscriber: drop its oldest event so broadcast never blocks.
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, sessionID string) (<-chan activity.Event, func(), error) {
	ch := make(chan activity.Event, 16)
	h.mu.Lock()
	if h.subscribers[sessionID] == nil {
		h.subscribers[sessionID] = make(map[chan activity.Event]struct{})
	}
	h.subscribers[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[sessionID]; ok {
			if _, live := subs[ch]; live {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.subscribers, sessionID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel, nil
}
