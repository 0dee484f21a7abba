package api

import (
	"context"
	"sync"

	"latexlens/internal/models"
)

const subscriberBuffer = 16

// eventHub fans progress events out to SSE subscribers. A subscriber whose
// buffer is full is disconnected, so every open stream carries each event
// in order.
type eventHub struct {
	mu   sync.Mutex
	subs map[chan models.ProgressEvent]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[chan models.ProgressEvent]struct{})}
}

func (h *eventHub) Emit(_ context.Context, ev models.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *eventHub) subscribe() (<-chan models.ProgressEvent, func()) {
	ch := make(chan models.ProgressEvent, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}
