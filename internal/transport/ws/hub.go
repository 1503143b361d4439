package ws

import (
	"encoding/json"
	"sync"

	"landvote.ai/internal/protocol"
)

// Hub fans world events out to subscribed sessions. Publish runs on the
// world loop and never blocks; slow subscribers lose their oldest events.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan []byte
}

func NewHub() *Hub {
	return &Hub{subs: map[string]chan []byte{}}
}

func (h *Hub) Subscribe(sessionID string, size int) <-chan []byte {
	if size <= 0 {
		size = 8
	}
	ch := make(chan []byte, size)
	h.mu.Lock()
	h.subs[sessionID] = ch
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(sessionID string) {
	h.mu.Lock()
	delete(h.subs, sessionID)
	h.mu.Unlock()
}

func (h *Hub) Publish(ev protocol.EventMsg) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		sendLatest(ch, b)
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
