package period

import "sync"

// Hub fans clock snapshots out to subscribers without ever blocking the clock.
type Hub struct {
	mu          sync.RWMutex
	subscribers []chan Snapshot
}

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) Subscribe() <-chan Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Snapshot, 16)
	h.subscribers = append(h.subscribers, ch)
	return ch
}

func (h *Hub) Notify(s Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- s:
		default:
			// subscriber is behind; it will catch up on the next transition
		}
	}
}

// Close closes every subscription channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = nil
}
