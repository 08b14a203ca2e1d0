package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Event is one push message for a connected user. Ping events carry no
// data and only keep the connection alive.
type Event struct {
	Type string
	Data json.RawMessage
}

const (
	EventPing = "ping"

	channelBuffer     = 8
	heartbeatInterval = 25 * time.Second
)

// Hub is the in-process registry of connected push clients: one delivery
// channel per user id. Connections register on subscribe, are dropped on
// unsubscribe, and are evicted when their channel stops draining.
type Hub struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan Event)}
}

// Register opens a delivery channel for the user. A previous channel for
// the same user is closed first; the newest connection wins.
func (h *Hub) Register(userID string) <-chan Event {
	ch := make(chan Event, channelBuffer)

	h.mu.Lock()
	if old, ok := h.subs[userID]; ok {
		close(old)
	}
	h.subs[userID] = ch
	h.mu.Unlock()

	return ch
}

// Unregister removes the user's channel if it is still the one handed
// out to this subscriber.
func (h *Hub) Unregister(userID string, ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.subs[userID]; ok && cur == ch {
		close(cur)
		delete(h.subs, userID)
	}
}

// SendIfPresent delivers the event to the user's channel if one is
// registered. A full channel means the client stopped reading; the
// connection is evicted instead of blocking the sender.
func (h *Hub) SendIfPresent(userID string, ev Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subs[userID]
	if !ok {
		return false
	}
	select {
	case ch <- ev:
		return true
	default:
		close(ch)
		delete(h.subs, userID)
		return false
	}
}

// Run emits a periodic liveness ping on every registered channel until
// the context ends, then closes all channels.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, ch := range h.subs {
				close(ch)
				delete(h.subs, id)
			}
			h.mu.Unlock()
			return
		case <-t.C:
			h.mu.Lock()
			for id, ch := range h.subs {
				select {
				case ch <- Event{Type: EventPing}:
				default:
					close(ch)
					delete(h.subs, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Connected reports how many users currently hold a channel.
func (h *Hub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
