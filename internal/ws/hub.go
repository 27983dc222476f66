package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks open WebSocket sessions keyed by member id so they can be
// counted and closed on shutdown. Event fan-out goes through the realtime
// notifier, not through the hub.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]map[*session]struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[int64]map[*session]struct{}),
	}
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[s.memberID] == nil {
		h.sessions[s.memberID] = make(map[*session]struct{})
	}
	h.sessions[s.memberID][s] = struct{}{}
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sessions, ok := h.sessions[s.memberID]; ok {
		delete(sessions, s)
		if len(sessions) == 0 {
			delete(h.sessions, s.memberID)
		}
	}
}

// Count returns the number of open sessions for a member.
func (h *Hub) Count(memberID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[memberID])
}

// CloseAll sends a close frame to every session. Their read loops then exit
// and unregister.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, sessions := range h.sessions {
		for s := range sessions {
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline())
			s.conn.Close()
		}
	}
}
