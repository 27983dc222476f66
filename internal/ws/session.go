package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"clubdesk/internal/domain"
	"clubdesk/internal/realtime"
	"clubdesk/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

func deadline() time.Time { return time.Now().Add(writeWait) }

// session is one authenticated connection. All writes go through send and
// are performed by the writer goroutine.
type session struct {
	id        string
	conn      *websocket.Conn
	principal domain.Principal
	memberID  int64

	threads *service.ThreadService
	reads   *service.ReadService
	log     *zap.Logger

	gate service.RequestGate
	send chan any
	done chan struct{}
}

// enqueue hands a frame to the writer. Frames are dropped when the session
// is closing or the client is too slow to keep up.
func (s *session) enqueue(frame any) {
	select {
	case <-s.done:
	case s.send <- frame:
	default:
		s.log.Warn("ws send buffer full, dropping frame")
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(deadline())
			if err := s.conn.WriteJSON(frame); err != nil {
				s.log.Debug("ws write failed", zap.Error(err))
				s.conn.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline()); err != nil {
				s.conn.Close()
				return
			}
		}
	}
}

func (s *session) onEvent(ev realtime.Event) {
	s.enqueue(map[string]any{
		"type":       "receipt_" + string(ev.Kind),
		"receipt_id": ev.ReceiptID,
		"message_id": ev.MessageID,
		"at":         ev.At,
	})
}

// readLoop handles client frames until the connection closes.
func (s *session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var payload map[string]any
		if err := s.conn.ReadJSON(&payload); err != nil {
			return
		}
		msgType, _ := payload["type"].(string)
		switch msgType {

		// ── thread fetch ─────────────────────────────────────────────────
		case "open_thread":
			counterparty, _ := payload["member"].(float64)
			token := s.gate.Begin()
			go s.loadThread(ctx, token, int64(counterparty))

		// ── read state ───────────────────────────────────────────────────
		case "mark_read":
			var res service.ReadResult
			switch {
			case payload["receipt_id"] != nil:
				receiptID, _ := payload["receipt_id"].(float64)
				res = s.reads.MarkRead(ctx, s.principal, int64(receiptID))
			case payload["member"] != nil:
				counterparty, _ := payload["member"].(float64)
				res = s.reads.MarkConversationRead(ctx, s.principal, int64(counterparty))
			default:
				res = s.reads.MarkStaffConversationRead(ctx, s.principal)
			}
			s.enqueue(map[string]any{
				"type":     "read_result",
				"updated":  res.Updated,
				"degraded": res.Degraded,
			})

		default:
			s.log.Debug("ws: unknown event type", zap.String("type", msgType))
		}
	}
}

// loadThread fetches a thread and sends it only if no newer open_thread
// arrived in the meantime.
func (s *session) loadThread(ctx context.Context, token uint64, counterparty int64) {
	var (
		entries []domain.ThreadEntry
		err     error
	)
	if counterparty > 0 {
		entries, err = s.threads.ListThreadWithMember(ctx, s.principal, counterparty)
	} else {
		entries, err = s.threads.ListMyThread(ctx, s.principal)
	}

	if !s.gate.IsCurrent(token) {
		s.log.Debug("dropping stale thread response", zap.Uint64("request", token))
		return
	}
	if err != nil {
		s.log.Warn("ws: load thread", zap.Int64("counterparty", counterparty), zap.Error(err))
		sendError(s, "failed to load thread")
		return
	}
	frame := map[string]any{
		"type":    "thread",
		"request": token,
		"entries": entries,
	}
	if counterparty > 0 {
		frame["member"] = counterparty
	}
	s.enqueue(frame)
}

func sendError(s *session, msg string) {
	s.enqueue(map[string]any{
		"type":    "error",
		"message": msg,
	})
}
