package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"clubdesk/internal/realtime"
	"clubdesk/internal/security"
	"clubdesk/internal/service"
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if _, ok := allowed["*"]; ok {
		return func(*http.Request) bool { return true }
	}
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// Deps groups what a session needs.
type Deps struct {
	Hub            *Hub
	Tokens         *security.TokenService
	Members        *service.MemberService
	Threads        *service.ThreadService
	Reads          *service.ReadService
	Notifier       realtime.Subscriber
	AllowedOrigins []string
	Log            *zap.Logger
}

// MakeHandler returns an HTTP handler for the /ws endpoint.
// Authenticates via Bearer token (Authorization header or Sec-WebSocket-Protocol),
// subscribes the member to delivery events and handles client frames:
//   - open_thread -> thread for {member} (admin) or the staff thread; a newer
//     open_thread supersedes any response still in flight
//   - mark_read   -> {receipt_id}, {member} or the whole staff thread
//
// Server frames: receipt_insert, receipt_update, thread, read_result, error.
func MakeHandler(d Deps) http.HandlerFunc {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	checkOrigin := makeCheckOrigin(d.AllowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			if authErr, ok := err.(wsAuthError); ok {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := d.Tokens.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		principal, err := d.Members.ResolvePrincipal(r.Context(), claims.Subject)
		if err != nil {
			log.Error("ws: resolve principal", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !principal.HasMember() {
			http.Error(w, "no member profile", http.StatusForbidden)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// middleware.Timeout cancels the request context; sessions outlive it.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s := &session{
			id:        uuid.NewString(),
			conn:      conn,
			principal: principal,
			memberID:  *principal.MemberID,
			threads:   d.Threads,
			reads:     d.Reads,
			send:      make(chan any, sendBuffer),
			done:      make(chan struct{}),
		}
		s.log = log.With(zap.String("session", s.id), zap.Int64("member_id", s.memberID))

		d.Hub.register(s)
		unsubscribe := d.Notifier.Subscribe(s.memberID, s.onEvent)
		defer func() {
			unsubscribe()
			d.Hub.unregister(s)
			close(s.done)
			s.log.Debug("ws session closed")
		}()

		go s.writeLoop()
		s.log.Debug("ws session opened")
		s.readLoop(ctx)
	}
}
