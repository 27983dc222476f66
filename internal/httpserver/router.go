package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"clubdesk/internal/config"
	"clubdesk/internal/metrics"
	"clubdesk/internal/realtime"
	"clubdesk/internal/security"
	"clubdesk/internal/service"
	"clubdesk/internal/ws"
)

// Services groups the application services the routes call into.
type Services struct {
	Members      *service.MemberService
	Threads      *service.ThreadService
	Dispatch     *service.DispatchService
	Conversation *service.ConversationService
	Reads        *service.ReadService
	Reconcile    *service.ReconcileService
}

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(cfg *config.Config, svc Services, hub *ws.Hub, notifier realtime.Subscriber, tokenSvc *security.TokenService, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	sends := newLimiterPool(cfg.SendRatePerSec, cfg.SendBurst)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(AuthMiddleware(tokenSvc, svc.Members, log))

		r.Get("/members", handleListMembers(svc.Members, log))

		r.Route("/messages", func(r chi.Router) {
			r.With(SendLimit(sends)).Post("/", handleSendMessage(svc.Dispatch, log))
			r.Get("/thread", handleGetThread(svc.Threads, log))
			r.Post("/receipts/{receiptID}/read", handleMarkReceiptRead(svc.Reads))

			r.Get("/conversations", handleListConversations(svc.Conversation, log))
			r.Post("/conversations/staff/read", handleMarkStaffConversationRead(svc.Reads))
			r.Post("/conversations/{memberID}/read", handleMarkConversationRead(svc.Reads))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/messages/reconcile", handleReconcile(svc.Reconcile, cfg.ReconcileGrace, log))
		})
	})

	// WebSocket endpoint
	r.Get("/ws", ws.MakeHandler(ws.Deps{
		Hub:            hub,
		Tokens:         tokenSvc,
		Members:        svc.Members,
		Threads:        svc.Threads,
		Reads:          svc.Reads,
		Notifier:       notifier,
		AllowedOrigins: cfg.CORSOrigins,
		Log:            log,
	}))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
