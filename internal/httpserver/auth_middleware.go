package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"clubdesk/internal/domain"
	"clubdesk/internal/security"
	"clubdesk/internal/service"
)

type contextKey string

const principalContextKey contextKey = "principal"

// WithPrincipal returns a new context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// CurrentPrincipal extracts the principal from the request context, if any.
func CurrentPrincipal(r *http.Request) (domain.Principal, bool) {
	p, ok := r.Context().Value(principalContextKey).(domain.Principal)
	return p, ok
}

// AuthMiddleware validates the Bearer token and attaches the principal,
// resolved against the member directory, to the context.
func AuthMiddleware(tokens *security.TokenService, members *service.MemberService, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid Authorization header"})
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			claims, err := tokens.Parse(tokenStr)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}

			principal, err := members.ResolvePrincipal(r.Context(), claims.Subject)
			if err != nil {
				log.Error("resolve principal",
					zap.String("sub", claims.Subject),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin rejects principals without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := CurrentPrincipal(r)
		if !ok || !p.IsAdmin {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin only"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
