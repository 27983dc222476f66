package httpserver

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"clubdesk/internal/domain"
	"clubdesk/internal/service"
)

// writeError maps a service error onto an HTTP status. A partially
// delivered message is a server-side failure; the body still tells the
// client which message was kept and how far the fan-out got.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var partial *service.PartialDeliveryError
	switch {
	case errors.As(err, &partial):
		log.Warn("partial delivery",
			zap.Int64("message_id", partial.MessageID),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":      "message was only partially delivered",
			"message_id": partial.MessageID,
			"delivered":  partial.Delivered,
			"intended":   partial.Intended,
		})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	default:
		log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
