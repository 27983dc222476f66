package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"clubdesk/internal/domain"
	"clubdesk/internal/service"
)

type messageCreateRequest struct {
	Subject       string   `json:"subject"`
	Body          string   `json:"body"`
	RecipientIDs  []string `json:"recipient_ids"`
	ToStaff       bool     `json:"to_staff"`
	IsBroadcast   bool     `json:"is_broadcast"`
	ExcludeAuthor *bool    `json:"exclude_author"`
}

type messageResponse struct {
	ID                 int64                `json:"id"`
	Subject            string               `json:"subject"`
	Body               string               `json:"body"`
	CreatedAt          time.Time            `json:"created_at"`
	AuthorMemberID     *int64               `json:"author_member_id"`
	IsBroadcast        bool                 `json:"is_broadcast"`
	DeliveryState      domain.DeliveryState `json:"delivery_state"`
	IntendedRecipients int                  `json:"intended_recipients"`
}

func toMessageResponse(m *domain.Message) messageResponse {
	return messageResponse{
		ID:                 m.ID,
		Subject:            m.Subject,
		Body:               m.Body,
		CreatedAt:          m.CreatedAt,
		AuthorMemberID:     m.AuthorMemberID,
		IsBroadcast:        m.IsBroadcast,
		DeliveryState:      m.DeliveryState,
		IntendedRecipients: m.IntendedRecipients,
	}
}

// @Summary      Send a message
// @Description  Direct message, message to staff, or broadcast to every member
// @Tags         messages
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      messageCreateRequest  true  "Message"
// @Success      201   {object}  messageResponse
// @Failure      400   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Failure      500   {object}  map[string]any  "partial delivery: message_id, delivered, intended"
// @Router       /messages [post]
func handleSendMessage(dispatchSvc *service.DispatchService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := CurrentPrincipal(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		var req messageCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if req.IsBroadcast && !principal.IsAdmin {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "only staff can broadcast"})
			return
		}

		msg, err := dispatchSvc.Dispatch(r.Context(), principal, service.DispatchInput{
			Subject:            req.Subject,
			Body:               req.Body,
			RecipientMemberIDs: req.RecipientIDs,
			ToStaff:            req.ToStaff,
			IsBroadcast:        req.IsBroadcast,
			ExcludeAuthor:      req.ExcludeAuthor,
		})
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, toMessageResponse(msg))
	}
}

// @Summary      Get a thread
// @Description  Staff pass ?member= to view their thread with a member; members get their staff thread
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Param        member  query  int  false  "Counterparty member id (staff only)"
// @Success      200  {array}   domain.ThreadEntry
// @Router       /messages/thread [get]
func handleGetThread(threadSvc *service.ThreadService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := CurrentPrincipal(r)

		var (
			entries []domain.ThreadEntry
			err     error
		)
		if raw := r.URL.Query().Get("member"); raw != "" {
			counterparty, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid member id"})
				return
			}
			entries, err = threadSvc.ListThreadWithMember(r.Context(), principal, counterparty)
		} else {
			entries, err = threadSvc.ListMyThread(r.Context(), principal)
		}
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// @Summary      Mark a message read
// @Tags         messages
// @Produce      json
// @Security     BearerAuth
// @Param        receiptID  path  int  true  "Delivery id"
// @Success      200  {object}  service.ReadResult
// @Router       /messages/receipts/{receiptID}/read [post]
func handleMarkReceiptRead(readSvc *service.ReadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := CurrentPrincipal(r)
		receiptID, err := strconv.ParseInt(chi.URLParam(r, "receiptID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid receipt id"})
			return
		}
		writeJSON(w, http.StatusOK, readSvc.MarkRead(r.Context(), principal, receiptID))
	}
}

// @Summary      Reconcile pending messages
// @Description  Finalizes messages whose deliveries all exist. Partially delivered
// @Description  messages are only deleted when purge=true.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        grace  query  string  false  "Minimum age, e.g. 5m"
// @Param        purge  query  bool    false  "Delete partially delivered messages"
// @Success      200  {object}  service.ReconcileReport
// @Router       /admin/messages/reconcile [post]
func handleReconcile(reconcileSvc *service.ReconcileService, defaultGrace time.Duration, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		grace := defaultGrace
		if raw := r.URL.Query().Get("grace"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid grace duration"})
				return
			}
			grace = d
		}
		var purge bool
		if raw := r.URL.Query().Get("purge"); raw != "" {
			p, err := strconv.ParseBool(raw)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid purge flag"})
				return
			}
			purge = p
		}
		report, err := reconcileSvc.ReconcileOrphans(r.Context(), grace, purge)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
