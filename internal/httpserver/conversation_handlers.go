package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"clubdesk/internal/domain"
	"clubdesk/internal/service"
)

// @Summary      List conversations
// @Description  Staff get one summary per member; members get their staff conversation, if any
// @Tags         conversations
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.ConversationSummary
// @Router       /messages/conversations [get]
func handleListConversations(convSvc *service.ConversationService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := CurrentPrincipal(r)

		if principal.IsAdmin {
			convs, err := convSvc.ListConversations(r.Context(), principal)
			if err != nil {
				writeError(w, r, log, err)
				return
			}
			writeJSON(w, http.StatusOK, convs)
			return
		}

		staff, err := convSvc.StaffConversation(r.Context(), principal)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		convs := []domain.ConversationSummary{}
		if staff != nil {
			convs = append(convs, *staff)
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

// @Summary      Mark a conversation read
// @Description  Marks every unread message from the member as read
// @Tags         conversations
// @Produce      json
// @Security     BearerAuth
// @Param        memberID  path  int  true  "Counterparty member id"
// @Success      200  {object}  service.ReadResult
// @Router       /messages/conversations/{memberID}/read [post]
func handleMarkConversationRead(readSvc *service.ReadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := CurrentPrincipal(r)
		memberID, err := strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
		if err != nil || memberID <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid member id"})
			return
		}
		res := readSvc.MarkConversationRead(r.Context(), principal, memberID)
		writeJSON(w, http.StatusOK, res)
	}
}

// @Summary      Mark the staff conversation read
// @Tags         conversations
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  service.ReadResult
// @Router       /messages/conversations/staff/read [post]
func handleMarkStaffConversationRead(readSvc *service.ReadService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := CurrentPrincipal(r)
		res := readSvc.MarkStaffConversationRead(r.Context(), principal)
		writeJSON(w, http.StatusOK, res)
	}
}
