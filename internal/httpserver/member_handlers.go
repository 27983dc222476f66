package httpserver

import (
	"net/http"

	"go.uber.org/zap"

	"clubdesk/internal/domain"
	"clubdesk/internal/service"
)

// @Summary      List members
// @Description  Member directory for the recipient picker
// @Tags         members
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.Member
// @Router       /members [get]
func handleListMembers(memberSvc *service.MemberService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		members, err := memberSvc.List(r.Context())
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if members == nil {
			members = []*domain.Member{}
		}
		writeJSON(w, http.StatusOK, members)
	}
}
