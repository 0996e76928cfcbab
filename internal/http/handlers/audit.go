package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/cuecast-be/internal/accounts"
	"github.com/hongminglow/cuecast-be/internal/http/respond"
	"github.com/hongminglow/cuecast-be/internal/middleware"
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/policy"
)

// AuditHandler serves the role and status change history.
type AuditHandler struct {
	svc *accounts.Service
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(svc *accounts.Service) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// Register attaches GET /audit-logs behind authn and gate.
func (h *AuditHandler) Register(r chi.Router, authn, gate func(http.Handler) http.Handler) {
	r.With(authn, gate).Get("/audit-logs", h.handleList)
}

func (h *AuditHandler) handleList(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFrom(r.Context())
	filter, ok := models.ParseAuditFilter(r.URL.Query().Get("filter"))
	if !ok {
		respond.FromError(w, policy.FieldError("filter", "must be all, role_changes or status_changes"), false)
		return
	}
	records, err := h.svc.ListAuditLogs(r.Context(), caller, filter)
	if err != nil {
		fail(w, caller, err)
		return
	}
	respond.JSON(w, http.StatusOK, "audit logs fetched", records)
}
