package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/cuecast-be/internal/http/respond"
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/models/dto"
	"github.com/hongminglow/cuecast-be/internal/rbac"
)

// PermissionsHandler publishes the permission catalog and role table.
type PermissionsHandler struct{}

// NewPermissionsHandler constructs the handler.
func NewPermissionsHandler() *PermissionsHandler {
	return &PermissionsHandler{}
}

// Register attaches GET /permissions behind authn.
func (h *PermissionsHandler) Register(r chi.Router, authn func(http.Handler) http.Handler) {
	r.With(authn).Get("/permissions", h.handle)
}

func (h *PermissionsHandler) handle(w http.ResponseWriter, r *http.Request) {
	roles := make(map[models.Role][]models.PermissionID, len(models.Roles))
	for _, role := range models.Roles {
		roles[role] = rbac.PermissionsForRole(role).Sorted()
	}
	respond.JSON(w, http.StatusOK, "permissions fetched", dto.PermissionsResponse{
		Version:    models.RoleTableVersion,
		Roles:      roles,
		Categories: rbac.CatalogByCategory(),
	})
}
