package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/cuecast-be/internal/accounts"
	"github.com/hongminglow/cuecast-be/internal/http/respond"
	"github.com/hongminglow/cuecast-be/internal/middleware"
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/policy"
	"github.com/hongminglow/cuecast-be/internal/rbac"
)

// UsersHandler exposes the account mutation service.
type UsersHandler struct {
	svc *accounts.Service
}

// NewUsersHandler constructs the handler.
func NewUsersHandler(svc *accounts.Service) *UsersHandler {
	return &UsersHandler{svc: svc}
}

// Register attaches /users routes behind authn and gate. gate is the coarse
// screen check; role-assignment and last-admin rules run in the service so
// that the same rules hold for every entry point.
func (h *UsersHandler) Register(r chi.Router, authn, gate func(http.Handler) http.Handler) {
	r.Route("/users", func(r chi.Router) {
		r.Use(authn, gate)
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
	})
}

func (h *UsersHandler) handleList(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFrom(r.Context())
	users, err := h.svc.ListUsers(r.Context(), caller)
	if err != nil {
		fail(w, caller, err)
		return
	}
	respond.JSON(w, http.StatusOK, "users fetched", users)
}

func (h *UsersHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFrom(r.Context())
	var req policy.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := h.svc.CreateUser(r.Context(), caller, req)
	if err != nil {
		fail(w, caller, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "user created", created)
}

func (h *UsersHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFrom(r.Context())
	var req policy.UpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.svc.UpdateUser(r.Context(), caller, chi.URLParam(r, "id"), req)
	if err != nil {
		fail(w, caller, err)
		return
	}
	respond.JSON(w, http.StatusOK, "user updated", updated)
}

func (h *UsersHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	caller := middleware.PrincipalFrom(r.Context())
	if err := h.svc.DeleteUser(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		fail(w, caller, err)
		return
	}
	respond.JSON(w, http.StatusOK, "user deleted", nil)
}

func fail(w http.ResponseWriter, caller *models.Account, err error) {
	respond.FromError(w, err, rbac.IsAdmin(caller))
}
