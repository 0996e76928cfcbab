package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/hongminglow/cuecast-be/internal/authz"
	"github.com/hongminglow/cuecast-be/internal/http/respond"
	"github.com/hongminglow/cuecast-be/internal/identity"
	"github.com/hongminglow/cuecast-be/internal/middleware"
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/models/dto"
	"github.com/hongminglow/cuecast-be/internal/policy"
	"github.com/hongminglow/cuecast-be/internal/rbac"
)

// Identity is the identity provider surface the auth endpoints use.
type Identity interface {
	Register(ctx context.Context, req policy.RegisterRequest) (identity.Registration, error)
	VerifyEmail(ctx context.Context, token string) (models.Account, error)
	SignIn(ctx context.Context, email, password string) (identity.Session, error)
	SignOut(ctx context.Context, token string) error
	GetSession(ctx context.Context, token string) (identity.Session, error)
	Principal(ctx context.Context, token string) (models.Account, error)
}

// AuthHandler owns registration, verification and session endpoints.
type AuthHandler struct {
	identity Identity
	log      *logrus.Logger
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(id Identity, log *logrus.Logger) *AuthHandler {
	return &AuthHandler{identity: id, log: log}
}

// Register attaches auth routes. authn guards the routes that need a
// session; limit throttles the credential endpoints.
func (h *AuthHandler) Register(r chi.Router, authn, limit func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Post("/register", h.handleRegister)
			r.Post("/verify", h.handleVerify)
			r.Post("/login", h.handleLogin)
		})
		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Post("/logout", h.handleLogout)
			r.Get("/session", h.handleSession)
		})
	})
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req policy.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reg, err := h.identity.Register(r.Context(), req)
	if err != nil {
		writeIdentityError(w, err)
		return
	}
	// Verification mail delivery is outside this service; operators pick the
	// token up from the log.
	h.log.WithFields(logrus.Fields{
		"user_id":            reg.PrincipalID,
		"verification_token": reg.VerificationToken,
	}).Info("verification token issued")

	respond.JSON(w, http.StatusCreated, reg.Message, dto.RegisterResponse{PrincipalID: reg.PrincipalID, Message: reg.Message})
}

func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		respond.FromError(w, policy.FieldError("token", "is required"), false)
		return
	}
	account, err := h.identity.VerifyEmail(r.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		writeIdentityError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "email verified", account)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respond.FromError(w, policy.FieldError("email", "email and password are required"), false)
		return
	}
	session, err := h.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidCredentials) {
			h.log.WithError(err).Warn("sign-in rejected")
		}
		writeIdentityError(w, err)
		return
	}
	account, err := h.identity.Principal(r.Context(), session.SessionToken)
	if err != nil {
		writeIdentityError(w, err)
		return
	}
	resp := sessionResponse(&account)
	resp.Token = session.SessionToken
	resp.ExpiresAt = &session.ExpiresAt
	respond.JSON(w, http.StatusOK, "login successful", resp)
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.identity.SignOut(r.Context(), middleware.TokenFrom(r.Context())); err != nil {
		writeIdentityError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, "signed out", nil)
}

func (h *AuthHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	account := middleware.PrincipalFrom(r.Context())
	session, err := h.identity.GetSession(r.Context(), middleware.TokenFrom(r.Context()))
	if err != nil {
		writeIdentityError(w, err)
		return
	}
	resp := sessionResponse(account)
	resp.ExpiresAt = &session.ExpiresAt
	respond.JSON(w, http.StatusOK, "session active", resp)
}

func sessionResponse(account *models.Account) dto.SessionResponse {
	tabs := authz.VisibleTabs(account)
	out := make([]dto.Tab, len(tabs))
	for i, tab := range tabs {
		out[i] = dto.Tab{Name: tab.Name, Title: tab.Title}
	}
	return dto.SessionResponse{
		Account:          *account,
		Permissions:      rbac.EffectivePermissions(account).Sorted(),
		Tabs:             out,
		RoleTableVersion: models.RoleTableVersion,
	}
}
