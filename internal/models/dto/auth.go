package dto

import (
	"time"

	"github.com/hongminglow/cuecast-be/internal/models"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyRequest struct {
	Token string `json:"token"`
}

type RegisterResponse struct {
	PrincipalID string `json:"principalId"`
	Message     string `json:"message"`
}

// Tab is a navigation entry the principal may open.
type Tab struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// SessionResponse describes the signed-in principal as the UI needs it.
type SessionResponse struct {
	Token            string                `json:"token,omitempty"`
	ExpiresAt        *time.Time            `json:"expiresAt,omitempty"`
	Account          models.Account        `json:"account"`
	Permissions      []models.PermissionID `json:"permissions"`
	Tabs             []Tab                 `json:"tabs"`
	RoleTableVersion string                `json:"roleTableVersion"`
}

type PermissionsResponse struct {
	Version    string                                `json:"version"`
	Roles      map[models.Role][]models.PermissionID `json:"roles"`
	Categories map[string][]models.Permission        `json:"categories"`
}
