package models

import "time"

// Account is an authenticated principal: the auth record joined with its profile row.
type Account struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Name             string         `json:"name"`
	Role             Role           `json:"role"`
	IsActive         bool           `json:"isActive"`
	CreatedAt        time.Time      `json:"createdAt"`
	LastSignInAt     *time.Time     `json:"lastSignInAt,omitempty"`
	EmailConfirmedAt *time.Time     `json:"emailConfirmedAt,omitempty"`
	CreatedBy        *string        `json:"createdBy,omitempty"`
	Overrides        []PermissionID `json:"permissionOverrides,omitempty"`
	PasswordHash     string         `json:"-"`
}

// EmailConfirmed reports whether the account finished email verification.
func (a Account) EmailConfirmed() bool {
	return a.EmailConfirmedAt != nil
}

// IsActiveAdmin reports whether the account counts towards the admin quorum.
func (a Account) IsActiveAdmin() bool {
	return a.Role == RoleAdmin && a.IsActive
}
