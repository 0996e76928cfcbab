package models

import "time"

// AuditRecord captures one committed role or active-flag transition. Records
// are append-only.
type AuditRecord struct {
	ID              string    `json:"id"`
	ChangedUserID   string    `json:"changedUserId"`
	ChangedByUserID string    `json:"changedByUserId"`
	OldRole         Role      `json:"oldRole"`
	NewRole         Role      `json:"newRole"`
	OldIsActive     bool      `json:"oldIsActive"`
	NewIsActive     bool      `json:"newIsActive"`
	Reason          string    `json:"reason,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// RoleChanged reports whether the record reflects a role transition.
func (r AuditRecord) RoleChanged() bool {
	return r.OldRole != r.NewRole
}

// StatusChanged reports whether the record reflects an active-flag transition.
func (r AuditRecord) StatusChanged() bool {
	return r.OldIsActive != r.NewIsActive
}

// AuditFilter narrows audit listings.
type AuditFilter string

const (
	AuditAll           AuditFilter = "all"
	AuditRoleChanges   AuditFilter = "role_changes"
	AuditStatusChanges AuditFilter = "status_changes"
)

// ParseAuditFilter maps a query value onto a filter, defaulting to AuditAll.
func ParseAuditFilter(raw string) (AuditFilter, bool) {
	switch AuditFilter(raw) {
	case "", AuditAll:
		return AuditAll, true
	case AuditRoleChanges:
		return AuditRoleChanges, true
	case AuditStatusChanges:
		return AuditStatusChanges, true
	default:
		return "", false
	}
}

// Matches reports whether r belongs in a listing narrowed by f.
func (f AuditFilter) Matches(r AuditRecord) bool {
	switch f {
	case AuditRoleChanges:
		return r.RoleChanged()
	case AuditStatusChanges:
		return r.StatusChanged()
	default:
		return true
	}
}
