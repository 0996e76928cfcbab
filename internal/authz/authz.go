// Package authz decides whether a principal may use a screen or action.
// Denial is an ordinary return value; nothing here performs I/O, so
// Authorize can be evaluated on every render or request.
package authz

import (
	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/rbac"
)

// Outcome is the coarse result of an authorization check.
type Outcome int

const (
	Allowed Outcome = iota
	Unauthenticated
	Forbidden
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

const (
	ReasonRoleMismatch      = "role mismatch"
	ReasonMissingPermission = "missing permission"
)

// Decision is returned by Authorize. Reason is set only for Forbidden.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Allowed reports whether the decision permits access.
func (d Decision) Allowed() bool {
	return d.Outcome == Allowed
}

// Requirement is what a surface demands. The zero value demands only an
// authenticated principal.
type Requirement struct {
	Role       models.Role
	Permission models.PermissionID
}

// String labels the requirement, e.g. "role:admin" or "perm:audit_access".
func (r Requirement) String() string {
	switch {
	case r.Role != "" && r.Permission != "":
		return "role:" + string(r.Role) + "+perm:" + string(r.Permission)
	case r.Role != "":
		return "role:" + string(r.Role)
	case r.Permission != "":
		return "perm:" + string(r.Permission)
	default:
		return "authenticated"
	}
}

// RequireRole demands an exact role match.
func RequireRole(role models.Role) Requirement {
	return Requirement{Role: role}
}

// RequirePermission demands that the principal hold perm.
func RequirePermission(perm models.PermissionID) Requirement {
	return Requirement{Permission: perm}
}

// Authorize evaluates req against p. The role check runs before the
// permission check when both are set.
func Authorize(p *models.Account, req Requirement) Decision {
	if p == nil {
		return Decision{Outcome: Unauthenticated}
	}
	if req.Role != "" && p.Role != req.Role {
		return Decision{Outcome: Forbidden, Reason: ReasonRoleMismatch}
	}
	if req.Permission != "" && !rbac.HasPermission(p, req.Permission) {
		return Decision{Outcome: Forbidden, Reason: ReasonMissingPermission}
	}
	return Decision{Outcome: Allowed}
}
