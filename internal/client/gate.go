package client

import (
	"github.com/hongminglow/cuecast-be/internal/authz"
	"github.com/hongminglow/cuecast-be/internal/models"
)

// Gate answers authorization questions for the session principal using the
// same tables as the backend.
type Gate struct {
	session *Session
}

// NewGate returns a Gate bound to session.
func NewGate(session *Session) *Gate {
	return &Gate{session: session}
}

// Check evaluates req for the current principal.
func (g *Gate) Check(req authz.Requirement) authz.Decision {
	return authz.Authorize(g.session.Principal(), req)
}

// Tabs lists the navigation tabs the principal may open.
func (g *Gate) Tabs() []authz.Tab {
	return authz.VisibleTabs(g.session.Principal())
}

// CanManageUsers reports whether the users screen is reachable. It uses the
// requirement the backend puts on /users.
func (g *Gate) CanManageUsers() bool {
	return g.Check(authz.RequirePermission(models.PermUserManagement)).Allowed()
}

// CanViewAudit reports whether the audit trail is reachable.
func (g *Gate) CanViewAudit() bool {
	return g.Check(authz.RequirePermission(models.PermAuditAccess)).Allowed()
}
