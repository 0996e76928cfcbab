// Package rbac derives permission sets from roles and answers capability
// questions about a principal.
//
// The role table lives in models.RolePermissions and is built into lookup
// sets once, at package initialisation. Nothing mutates it afterwards, so
// every function here is safe for concurrent use.
//
// Unrecognised roles hold no permissions at all. Per-principal overrides are
// additive: they can widen a recognised role's baseline but never shrink it.
package rbac

import (
	"sort"

	"github.com/hongminglow/cuecast-be/internal/models"
)

// PermissionSet is an unordered set of permission ids.
type PermissionSet map[models.PermissionID]struct{}

var roleSets = buildPermissionMap(models.RolePermissions)

func buildPermissionMap(table map[models.Role][]models.PermissionID) map[models.Role]PermissionSet {
	result := make(map[models.Role]PermissionSet, len(table))
	for role, perms := range table {
		set := make(PermissionSet, len(perms))
		for _, perm := range perms {
			set[perm] = struct{}{}
		}
		result[role] = set
	}
	return result
}

// Has reports whether id is in the set.
func (s PermissionSet) Has(id models.PermissionID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in lexical order.
func (s PermissionSet) Sorted() []models.PermissionID {
	out := make([]models.PermissionID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PermissionsForRole returns a copy of the baseline set for role, or an empty
// set when the role is not recognised.
func PermissionsForRole(role models.Role) PermissionSet {
	base := roleSets[role]
	out := make(PermissionSet, len(base))
	for id := range base {
		out[id] = struct{}{}
	}
	return out
}

// EffectivePermissions is the role baseline united with the principal's
// explicit overrides. A nil principal or an unrecognised role yields an
// empty set.
func EffectivePermissions(p *models.Account) PermissionSet {
	if p == nil || !p.Role.IsValid() {
		return PermissionSet{}
	}
	out := PermissionsForRole(p.Role)
	for _, id := range p.Overrides {
		out[id] = struct{}{}
	}
	return out
}

// HasPermission reports whether p holds id.
func HasPermission(p *models.Account, id models.PermissionID) bool {
	if p == nil {
		return false
	}
	return EffectivePermissions(p).Has(id)
}

func hasRole(p *models.Account, role models.Role) bool {
	return p != nil && p.Role == role
}

func IsAdmin(p *models.Account) bool       { return hasRole(p, models.RoleAdmin) }
func IsStreamer(p *models.Account) bool    { return hasRole(p, models.RoleStreaming) }
func IsContributor(p *models.Account) bool { return hasRole(p, models.RoleContributor) }
func IsEditor(p *models.Account) bool      { return hasRole(p, models.RoleEditor) }
func IsModerator(p *models.Account) bool   { return hasRole(p, models.RoleModerator) }

// CatalogByCategory groups the permission catalog for display.
func CatalogByCategory() map[string][]models.Permission {
	out := make(map[string][]models.Permission)
	for _, p := range models.Catalog {
		out[p.Category] = append(out[p.Category], p)
	}
	return out
}
