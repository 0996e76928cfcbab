package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/cuecast-be/internal/models"
)

func TestEveryRoleHasNonEmptyKnownPermissions(t *testing.T) {
	for _, role := range models.Roles {
		set := PermissionsForRole(role)
		require.NotEmpty(t, set, "role %s", role)
		for id := range set {
			_, ok := models.LookupPermission(id)
			assert.True(t, ok, "role %s references unknown permission %s", role, id)
		}
	}
}

func TestPermissionsForRoleUnknownIsEmpty(t *testing.T) {
	for _, role := range []models.Role{"", "root", "Admin", "superuser", "admin "} {
		assert.Empty(t, PermissionsForRole(role), "role %q", role)
	}
}

func TestPermissionsForRoleReturnsCopy(t *testing.T) {
	set := PermissionsForRole(models.RoleStreaming)
	set[models.PermUserManagement] = struct{}{}

	assert.False(t, PermissionsForRole(models.RoleStreaming).Has(models.PermUserManagement))
}

func TestAdminIsSupersetOfEveryRole(t *testing.T) {
	admin := PermissionsForRole(models.RoleAdmin)
	for _, role := range models.Roles {
		for id := range PermissionsForRole(role) {
			assert.True(t, admin.Has(id), "admin lacks %s held by %s", id, role)
		}
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		account  *models.Account
		perm     models.PermissionID
		expected bool
	}{
		{"nil principal", nil, models.PermSetupAccess, false},
		{"streaming baseline", &models.Account{Role: models.RoleStreaming}, models.PermStreamControl, true},
		{"streaming lacks scoreboard", &models.Account{Role: models.RoleStreaming}, models.PermScoreboardManage, false},
		{"moderator scoreboard", &models.Account{Role: models.RoleModerator}, models.PermScoreboardManage, true},
		{"editor invite", &models.Account{Role: models.RoleEditor}, models.PermUsersInvite, true},
		{"contributor manage", &models.Account{Role: models.RoleContributor}, models.PermUsersManage, true},
		{"contributor lacks roles.assign", &models.Account{Role: models.RoleContributor}, models.PermRolesAssign, false},
		{"admin audit", &models.Account{Role: models.RoleAdmin}, models.PermAuditAccess, true},
		{"override grants", &models.Account{Role: models.RoleStreaming, Overrides: []models.PermissionID{models.PermSummaryAccess}}, models.PermSummaryAccess, true},
		{"unknown role ignores overrides", &models.Account{Role: "root", Overrides: []models.PermissionID{models.PermSetupAccess}}, models.PermSetupAccess, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HasPermission(tt.account, tt.perm))
		})
	}
}

func TestOverridesNeverShrinkBaseline(t *testing.T) {
	for _, role := range models.Roles {
		p := &models.Account{Role: role, Overrides: []models.PermissionID{models.PermSummaryAccess, "custom.flag"}}
		effective := EffectivePermissions(p)
		for id := range PermissionsForRole(role) {
			assert.True(t, effective.Has(id), "override shrank %s for %s", id, role)
		}
		assert.GreaterOrEqual(t, len(effective), len(PermissionsForRole(role)))
	}
}

func TestEffectivePermissionsExactForStreaming(t *testing.T) {
	p := &models.Account{Role: models.RoleStreaming}
	assert.Equal(t, []models.PermissionID{models.PermSetupAccess, models.PermStreamControl}, EffectivePermissions(p).Sorted())
}

func TestRolePredicates(t *testing.T) {
	assert.False(t, IsAdmin(nil))
	assert.False(t, IsContributor(nil))

	p := &models.Account{Role: models.RoleContributor}
	assert.True(t, IsContributor(p))
	assert.False(t, IsAdmin(p))
	assert.False(t, IsStreamer(p))
	assert.False(t, IsEditor(p))
	assert.False(t, IsModerator(p))

	assert.True(t, IsModerator(&models.Account{Role: models.RoleModerator}))
	assert.True(t, IsEditor(&models.Account{Role: models.RoleEditor}))
	assert.True(t, IsStreamer(&models.Account{Role: models.RoleStreaming}))
}

func TestCatalogByCategory(t *testing.T) {
	grouped := CatalogByCategory()
	total := 0
	for _, perms := range grouped {
		total += len(perms)
	}
	assert.Equal(t, len(models.Catalog), total)
	assert.Len(t, grouped["users"], 2)
}
