package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/cuecast-be/internal/models"
)

func account(id string, role models.Role) *models.Account {
	return &models.Account{ID: id, Role: role, IsActive: true}
}

func validCreate(role models.Role) CreateRequest {
	return CreateRequest{Name: "Bob", Email: "bob@example.com", Password: "secret1", Role: role}
}

func rolePtr(r models.Role) *models.Role { return &r }
func boolPtr(b bool) *bool               { return &b }
func strPtr(s string) *string            { return &s }

func TestCheckCreateRoleAssignment(t *testing.T) {
	admin := account("a", models.RoleAdmin)
	contributor := account("c", models.RoleContributor)

	tests := []struct {
		name   string
		caller *models.Account
		req    CreateRequest
		kind   error
	}{
		{"anonymous", nil, validCreate(models.RoleStreaming), ErrUnauthenticated},
		{"streamer cannot create", account("s", models.RoleStreaming), validCreate(models.RoleStreaming), ErrForbidden},
		{"editor cannot create", account("e", models.RoleEditor), validCreate(models.RoleStreaming), ErrForbidden},
		{"contributor creates streaming", contributor, validCreate(models.RoleStreaming), nil},
		{"contributor cannot create admin", contributor, validCreate(models.RoleAdmin), ErrForbidden},
		{"contributor cannot create editor", contributor, validCreate(models.RoleEditor), ErrForbidden},
		{"contributor admin with bad fields still forbidden", contributor, CreateRequest{Role: models.RoleAdmin}, ErrForbidden},
		{"contributor cannot grant overrides", contributor, CreateRequest{Name: "x", Email: "x@example.com", Password: "secret1", Role: models.RoleStreaming, Permissions: []models.PermissionID{models.PermSummaryAccess}}, ErrForbidden},
		{"admin creates admin", admin, validCreate(models.RoleAdmin), nil},
		{"admin creates editor", admin, validCreate(models.RoleEditor), nil},
		{"non-admin role forbidden before validation", account("m", models.RoleModerator), CreateRequest{}, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCreate(tt.caller, tt.req)
			if tt.kind == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestCheckCreateValidation(t *testing.T) {
	admin := account("a", models.RoleAdmin)

	tests := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{"blank name", CreateRequest{Email: "x@example.com", Password: "secret1", Role: models.RoleStreaming}, "name"},
		{"malformed email", CreateRequest{Name: "x", Email: "not-an-email", Password: "secret1", Role: models.RoleStreaming}, "email"},
		{"short password", CreateRequest{Name: "x", Email: "x@example.com", Password: "12345", Role: models.RoleStreaming}, "password"},
		{"unknown role", CreateRequest{Name: "x", Email: "x@example.com", Password: "secret1", Role: "root"}, "role"},
		{"missing role", CreateRequest{Name: "x", Email: "x@example.com", Password: "secret1"}, "role"},
		{"unknown permission", CreateRequest{Name: "x", Email: "x@example.com", Password: "secret1", Role: models.RoleStreaming, Permissions: []models.PermissionID{"root"}}, "permissions[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Normalize()
			err := CheckCreate(admin, tt.req)
			require.ErrorIs(t, err, ErrValidation)
			assert.NotErrorIs(t, err, ErrForbidden)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestCreateNormalizeTrimsBlankName(t *testing.T) {
	req := CreateRequest{Name: "   ", Email: "  Bob@Example.COM ", Password: "secret1", Role: " streaming "}
	req.Normalize()
	assert.Equal(t, "bob@example.com", req.Email)
	assert.Equal(t, models.RoleStreaming, req.Role)
	assert.ErrorIs(t, CheckCreate(account("a", models.RoleAdmin), req), ErrValidation)
}

func TestCheckUpdate(t *testing.T) {
	admin := account("a", models.RoleAdmin)
	contributor := account("c", models.RoleContributor)
	streamer := account("s", models.RoleStreaming)
	otherAdmin := account("b", models.RoleAdmin)

	tests := []struct {
		name   string
		caller *models.Account
		target *models.Account
		req    UpdateRequest
		kind   error
	}{
		{"anonymous", nil, streamer, UpdateRequest{Name: strPtr("x")}, ErrUnauthenticated},
		{"streamer cannot update", streamer, streamer, UpdateRequest{Name: strPtr("x")}, ErrForbidden},
		{"contributor edits streamer", contributor, streamer, UpdateRequest{Name: strPtr("Sam")}, nil},
		{"contributor cannot promote to admin", contributor, streamer, UpdateRequest{Role: rolePtr(models.RoleAdmin)}, ErrForbidden},
		{"contributor cannot touch admin", contributor, otherAdmin, UpdateRequest{Name: strPtr("x")}, ErrForbidden},
		{"contributor cannot deactivate admin", contributor, otherAdmin, UpdateRequest{IsActive: boolPtr(false)}, ErrForbidden},
		{"contributor cannot grant overrides", contributor, streamer, UpdateRequest{Permissions: &[]models.PermissionID{models.PermSummaryAccess}}, ErrForbidden},
		{"admin promotes", admin, streamer, UpdateRequest{Role: rolePtr(models.RoleAdmin)}, nil},
		{"admin sets overrides", admin, streamer, UpdateRequest{Permissions: &[]models.PermissionID{models.PermSummaryAccess}}, nil},
		{"admin unknown override", admin, streamer, UpdateRequest{Permissions: &[]models.PermissionID{"root"}}, ErrValidation},
		{"empty update", admin, streamer, UpdateRequest{}, ErrValidation},
		{"blank name", admin, streamer, UpdateRequest{Name: strPtr("")}, ErrValidation},
		{"unknown role", admin, streamer, UpdateRequest{Role: rolePtr("root")}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckUpdate(tt.caller, tt.target, tt.req)
			if tt.kind == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestCheckDelete(t *testing.T) {
	for _, role := range models.Roles {
		caller := account("me", role)
		assert.ErrorIs(t, CheckDeleteSelf(caller, "me"), ErrForbidden, "role %s", role)
		assert.ErrorIs(t, CheckDelete(caller, account("me", models.RoleStreaming)), ErrForbidden, "role %s", role)
	}

	contributor := account("c", models.RoleContributor)
	admin := account("a", models.RoleAdmin)

	assert.ErrorIs(t, CheckDelete(contributor, account("t", models.RoleAdmin)), ErrForbidden)
	assert.NoError(t, CheckDelete(contributor, account("t", models.RoleStreaming)))
	assert.NoError(t, CheckDelete(admin, account("t", models.RoleAdmin)))
	assert.ErrorIs(t, CheckDelete(account("e", models.RoleEditor), account("t", models.RoleStreaming)), ErrForbidden)
	assert.ErrorIs(t, CheckDeleteSelf(nil, "x"), ErrUnauthenticated)
}

func TestWouldRemoveAdmin(t *testing.T) {
	admin := account("a", models.RoleAdmin)
	inactiveAdmin := &models.Account{ID: "b", Role: models.RoleAdmin}

	assert.True(t, WouldRemoveAdmin(admin, UpdateRequest{Role: rolePtr(models.RoleStreaming)}))
	assert.True(t, WouldRemoveAdmin(admin, UpdateRequest{IsActive: boolPtr(false)}))
	assert.False(t, WouldRemoveAdmin(admin, UpdateRequest{Role: rolePtr(models.RoleAdmin)}))
	assert.False(t, WouldRemoveAdmin(admin, UpdateRequest{Name: strPtr("x")}))
	assert.False(t, WouldRemoveAdmin(inactiveAdmin, UpdateRequest{IsActive: boolPtr(false)}))
	assert.False(t, WouldRemoveAdmin(account("s", models.RoleStreaming), UpdateRequest{IsActive: boolPtr(false)}))
}

func TestCheckLastAdmin(t *testing.T) {
	assert.ErrorIs(t, CheckLastAdmin(0), ErrInvariantViolation)
	assert.ErrorIs(t, CheckLastAdmin(1), ErrInvariantViolation)
	assert.EqualError(t, CheckLastAdmin(1), "cannot remove the last admin")
	assert.NoError(t, CheckLastAdmin(2))
}

func TestValidateRegistration(t *testing.T) {
	ok := RegisterRequest{Name: "Alice", Email: "alice@example.com", Password: "secret1", ConfirmPassword: "secret1"}
	require.NoError(t, ValidateRegistration(ok))

	mismatch := ok
	mismatch.ConfirmPassword = "secret2"
	err := ValidateRegistration(mismatch)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "does not match", verr.Fields["confirmPassword"])
}

func TestKindRoundTrip(t *testing.T) {
	for _, sentinel := range []error{ErrUnauthenticated, ErrForbidden, ErrValidation, ErrNotFound, ErrInvariantViolation} {
		assert.Equal(t, sentinel, KindError(Kind(sentinel)))
	}
	assert.Equal(t, "transport", Kind(errors.New("connection reset")))
	assert.Equal(t, "invariant_violation", Kind(ErrLastAdmin))
	assert.Equal(t, "validation", Kind(FieldError("email", "already exists")))
	assert.Nil(t, KindError("transport"))
}

func TestApply(t *testing.T) {
	target := models.Account{ID: "t", Name: "Old", Role: models.RoleStreaming, IsActive: true}
	next := Apply(target, UpdateRequest{Name: strPtr("New"), IsActive: boolPtr(false)})
	assert.Equal(t, "New", next.Name)
	assert.False(t, next.IsActive)
	assert.Equal(t, models.RoleStreaming, next.Role)
	assert.Equal(t, "Old", target.Name)
}

func TestCheckManagerRejectsDeactivatedCaller(t *testing.T) {
	inactive := &models.Account{ID: "a", Role: models.RoleAdmin}

	err := CheckManager(inactive, "listing")
	require.ErrorIs(t, err, ErrForbidden)
	assert.EqualError(t, err, "account is deactivated")
	assert.ErrorIs(t, CheckList(inactive), ErrForbidden)
	assert.ErrorIs(t, CheckAudit(inactive), ErrForbidden)
	assert.ErrorIs(t, CheckManager(nil, "listing"), ErrUnauthenticated)
	assert.NoError(t, CheckManager(account("c", models.RoleContributor), "listing"))
}

func TestPermissionOverridesOpenAccountScreens(t *testing.T) {
	viewer := account("v", models.RoleStreaming)
	viewer.Overrides = []models.PermissionID{models.PermUserManagement, models.PermAuditAccess}

	assert.NoError(t, CheckList(viewer))
	assert.NoError(t, CheckAudit(viewer))
	assert.ErrorIs(t, CheckCreate(viewer, validCreate(models.RoleStreaming)), ErrForbidden)
	assert.ErrorIs(t, CheckList(account("s", models.RoleStreaming)), ErrForbidden)
	assert.ErrorIs(t, CheckAudit(account("c", models.RoleContributor)), ErrForbidden)

	manager := account("m", models.RoleStreaming)
	manager.Overrides = []models.PermissionID{models.PermUsersManage}
	streamer := account("s", models.RoleStreaming)
	admin := account("a", models.RoleAdmin)

	assert.NoError(t, CheckCreate(manager, validCreate(models.RoleStreaming)))
	assert.ErrorIs(t, CheckCreate(manager, validCreate(models.RoleEditor)), ErrForbidden)
	assert.NoError(t, CheckUpdate(manager, streamer, UpdateRequest{Name: strPtr("x")}))
	assert.ErrorIs(t, CheckUpdate(manager, admin, UpdateRequest{Name: strPtr("x")}), ErrForbidden)
	assert.ErrorIs(t, CheckUpdate(manager, streamer, UpdateRequest{Permissions: &[]models.PermissionID{models.PermAuditAccess}}), ErrForbidden)
	assert.ErrorIs(t, CheckDelete(manager, admin), ErrForbidden)
	assert.NoError(t, CheckDelete(manager, streamer))
}

func TestUnknownRoleOverridesGrantNothing(t *testing.T) {
	ghost := account("g", "root")
	ghost.Overrides = []models.PermissionID{models.PermUsersManage, models.PermAuditAccess}
	assert.ErrorIs(t, CheckList(ghost), ErrForbidden)
	assert.ErrorIs(t, CheckAudit(ghost), ErrForbidden)
	assert.ErrorIs(t, CheckManager(ghost, "creating"), ErrForbidden)
}
