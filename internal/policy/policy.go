// Package policy holds the account-mutation rules shared by the server
// boundary and the operator client. The server runs the same checks again
// inside its transaction; the client runs them only to reject obviously
// invalid requests before a round trip.
package policy

import (
	"strings"

	"github.com/hongminglow/cuecast-be/internal/models"
	"github.com/hongminglow/cuecast-be/internal/rbac"
)

// CreateRequest is the payload for administrative account creation.
type CreateRequest struct {
	Name        string                `json:"name" validate:"required,max=120"`
	Email       string                `json:"email" validate:"required,email"`
	Password    string                `json:"password" validate:"required,min=6"`
	Role        models.Role           `json:"role" validate:"required,role"`
	Permissions []models.PermissionID `json:"permissions,omitempty" validate:"dive,permission"`
}

// Normalize trims fields in place.
func (r *CreateRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
	r.Role = models.Role(strings.TrimSpace(string(r.Role)))
}

// UpdateRequest is a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	Name        *string                `json:"name,omitempty" validate:"omitnil,min=1,max=120"`
	Role        *models.Role           `json:"role,omitempty" validate:"omitnil,role"`
	IsActive    *bool                  `json:"isActive,omitempty"`
	Permissions *[]models.PermissionID `json:"permissions,omitempty"`
	Reason      string                 `json:"reason,omitempty" validate:"max=500"`
}

// Normalize trims fields in place.
func (r *UpdateRequest) Normalize() {
	if r.Name != nil {
		trimmed := strings.TrimSpace(*r.Name)
		r.Name = &trimmed
	}
	r.Reason = strings.TrimSpace(r.Reason)
}

// Empty reports whether the request changes nothing.
func (r UpdateRequest) Empty() bool {
	return r.Name == nil && r.Role == nil && r.IsActive == nil && r.Permissions == nil
}

// RegisterRequest is the payload for public self-registration.
type RegisterRequest struct {
	Name            string `json:"name" validate:"required,max=120"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// Normalize trims fields in place.
func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
}

// ValidateRegistration checks a self-registration payload.
func ValidateRegistration(req RegisterRequest) error {
	return validateStruct(req)
}

// canManageAccounts holds for admins and for anyone granted users.manage,
// which contributors have by role and others only through an override.
func canManageAccounts(caller *models.Account) bool {
	return rbac.IsAdmin(caller) || rbac.HasPermission(caller, models.PermUsersManage)
}

// restricted reports whether caller manages accounts under the contributor
// rules: streaming targets only, no admin targets, no overrides.
func restricted(caller *models.Account) bool {
	return !rbac.IsAdmin(caller)
}

// CheckCaller rejects anonymous and deactivated callers.
func CheckCaller(caller *models.Account) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	if !caller.IsActive {
		return Forbidden("account is deactivated")
	}
	return nil
}

// CheckManager gates every account mutation on the admin role or the
// users.manage permission. verb names the action in the denial reason.
func CheckManager(caller *models.Account, verb string) error {
	if err := CheckCaller(caller); err != nil {
		return err
	}
	if !canManageAccounts(caller) {
		return Forbidden(verb + " users requires the admin role or the users.manage permission")
	}
	return nil
}

// CheckList gates listing accounts. Holding user_management is enough to
// read the list, matching the users tab.
func CheckList(caller *models.Account) error {
	if err := CheckCaller(caller); err != nil {
		return err
	}
	if !canManageAccounts(caller) && !rbac.HasPermission(caller, models.PermUserManagement) {
		return Forbidden("listing users requires the user_management permission")
	}
	return nil
}

// CheckAudit gates reading the audit trail.
func CheckAudit(caller *models.Account) error {
	if err := CheckCaller(caller); err != nil {
		return err
	}
	if !rbac.IsAdmin(caller) && !rbac.HasPermission(caller, models.PermAuditAccess) {
		return Forbidden("viewing audit logs requires the audit_access permission")
	}
	return nil
}

// CheckCreate applies the caller gate, then the role-assignment rule, then
// field validation. req must already be normalized.
func CheckCreate(caller *models.Account, req CreateRequest) error {
	if err := CheckManager(caller, "creating"); err != nil {
		return err
	}
	if restricted(caller) {
		if req.Role != models.RoleStreaming {
			return Forbidden("only admins can create non-streaming users")
		}
		if len(req.Permissions) > 0 {
			return Forbidden("only admins can grant permission overrides")
		}
	}
	return validateStruct(req)
}

// CheckUpdate applies role-assignment rules for an update of target.
// The last-admin rule is separate: see WouldRemoveAdmin and CheckLastAdmin.
func CheckUpdate(caller, target *models.Account, req UpdateRequest) error {
	if err := CheckManager(caller, "updating"); err != nil {
		return err
	}
	if restricted(caller) {
		if target.Role == models.RoleAdmin {
			return Forbidden("only admins can edit admin users")
		}
		if req.Role != nil && *req.Role == models.RoleAdmin {
			return Forbidden("only admins can assign the admin role")
		}
		if req.Permissions != nil {
			return Forbidden("only admins can grant permission overrides")
		}
	}
	if req.Empty() {
		return FieldError("body", "must change at least one of name, role, isActive or permissions")
	}
	if req.Permissions != nil {
		for _, id := range *req.Permissions {
			if _, ok := models.LookupPermission(id); !ok {
				return FieldError("permissions", "contains an unknown permission")
			}
		}
	}
	return validateStruct(req)
}

// CheckDeleteSelf rejects self-deletion. It runs before any lookup so that
// it holds for every caller.
func CheckDeleteSelf(caller *models.Account, targetID string) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	if caller.ID == targetID {
		return Forbidden("cannot delete your own account")
	}
	return nil
}

// CheckDelete applies the remaining delete rules once target is known.
func CheckDelete(caller, target *models.Account) error {
	if err := CheckDeleteSelf(caller, target.ID); err != nil {
		return err
	}
	if err := CheckManager(caller, "deleting"); err != nil {
		return err
	}
	if restricted(caller) && target.Role == models.RoleAdmin {
		return Forbidden("only admins can delete admin users")
	}
	return nil
}

// WouldRemoveAdmin reports whether applying req to target takes an active
// admin out of the admin quorum.
func WouldRemoveAdmin(target *models.Account, req UpdateRequest) bool {
	if !target.IsActiveAdmin() {
		return false
	}
	demoted := req.Role != nil && *req.Role != models.RoleAdmin
	deactivated := req.IsActive != nil && !*req.IsActive
	return demoted || deactivated
}

// CheckLastAdmin fails when activeAdmins leaves no admin once one is removed.
func CheckLastAdmin(activeAdmins int) error {
	if activeAdmins <= 1 {
		return ErrLastAdmin
	}
	return nil
}

// Apply returns target with req applied. It does not validate.
func Apply(target models.Account, req UpdateRequest) models.Account {
	next := target
	if req.Name != nil {
		next.Name = *req.Name
	}
	if req.Role != nil {
		next.Role = *req.Role
	}
	if req.IsActive != nil {
		next.IsActive = *req.IsActive
	}
	if req.Permissions != nil {
		next.Overrides = append([]models.PermissionID(nil), (*req.Permissions)...)
	}
	return next
}
