package models

// Role identifies a principal's authority level. A principal holds exactly one.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleStreaming   Role = "streaming"
	RoleContributor Role = "contributor"
	RoleEditor      Role = "editor"
	RoleModerator   Role = "moderator"
)

// Roles lists every recognised role, highest authority first.
var Roles = []Role{RoleAdmin, RoleContributor, RoleEditor, RoleModerator, RoleStreaming}

// DefaultRole is assigned to self-registered accounts.
const DefaultRole = RoleStreaming

// IsValid reports whether r is one of the recognised roles.
func (r Role) IsValid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// PermissionID is the stable identifier of an atomic capability.
type PermissionID string

const (
	PermSetupAccess      PermissionID = "setup_access"
	PermStreamControl    PermissionID = "stream_control"
	PermScoreboardManage PermissionID = "scoreboard_manage"
	PermMomentsControl   PermissionID = "moments_control"
	PermSummaryAccess    PermissionID = "summary_access"
	PermUserManagement   PermissionID = "user_management"
	PermUsersInvite      PermissionID = "users.invite"
	PermUsersManage      PermissionID = "users.manage"
	PermRolesAssign      PermissionID = "roles.assign"
	PermAuditAccess      PermissionID = "audit_access"
)

// Permission describes a capability. Category only drives UI grouping.
type Permission struct {
	ID          PermissionID `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
}

// RoleTableVersion changes whenever RolePermissions or Catalog change. Clients
// compare it with the server's copy to detect a stale build.
const RoleTableVersion = "2026-10-1"

// Catalog holds every permission known to the system.
var Catalog = []Permission{
	{ID: PermSetupAccess, Name: "Setup Access", Description: "Access to setup configuration", Category: "setup"},
	{ID: PermStreamControl, Name: "Stream Control", Description: "Control live streaming", Category: "streaming"},
	{ID: PermScoreboardManage, Name: "Scoreboard Management", Description: "Manage scoreboard and scores", Category: "scoreboard"},
	{ID: PermMomentsControl, Name: "Moments Control", Description: "Trigger and manage special moments", Category: "moments"},
	{ID: PermSummaryAccess, Name: "Summary Access", Description: "View and generate match summaries", Category: "summary"},
	{ID: PermUserManagement, Name: "User Management", Description: "Create and manage user accounts", Category: "admin"},
	{ID: PermUsersInvite, Name: "Invite Users", Description: "Can invite new users to the workspace", Category: "users"},
	{ID: PermUsersManage, Name: "Manage Users", Description: "Can create, update, and delete user accounts", Category: "users"},
	{ID: PermRolesAssign, Name: "Assign Roles", Description: "Can assign and modify user roles", Category: "admin"},
	{ID: PermAuditAccess, Name: "Audit Access", Description: "View the role and status change history", Category: "admin"},
}

// RolePermissions is the baseline permission table shared by the server and
// every client build. Every role in Roles must have a non-empty entry.
var RolePermissions = map[Role][]PermissionID{
	RoleStreaming: {
		PermSetupAccess,
		PermStreamControl,
	},
	RoleModerator: {
		PermSetupAccess,
		PermStreamControl,
		PermScoreboardManage,
	},
	RoleEditor: {
		PermSetupAccess,
		PermStreamControl,
		PermScoreboardManage,
		PermMomentsControl,
		PermUsersInvite,
	},
	RoleContributor: {
		PermSetupAccess,
		PermStreamControl,
		PermScoreboardManage,
		PermMomentsControl,
		PermSummaryAccess,
		PermUserManagement,
		PermUsersInvite,
		PermUsersManage,
	},
	RoleAdmin: {
		PermSetupAccess,
		PermStreamControl,
		PermScoreboardManage,
		PermMomentsControl,
		PermSummaryAccess,
		PermUserManagement,
		PermUsersInvite,
		PermUsersManage,
		PermRolesAssign,
		PermAuditAccess,
	},
}

// LookupPermission returns the catalog entry for id.
func LookupPermission(id PermissionID) (Permission, bool) {
	for _, p := range Catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Permission{}, false
}
