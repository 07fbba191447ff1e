package auth

import "strings"

// Permission names. Grouped by category; the dotted prefix doubles as the
// category key.
const (
	PermUsersRead            = "users.read"
	PermUsersReadOwn         = "users.read.own"
	PermUsersWrite           = "users.write"
	PermUsersWriteOwn        = "users.write.own"
	PermUsersDelete          = "users.delete"
	PermUsersDeletePermanent = "users.delete.permanent"
	PermUsersRestore         = "users.restore"

	PermRolesRead       = "roles.read"
	PermRolesManage     = "roles.manage"
	PermRolesAssign     = "roles.assign"
	PermRolesAssignUser = "roles.assign.user"

	PermPermissionsRead   = "permissions.read"
	PermPermissionsManage = "permissions.manage"

	PermAuditRead    = "audit.read"
	PermAuditReadAll = "audit.read.all"
	PermAuditExport  = "audit.export"

	PermNotificationsSend   = "notifications.send"
	PermNotificationsManage = "notifications.manage"
)

// Built-in role names.
const (
	RoleAdmin   = "Admin"
	RoleManager = "Manager"
	RoleUser    = "User"
	RoleGuest   = "Guest"
)

// Catalog is the static permission catalog synchronized into the store at
// startup. The sync is additive and idempotent: missing entries are inserted,
// existing ones are never touched, and entries removed from this list are left
// dangling in the store.
var Catalog = []Permission{
	{Name: PermUsersRead, Description: "View any user in the system"},
	{Name: PermUsersReadOwn, Description: "View own profile only"},
	{Name: PermUsersWrite, Description: "Create and update any user"},
	{Name: PermUsersWriteOwn, Description: "Update own profile only"},
	{Name: PermUsersDelete, Description: "Soft-delete users"},
	{Name: PermUsersDeletePermanent, Description: "Permanently delete users"},
	{Name: PermUsersRestore, Description: "Restore soft-deleted users"},

	{Name: PermRolesRead, Description: "View roles"},
	{Name: PermRolesManage, Description: "Create, update and delete roles"},
	{Name: PermRolesAssign, Description: "Assign any role to users"},
	{Name: PermRolesAssignUser, Description: "Assign the User role to users"},

	{Name: PermPermissionsRead, Description: "View permissions"},
	{Name: PermPermissionsManage, Description: "Grant and revoke role permissions"},

	{Name: PermAuditRead, Description: "View own audit events"},
	{Name: PermAuditReadAll, Description: "View the full audit trail"},
	{Name: PermAuditExport, Description: "Export audit data"},

	{Name: PermNotificationsSend, Description: "Send notifications"},
	{Name: PermNotificationsManage, Description: "Manage notification settings"},
}

// DefaultRoleGrants maps built-in role names to the catalog permissions they
// receive on seed. Admin carries the system-administrator capability and all
// catalog permissions besides.
var DefaultRoleGrants = map[string][]string{
	RoleAdmin: {
		PermUsersRead, PermUsersReadOwn, PermUsersWrite, PermUsersWriteOwn,
		PermUsersDelete, PermUsersDeletePermanent, PermUsersRestore,
		PermRolesRead, PermRolesManage, PermRolesAssign, PermRolesAssignUser,
		PermPermissionsRead, PermPermissionsManage,
		PermAuditRead, PermAuditReadAll, PermAuditExport,
		PermNotificationsSend, PermNotificationsManage,
	},
	RoleManager: {
		PermUsersRead, PermUsersReadOwn, PermUsersWrite, PermUsersWriteOwn,
		PermRolesRead, PermRolesAssignUser,
		PermPermissionsRead,
		PermAuditRead, PermAuditExport,
		PermNotificationsSend,
	},
	RoleUser:  {PermUsersReadOwn, PermUsersWriteOwn},
	RoleGuest: {PermUsersReadOwn},
}

// CategoryFor derives the catalog category from a permission name prefix.
func CategoryFor(name string) string {
	switch {
	case strings.HasPrefix(name, "users."):
		return "Users"
	case strings.HasPrefix(name, "roles."):
		return "Roles"
	case strings.HasPrefix(name, "permissions."):
		return "Permissions"
	case strings.HasPrefix(name, "audit."):
		return "Audit"
	case strings.HasPrefix(name, "notifications."):
		return "Notifications"
	default:
		return "General"
	}
}
