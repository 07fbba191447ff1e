package auth

import (
	"context"
	"time"
)

// UserStore persists users. Soft-deleted users are excluded unless the caller
// passes includeDeleted; there is no implicit default.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string, includeDeleted bool) (*User, error)
	GetUserByEmail(ctx context.Context, email string, includeDeleted bool) (*User, error)
	UpdateUserStatus(ctx context.Context, id, status string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	SoftDeleteUser(ctx context.Context, id string) error
}

// RoleStore persists roles and user-role assignments.
type RoleStore interface {
	CreateRole(ctx context.Context, r *Role) error
	GetRole(ctx context.Context, id string) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)

	AssignRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
}

// PermissionStore persists the permission catalog and role grants.
type PermissionStore interface {
	UpsertPermission(ctx context.Context, p *Permission) error
	GetPermissionByName(ctx context.Context, name string) (*Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)

	GrantPermission(ctx context.Context, roleID, permissionID string) error
	RevokePermission(ctx context.Context, roleID, permissionID string) error
	PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error)
	PermissionsForUser(ctx context.Context, userID string) ([]Permission, error)
}

// RefreshTokenStore persists refresh tokens. Rows are append-plus-revoke only.
type RefreshTokenStore interface {
	// SaveToken inserts a new token. A colliding token_value returns
	// ErrDuplicateTokenValue.
	SaveToken(ctx context.Context, t *RefreshToken) error
	// FindByValue looks a token up by its opaque value, revoked or not.
	FindByValue(ctx context.Context, value string) (*RefreshToken, error)
	// Rotate atomically revokes the active token identified by value and
	// inserts next, recording next's value as replaced_by on the revoked
	// row. It returns
	// ErrRefreshTokenNotFound for an unknown value and
	// ErrRefreshTokenInactive when the row exists but is revoked or expired.
	Rotate(ctx context.Context, value string, revokedIP string, now time.Time, next *RefreshToken) error
	// Revoke revokes a single token by value and reports whether the row
	// changed. Revoking an already-revoked token is a no-op returning false;
	// an unknown value is ErrRefreshTokenNotFound.
	Revoke(ctx context.Context, value string, revokedIP string, now time.Time) (bool, error)
	// RevokeAll revokes every active token of the user and returns how many
	// rows changed. Zero is a success.
	RevokeAll(ctx context.Context, userID string, revokedIP string, now time.Time) (int, error)
	// ActiveTokens lists the user's currently active tokens.
	ActiveTokens(ctx context.Context, userID string, now time.Time) ([]RefreshToken, error)
}
