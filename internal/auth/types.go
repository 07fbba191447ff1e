package auth

import "time"

// User statuses. A soft-deleted user additionally carries IsDeleted so the
// audit trail survives; store queries exclude deleted rows unless the caller
// passes includeDeleted explicitly.
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
	UserStatusPending  = "pending"
	UserStatusDeleted  = "deleted"
)

// User carries authentication and authorization data only. Profile data
// (display name, avatar, preferences) belongs to other services.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Status       string     `json:"status"`
	IsDeleted    bool       `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// CanAuthenticate reports whether tokens may be issued for the user.
func (u *User) CanAuthenticate() bool {
	return !u.IsDeleted && (u.Status == UserStatusActive || u.Status == UserStatusPending)
}

// Role groups permissions. Names are unique case-insensitively and immutable
// after creation. IsSystemAdministrator is the capability flag the evaluator's
// admin bypass is resolved from; it is never re-derived from the role name.
type Role struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Description           string    `json:"description,omitempty"`
	IsSystemAdministrator bool      `json:"is_system_administrator"`
	CreatedAt             time.Time `json:"created_at"`
}

// Permission is a fine-grained capability identified by a dotted name such as
// "users.read". The static catalog is the source of truth; the store only ever
// gains permissions from it, never loses them.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleGrant links a role to a permission. Composite key (RoleID, PermissionID).
type RoleGrant struct {
	RoleID       string    `json:"role_id"`
	PermissionID string    `json:"permission_id"`
	GrantedAt    time.Time `json:"granted_at"`
}

// UserRoleAssignment gives a user a role.
type UserRoleAssignment struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshToken is the persisted long-lived credential. Rows are never deleted;
// revocation is the only mutation. ReplacedBy chains rotations for audit.
type RefreshToken struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	TokenValue string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	IsRevoked  bool       `json:"is_revoked"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	ReplacedBy string     `json:"replaced_by,omitempty"`
	IssuedIP   string     `json:"issued_ip,omitempty"`
	RevokedIP  string     `json:"revoked_ip,omitempty"`
}

// IsExpired reports whether the token is past its expiry at the given instant.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsActive is the single validity invariant: not revoked and not expired.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked && !t.IsExpired(now)
}

// TokenPair is what login, registration and refresh hand back to the caller.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
