package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the JWT payload of an access token. Permissions are carried
// as a plain JSON array and omitted entirely when the user holds none, keeping
// tokens small. Admin is the system-administrator capability resolved at
// aggregation time from the role flag; it is absent (false) for everyone else.
type AccessClaims struct {
	Email       string   `json:"email,omitempty"`
	Username    string   `json:"username,omitempty"`
	Roles       []string `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Admin       bool     `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// PermissionSet materializes the permissions claim as a set value.
func (c *AccessClaims) PermissionSet() PermissionSet {
	return NewPermissionSet(c.Permissions...)
}

// Principal is the authenticated identity an authorization check runs against.
// It is derived purely from verified token claims; building one never touches
// the permission store.
type Principal struct {
	UserID      string
	Email       string
	Username    string
	Roles       []string
	Permissions PermissionSet
	IsAdmin     bool
}

// PrincipalFromClaims projects verified claims into a Principal.
func PrincipalFromClaims(claims *AccessClaims) Principal {
	return Principal{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Username:    claims.Username,
		Roles:       claims.Roles,
		Permissions: claims.PermissionSet(),
		IsAdmin:     claims.Admin,
	}
}

// HasPermission reports whether the principal holds the named permission.
func (p Principal) HasPermission(name string) bool {
	return p.Permissions.Contains(name)
}
