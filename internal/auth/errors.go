package auth

import "errors"

var (
	// ErrInvalidCredentials is returned when the email is unknown or the
	// password does not match. Details are deliberately suppressed.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrAccountInactive means the user exists but is disabled or soft-deleted.
	// Internally distinct from bad credentials; the transport layer may choose
	// to present both identically.
	ErrAccountInactive = errors.New("auth: account inactive")

	ErrUserNotFound = errors.New("auth: user not found")
	ErrEmailTaken   = errors.New("auth: email already registered")

	ErrRoleNotFound       = errors.New("auth: role not found")
	ErrRoleExists         = errors.New("auth: role already exists")
	ErrPermissionNotFound = errors.New("auth: permission not found")

	// ErrDuplicateAssignment is returned when a user already holds the role
	// being assigned. Assignments are explicit; re-assigning is an error, not
	// a silent no-op.
	ErrDuplicateAssignment = errors.New("auth: role already assigned")

	ErrRefreshTokenNotFound = errors.New("auth: refresh token not found")

	// ErrRefreshTokenInactive covers both expired and revoked tokens, and is
	// the outcome a losing concurrent rotation resolves to.
	ErrRefreshTokenInactive = errors.New("auth: refresh token inactive")

	// ErrDuplicateTokenValue signals a random-value collision on insert.
	// Astronomically rare; callers retry generation once.
	ErrDuplicateTokenValue = errors.New("auth: refresh token value collision")

	// ErrTokenInvalid indicates a malformed, unsigned, expired or otherwise
	// unverifiable access token. Authorization denial is NOT an error.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrSigningConfigurationMissing is fatal at startup, never per-request.
	ErrSigningConfigurationMissing = errors.New("auth: signing secret is not configured")

	ErrInvalidInput = errors.New("auth: invalid input")
)
