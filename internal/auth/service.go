package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gatekey.org/internal/events"
	"gatekey.org/internal/ids"
)

const minPasswordLength = 8

// Service provides the high level identity operations: credential
// verification, token issuance and rotation, and RBAC administration. It owns
// no state beyond its wiring; all persistence goes through the store
// interfaces.
type Service struct {
	users  UserStore
	roles  RoleStore
	perms  PermissionStore
	tokens RefreshTokenStore

	signing SigningContext
	issuer  *Issuer
	agg     *Aggregator

	now    func() time.Time
	events events.Publisher
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source for tests.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithEventPublisher wires lifecycle event publication.
func WithEventPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// NewService wires the service. The signing context must already be valid;
// construction never reads configuration on its own.
func NewService(signing SigningContext, users UserStore, roles RoleStore, perms PermissionStore, tokens RefreshTokenStore, opts ...ServiceOption) *Service {
	s := &Service{
		users:   users,
		roles:   roles,
		perms:   perms,
		tokens:  tokens,
		signing: signing,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.issuer = NewIssuer(signing, WithIssuerClock(s.now))
	s.agg = NewAggregator(users, roles, perms)
	return s
}

// Issuer exposes the token issuer, primarily for transport middleware.
func (s *Service) Issuer() *Issuer { return s.issuer }

// AccessTTL returns the configured access-token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.signing.AccessTTL() }

// Register creates a user, assigns the default User role when it exists and
// issues the first token pair.
func (s *Service) Register(ctx context.Context, email, username, password, ip string) (*User, *TokenPair, error) {
	email = normalizeEmail(email)
	username = strings.TrimSpace(username)
	switch {
	case email == "" || !strings.Contains(email, "@"):
		return nil, nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	case username == "":
		return nil, nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	case len(password) < minPasswordLength:
		return nil, nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, nil, err
	}

	if role, err := s.roles.GetRoleByName(ctx, RoleUser); err == nil {
		if err := s.roles.AssignRole(ctx, user.ID, role.ID); err != nil && !errors.Is(err, ErrDuplicateAssignment) {
			return nil, nil, fmt.Errorf("assign default role: %w", err)
		}
	} else if !errors.Is(err, ErrRoleNotFound) {
		return nil, nil, fmt.Errorf("lookup default role: %w", err)
	}

	pair, err := s.issuePair(ctx, user, ip)
	if err != nil {
		return nil, nil, err
	}
	s.publish(events.TopicUserRegistered, map[string]string{"user_id": user.ID, "email": user.Email})
	return user, pair, nil
}

// Login verifies credentials and issues a token pair. Unknown email and wrong
// password are indistinguishable to the caller; an inactive account surfaces
// separately once the password checked out.
func (s *Service) Login(ctx context.Context, email, password, ip string) (*TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.GetUserByEmail(ctx, email, false)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.CanAuthenticate() {
		return nil, ErrAccountInactive
	}

	pair, err := s.issuePair(ctx, user, ip)
	if err != nil {
		return nil, err
	}
	if err := s.users.TouchLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	s.publish(events.TopicUserLoggedIn, map[string]string{"user_id": user.ID})
	return pair, nil
}

// Refresh rotates the presented refresh token and mints a fresh pair. The
// rotation is atomic in the ledger: of two concurrent calls with the same
// token exactly one wins, the other gets ErrRefreshTokenInactive.
func (s *Service) Refresh(ctx context.Context, tokenValue, ip string) (*TokenPair, error) {
	tokenValue = strings.TrimSpace(tokenValue)
	if tokenValue == "" {
		return nil, ErrRefreshTokenNotFound
	}
	current, err := s.tokens.FindByValue(ctx, tokenValue)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, current.UserID, false)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrRefreshTokenInactive
		}
		return nil, err
	}
	if !user.CanAuthenticate() {
		return nil, ErrAccountInactive
	}

	next, err := s.issuer.IssueRefreshToken(user.ID, ip)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.tokens.Rotate(ctx, tokenValue, ip, now, next); err != nil {
		if errors.Is(err, ErrDuplicateTokenValue) {
			// Value collision on the new token; regenerate once.
			if next, err = s.issuer.IssueRefreshToken(user.ID, ip); err != nil {
				return nil, err
			}
			if err = s.tokens.Rotate(ctx, tokenValue, ip, now, next); err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}

	access, accessExp, err := s.issueAccess(ctx, user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     next.TokenValue,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// Logout revokes every active refresh token of the user and reports how many
// were revoked. Calling it with nothing to revoke is a success with count 0.
func (s *Service) Logout(ctx context.Context, userID, ip string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	count, err := s.tokens.RevokeAll(ctx, userID, ip, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.publish(events.TopicTokenRevoked, map[string]string{
			"user_id": userID,
			"count":   fmt.Sprintf("%d", count),
		})
	}
	return count, nil
}

// RevokeToken revokes a single refresh token by value and reports whether
// the token was still active. When userID is given the token must belong to
// that user; a foreign token is reported as unknown rather than leaking its
// existence.
func (s *Service) RevokeToken(ctx context.Context, userID, tokenValue, ip string) (bool, error) {
	tokenValue = strings.TrimSpace(tokenValue)
	if tokenValue == "" {
		return false, ErrRefreshTokenNotFound
	}
	if userID != "" {
		t, err := s.tokens.FindByValue(ctx, tokenValue)
		if err != nil {
			return false, err
		}
		if t.UserID != userID {
			return false, ErrRefreshTokenNotFound
		}
	}
	return s.tokens.Revoke(ctx, tokenValue, ip, s.now().UTC())
}

// ActiveSessions lists the user's currently active refresh tokens.
func (s *Service) ActiveSessions(ctx context.Context, userID string) ([]RefreshToken, error) {
	return s.tokens.ActiveTokens(ctx, userID, s.now().UTC())
}

// ParseAccessToken verifies an access token and projects it into a Principal.
func (s *Service) ParseAccessToken(token string) (*Principal, error) {
	claims, err := s.issuer.ParseAndValidate(token)
	if err != nil {
		return nil, err
	}
	p := PrincipalFromClaims(claims)
	return &p, nil
}

// EffectivePermissions returns the user's flattened authorization snapshot.
func (s *Service) EffectivePermissions(ctx context.Context, userID string) (*Aggregation, error) {
	return s.agg.Aggregate(ctx, userID)
}

// SyncCatalog inserts catalog permissions missing from the store and returns
// how many were added. It never updates or deletes existing rows, so running
// it on every startup is safe.
func (s *Service) SyncCatalog(ctx context.Context) (int, error) {
	existing, err := s.perms.ListPermissions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list permissions: %w", err)
	}
	have := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		have[strings.ToLower(p.Name)] = struct{}{}
	}
	added := 0
	now := s.now().UTC()
	for _, entry := range Catalog {
		if _, ok := have[strings.ToLower(entry.Name)]; ok {
			continue
		}
		p := Permission{
			ID:          ids.New(),
			Name:        entry.Name,
			Description: entry.Description,
			Category:    CategoryFor(entry.Name),
			CreatedAt:   now,
		}
		if err := s.perms.UpsertPermission(ctx, &p); err != nil {
			return added, fmt.Errorf("sync %s: %w", entry.Name, err)
		}
		added++
	}
	return added, nil
}

// CreateRole creates a role with a case-insensitively unique name.
func (s *Service) CreateRole(ctx context.Context, name, description string, isSystemAdministrator bool) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{
		ID:                    ids.New(),
		Name:                  name,
		Description:           strings.TrimSpace(description),
		IsSystemAdministrator: isSystemAdministrator,
		CreatedAt:             s.now().UTC(),
	}
	if err := s.roles.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id string) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrRoleNotFound
	}
	return s.roles.GetRole(ctx, id)
}

// ListRoles lists all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.roles.ListRoles(ctx)
}

// ListPermissions lists the stored permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.perms.ListPermissions(ctx)
}

// AssignRole gives the user a role. Assigning a role the user already holds
// returns ErrDuplicateAssignment.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	if _, err := s.users.GetUser(ctx, userID, false); err != nil {
		return err
	}
	if _, err := s.roles.GetRole(ctx, roleID); err != nil {
		return err
	}
	return s.roles.AssignRole(ctx, userID, roleID)
}

// RemoveRole removes a role assignment. Removing an assignment that does not
// exist is a no-op.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID string) error {
	if _, err := s.users.GetUser(ctx, userID, false); err != nil {
		return err
	}
	return s.roles.RemoveRole(ctx, userID, roleID)
}

// RolesForUser lists the user's assigned roles.
func (s *Service) RolesForUser(ctx context.Context, userID string) ([]Role, error) {
	if _, err := s.users.GetUser(ctx, userID, false); err != nil {
		return nil, err
	}
	return s.roles.RolesForUser(ctx, userID)
}

// GrantPermission grants a catalog permission to a role by name. It reports
// whether the grant was newly created; granting one the role already holds is
// not an error.
func (s *Service) GrantPermission(ctx context.Context, roleID, permissionName string) (bool, error) {
	role, err := s.roles.GetRole(ctx, roleID)
	if err != nil {
		return false, err
	}
	perm, err := s.perms.GetPermissionByName(ctx, strings.TrimSpace(permissionName))
	if err != nil {
		return false, err
	}
	if err := s.perms.GrantPermission(ctx, role.ID, perm.ID); err != nil {
		if errors.Is(err, ErrDuplicateAssignment) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RevokePermission removes a permission grant from a role. Revoking a grant
// that does not exist is a no-op.
func (s *Service) RevokePermission(ctx context.Context, roleID, permissionName string) error {
	role, err := s.roles.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	perm, err := s.perms.GetPermissionByName(ctx, strings.TrimSpace(permissionName))
	if err != nil {
		return err
	}
	return s.perms.RevokePermission(ctx, role.ID, perm.ID)
}

// PermissionsForRole lists a role's granted permissions.
func (s *Service) PermissionsForRole(ctx context.Context, roleID string) ([]Permission, error) {
	if _, err := s.roles.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	return s.perms.PermissionsForRole(ctx, roleID)
}

// issuePair aggregates permissions, mints an access token and persists a new
// refresh token. A duplicate token value, should the 64 random bytes ever
// collide, is retried exactly once.
func (s *Service) issuePair(ctx context.Context, user *User, ip string) (*TokenPair, error) {
	access, accessExp, err := s.issueAccess(ctx, user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.IssueRefreshToken(user.ID, ip)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.SaveToken(ctx, refresh); err != nil {
		if !errors.Is(err, ErrDuplicateTokenValue) {
			return nil, err
		}
		if refresh, err = s.issuer.IssueRefreshToken(user.ID, ip); err != nil {
			return nil, err
		}
		if err = s.tokens.SaveToken(ctx, refresh); err != nil {
			return nil, err
		}
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh.TokenValue,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

func (s *Service) issueAccess(ctx context.Context, user *User) (string, time.Time, error) {
	agg, err := s.agg.Aggregate(ctx, user.ID)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.issuer.IssueAccessToken(user, agg.RoleNames(), agg.Permissions, agg.Admin)
}

func (s *Service) publish(topic string, payload map[string]string) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.Event{Topic: topic, Timestamp: s.now().UTC(), Payload: payload})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
