// Package memory provides an in-memory store used for local development and
// tests. It keeps the same error contract as the Postgres store so the auth
// service behaves identically against either backend.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gatekey.org/internal/auth"
)

// Store implements auth.UserStore, auth.RoleStore, auth.PermissionStore and
// auth.RefreshTokenStore over process memory. All data is lost on restart.
type Store struct {
	mu          sync.Mutex
	users       map[string]*auth.User
	roles       map[string]*auth.Role
	perms       map[string]*auth.Permission
	grants      map[string]map[string]bool
	assignments map[string][]string
	tokens      map[string]*auth.RefreshToken
}

var (
	_ auth.UserStore         = (*Store)(nil)
	_ auth.RoleStore         = (*Store)(nil)
	_ auth.PermissionStore   = (*Store)(nil)
	_ auth.RefreshTokenStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		users:       make(map[string]*auth.User),
		roles:       make(map[string]*auth.Role),
		perms:       make(map[string]*auth.Permission),
		grants:      make(map[string]map[string]bool),
		assignments: make(map[string][]string),
		tokens:      make(map[string]*auth.RefreshToken),
	}
}

func (s *Store) CreateUser(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrEmailTaken
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUser(_ context.Context, id string, includeDeleted bool) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || (u.IsDeleted && !includeDeleted) {
		return nil, auth.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string, includeDeleted bool) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			if u.IsDeleted && !includeDeleted {
				return nil, auth.ErrUserNotFound
			}
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (s *Store) UpdateUserStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.Status = status
	return nil
}

func (s *Store) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (s *Store) SoftDeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.IsDeleted = true
	u.Status = auth.UserStatusDeleted
	return nil
}

func (s *Store) CreateRole(_ context.Context, r *auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if strings.EqualFold(existing.Name, r.Name) {
			return auth.ErrRoleExists
		}
	}
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *Store) GetRole(_ context.Context, id string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, auth.ErrRoleNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) GetRoleByName(_ context.Context, name string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if strings.EqualFold(r.Name, name) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, auth.ErrRoleNotFound
}

func (s *Store) ListRoles(_ context.Context) ([]auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) AssignRole(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrRoleNotFound
	}
	for _, id := range s.assignments[userID] {
		if id == roleID {
			return auth.ErrDuplicateAssignment
		}
	}
	s.assignments[userID] = append(s.assignments[userID], roleID)
	return nil
}

func (s *Store) RemoveRole(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.assignments[userID]
	for i, id := range ids {
		if id == roleID {
			s.assignments[userID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) RolesForUser(_ context.Context, userID string) ([]auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.Role
	for _, id := range s.assignments[userID] {
		if r, ok := s.roles[id]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *Store) UpsertPermission(_ context.Context, p *auth.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.perms {
		if strings.EqualFold(existing.Name, p.Name) {
			return nil
		}
	}
	cp := *p
	s.perms[p.ID] = &cp
	return nil
}

func (s *Store) GetPermissionByName(_ context.Context, name string) (*auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.perms {
		if strings.EqualFold(p.Name, name) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, auth.ErrPermissionNotFound
}

func (s *Store) ListPermissions(_ context.Context) ([]auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GrantPermission(_ context.Context, roleID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrRoleNotFound
	}
	if s.grants[roleID] == nil {
		s.grants[roleID] = make(map[string]bool)
	}
	if s.grants[roleID][permissionID] {
		return auth.ErrDuplicateAssignment
	}
	s.grants[roleID][permissionID] = true
	return nil
}

func (s *Store) RevokePermission(_ context.Context, roleID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants[roleID], permissionID)
	return nil
}

func (s *Store) PermissionsForRole(_ context.Context, roleID string) ([]auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.Permission
	for permID := range s.grants[roleID] {
		if p, ok := s.perms[permID]; ok {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) PermissionsForUser(_ context.Context, userID string) ([]auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []auth.Permission
	for _, roleID := range s.assignments[userID] {
		for permID := range s.grants[roleID] {
			if seen[permID] {
				continue
			}
			seen[permID] = true
			if p, ok := s.perms[permID]; ok {
				out = append(out, *p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SaveToken(_ context.Context, t *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[t.TokenValue]; ok {
		return auth.ErrDuplicateTokenValue
	}
	cp := *t
	s.tokens[t.TokenValue] = &cp
	return nil
}

func (s *Store) FindByValue(_ context.Context, value string) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok {
		return nil, auth.ErrRefreshTokenNotFound
	}
	cp := *t
	return &cp, nil
}

// Rotate mirrors the single-winner semantics of the Postgres store: only an
// active token can be rotated, and the replacement value must be unused.
func (s *Store) Rotate(_ context.Context, value, revokedIP string, now time.Time, next *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tokens[value]
	if !ok {
		return auth.ErrRefreshTokenNotFound
	}
	if !current.IsActive(now) {
		return auth.ErrRefreshTokenInactive
	}
	if _, ok := s.tokens[next.TokenValue]; ok {
		return auth.ErrDuplicateTokenValue
	}
	current.IsRevoked = true
	at := now
	current.RevokedAt = &at
	current.RevokedIP = revokedIP
	current.ReplacedBy = next.TokenValue
	cp := *next
	s.tokens[next.TokenValue] = &cp
	return nil
}

// Revoke is idempotent: revoking an already-revoked token is a no-op
// reporting false.
func (s *Store) Revoke(_ context.Context, value, revokedIP string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[value]
	if !ok {
		return false, auth.ErrRefreshTokenNotFound
	}
	if t.IsRevoked {
		return false, nil
	}
	t.IsRevoked = true
	at := now
	t.RevokedAt = &at
	t.RevokedIP = revokedIP
	return true, nil
}

func (s *Store) RevokeAll(_ context.Context, userID, revokedIP string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, t := range s.tokens {
		if t.UserID == userID && t.IsActive(now) {
			t.IsRevoked = true
			at := now
			t.RevokedAt = &at
			t.RevokedIP = revokedIP
			count++
		}
	}
	return count, nil
}

func (s *Store) ActiveTokens(_ context.Context, userID string, now time.Time) ([]auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.RefreshToken
	for _, t := range s.tokens {
		if t.UserID == userID && t.IsActive(now) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
