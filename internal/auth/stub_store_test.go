package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// memStore is an in-memory implementation of all four store interfaces with
// the same error contract as the Postgres stores.
type memStore struct {
	mu          sync.Mutex
	users       map[string]*User
	roles       map[string]*Role
	perms       map[string]*Permission
	grants      map[string]map[string]bool
	assignments map[string][]string
	tokens      map[string]*RefreshToken
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[string]*User),
		roles:       make(map[string]*Role),
		perms:       make(map[string]*Permission),
		grants:      make(map[string]map[string]bool),
		assignments: make(map[string][]string),
		tokens:      make(map[string]*RefreshToken),
	}
}

func (m *memStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrEmailTaken
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetUser(_ context.Context, id string, includeDeleted bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || (u.IsDeleted && !includeDeleted) {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string, includeDeleted bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			if u.IsDeleted && !includeDeleted {
				return nil, ErrUserNotFound
			}
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memStore) UpdateUserStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Status = status
	return nil
}

func (m *memStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (m *memStore) SoftDeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.IsDeleted = true
	u.Status = UserStatusDeleted
	return nil
}

func (m *memStore) CreateRole(_ context.Context, r *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if strings.EqualFold(existing.Name, r.Name) {
			return ErrRoleExists
		}
	}
	cp := *r
	m.roles[r.ID] = &cp
	return nil
}

func (m *memStore) GetRole(_ context.Context, id string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrRoleNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) GetRoleByName(_ context.Context, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if strings.EqualFold(r.Name, name) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrRoleNotFound
}

func (m *memStore) ListRoles(_ context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memStore) AssignRole(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.assignments[userID] {
		if id == roleID {
			return ErrDuplicateAssignment
		}
	}
	m.assignments[userID] = append(m.assignments[userID], roleID)
	return nil
}

func (m *memStore) RemoveRole(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.assignments[userID]
	for i, id := range ids {
		if id == roleID {
			m.assignments[userID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) RolesForUser(_ context.Context, userID string) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Role
	for _, id := range m.assignments[userID] {
		if r, ok := m.roles[id]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) UpsertPermission(_ context.Context, p *Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.perms {
		if strings.EqualFold(existing.Name, p.Name) {
			return nil
		}
	}
	cp := *p
	m.perms[p.ID] = &cp
	return nil
}

func (m *memStore) GetPermissionByName(_ context.Context, name string) (*Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.perms {
		if strings.EqualFold(p.Name, name) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPermissionNotFound
}

func (m *memStore) ListPermissions(_ context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) GrantPermission(_ context.Context, roleID, permissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grants[roleID] == nil {
		m.grants[roleID] = make(map[string]bool)
	}
	if m.grants[roleID][permissionID] {
		return ErrDuplicateAssignment
	}
	m.grants[roleID][permissionID] = true
	return nil
}

func (m *memStore) RevokePermission(_ context.Context, roleID, permissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants[roleID], permissionID)
	return nil
}

func (m *memStore) PermissionsForRole(_ context.Context, roleID string) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Permission
	for permID := range m.grants[roleID] {
		if p, ok := m.perms[permID]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) PermissionsForUser(_ context.Context, userID string) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []Permission
	for _, roleID := range m.assignments[userID] {
		for permID := range m.grants[roleID] {
			if seen[permID] {
				continue
			}
			seen[permID] = true
			if p, ok := m.perms[permID]; ok {
				out = append(out, *p)
			}
		}
	}
	return out, nil
}

func (m *memStore) SaveToken(_ context.Context, t *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[t.TokenValue]; ok {
		return ErrDuplicateTokenValue
	}
	cp := *t
	m.tokens[t.TokenValue] = &cp
	return nil
}

func (m *memStore) FindByValue(_ context.Context, value string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[value]
	if !ok {
		return nil, ErrRefreshTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) Rotate(_ context.Context, value, revokedIP string, now time.Time, next *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.tokens[value]
	if !ok {
		return ErrRefreshTokenNotFound
	}
	if !current.IsActive(now) {
		return ErrRefreshTokenInactive
	}
	if _, ok := m.tokens[next.TokenValue]; ok {
		return ErrDuplicateTokenValue
	}
	current.IsRevoked = true
	at := now
	current.RevokedAt = &at
	current.RevokedIP = revokedIP
	current.ReplacedBy = next.TokenValue
	cp := *next
	m.tokens[next.TokenValue] = &cp
	return nil
}

func (m *memStore) Revoke(_ context.Context, value, revokedIP string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[value]
	if !ok {
		return false, ErrRefreshTokenNotFound
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

func (m *memStore) RevokeAll(_ context.Context, userID, revokedIP string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.tokens {
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

func (m *memStore) ActiveTokens(_ context.Context, userID string, now time.Time) ([]RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RefreshToken
	for _, t := range m.tokens {
		if t.UserID == userID && t.IsActive(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}
