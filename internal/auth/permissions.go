package auth

import (
	"context"
	"fmt"
)

// Aggregator resolves a user's effective permissions at token issuance time.
// It is the only component that walks user -> roles -> grants; everything
// downstream works off the flattened set it produces.
type Aggregator struct {
	users UserStore
	roles RoleStore
	perms PermissionStore
}

// NewAggregator wires an aggregator over the given stores.
func NewAggregator(users UserStore, roles RoleStore, perms PermissionStore) *Aggregator {
	return &Aggregator{users: users, roles: roles, perms: perms}
}

// Aggregation is the flattened authorization snapshot for one user.
type Aggregation struct {
	Roles       []Role
	Permissions PermissionSet
	// Admin is true when any assigned role carries the system administrator
	// flag. The flag travels in the access token so the evaluator never has
	// to look at role names.
	Admin bool
}

// Aggregate returns the union of permissions granted through all of the
// user's roles, deduplicated case-insensitively. A user with no roles gets an
// empty set, not an error; ErrUserNotFound is reserved for a missing user.
func (a *Aggregator) Aggregate(ctx context.Context, userID string) (*Aggregation, error) {
	if _, err := a.users.GetUser(ctx, userID, false); err != nil {
		return nil, err
	}
	roles, err := a.roles.RolesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	agg := &Aggregation{Roles: roles, Permissions: PermissionSet{}}
	for _, r := range roles {
		if r.IsSystemAdministrator {
			agg.Admin = true
		}
	}
	if len(roles) == 0 {
		return agg, nil
	}
	perms, err := a.perms.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	agg.Permissions = NewPermissionSet(names...)
	return agg, nil
}

// RoleNames returns the role names in assignment order, deduplicated.
func (g *Aggregation) RoleNames() []string {
	if len(g.Roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(g.Roles))
	names := make([]string, 0, len(g.Roles))
	for _, r := range g.Roles {
		if _, ok := seen[r.Name]; ok {
			continue
		}
		seen[r.Name] = struct{}{}
		names = append(names, r.Name)
	}
	return names
}
