package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"gatekey.org/internal/events"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *memStore, *testClock) {
	t.Helper()
	store := newMemStore()
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]ServiceOption{WithClock(clock.Now)}, opts...)
	svc := NewService(testSigning(t), store, store, store, store, opts...)
	return svc, store, clock
}

// seedRBAC installs the catalog, the built-in roles and their default grants.
func seedRBAC(t *testing.T, svc *Service) map[string]*Role {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.SyncCatalog(ctx); err != nil {
		t.Fatalf("SyncCatalog failed: %v", err)
	}
	roles := make(map[string]*Role)
	for _, name := range []string{RoleAdmin, RoleManager, RoleUser, RoleGuest} {
		role, err := svc.CreateRole(ctx, name, "", name == RoleAdmin)
		if err != nil {
			t.Fatalf("CreateRole(%s) failed: %v", name, err)
		}
		roles[name] = role
		for _, perm := range DefaultRoleGrants[name] {
			if _, err := svc.GrantPermission(ctx, role.ID, perm); err != nil {
				t.Fatalf("GrantPermission(%s, %s) failed: %v", name, perm, err)
			}
		}
	}
	return roles
}

func TestRegisterCreatesUserAndPair(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedRBAC(t, svc)
	ctx := context.Background()

	user, pair, err := svc.Register(ctx, "  Alice@Example.com ", "alice", "long-enough-pass", "198.51.100.1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email must be normalized, got %q", user.Email)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}

	p, err := svc.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken failed: %v", err)
	}
	if len(p.Roles) != 1 || p.Roles[0] != RoleUser {
		t.Fatalf("expected the default User role, got %v", p.Roles)
	}
	if !p.Permissions.ContainsAll(PermUsersReadOwn, PermUsersWriteOwn) || p.Permissions.Len() != 2 {
		t.Fatalf("unexpected default permissions: %v", p.Permissions.Sorted())
	}

	if _, _, err := svc.Register(ctx, "alice@example.com", "alice2", "long-enough-pass", ""); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if _, _, err := svc.Register(ctx, "bob@example.com", "bob", "short", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for weak password, got %v", err)
	}
}

func TestLoginVerifiesCredentials(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedRBAC(t, svc)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "carol@example.com", "carol", "long-enough-pass", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := svc.Login(ctx, "carol@example.com", "wrong-password!", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "long-enough-pass", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email must look like bad credentials, got %v", err)
	}

	pair, err := svc.Login(ctx, "CAROL@example.com", "long-enough-pass", "198.51.100.2")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if pair.AccessToken == "" {
		t.Fatal("expected an access token")
	}
	got, err := store.GetUser(ctx, user.ID, false)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.LastLoginAt == nil {
		t.Fatal("login must record last_login_at")
	}

	if err := store.UpdateUserStatus(ctx, user.ID, UserStatusDisabled); err != nil {
		t.Fatalf("UpdateUserStatus failed: %v", err)
	}
	if _, err := svc.Login(ctx, "carol@example.com", "long-enough-pass", ""); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestAggregateUnionsAcrossRoles(t *testing.T) {
	svc, _, _ := newTestService(t)
	roles := seedRBAC(t, svc)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "dave@example.com", "dave", "long-enough-pass", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := svc.AssignRole(ctx, user.ID, roles[RoleManager].ID); err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}
	if err := svc.AssignRole(ctx, user.ID, roles[RoleManager].ID); !errors.Is(err, ErrDuplicateAssignment) {
		t.Fatalf("expected ErrDuplicateAssignment, got %v", err)
	}

	agg, err := svc.EffectivePermissions(ctx, user.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions failed: %v", err)
	}
	// User grants are a subset of Manager grants, so the union is Manager's.
	if agg.Permissions.Len() != len(DefaultRoleGrants[RoleManager]) {
		t.Fatalf("expected the union of User and Manager grants, got %v", agg.Permissions.Sorted())
	}
	if agg.Admin {
		t.Fatal("manager must not carry the admin capability")
	}

	if _, err := svc.EffectivePermissions(ctx, "missing-user"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAdminRoleGetsFullCatalogAndAdminClaim(t *testing.T) {
	svc, _, _ := newTestService(t)
	roles := seedRBAC(t, svc)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "root@example.com", "root", "long-enough-pass", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := svc.AssignRole(ctx, user.ID, roles[RoleAdmin].ID); err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}

	pair, err := svc.Login(ctx, "root@example.com", "long-enough-pass", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	p, err := svc.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken failed: %v", err)
	}
	if !p.IsAdmin {
		t.Fatal("admin capability must travel in the token")
	}
	if p.Permissions.Len() != len(Catalog) {
		t.Fatalf("expected all %d catalog permissions, got %d", len(Catalog), p.Permissions.Len())
	}
}

func TestZeroRoleUserHasNoPermissionsClaim(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedRBAC(t, svc)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "eve@example.com", "eve", "long-enough-pass", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	role, err := store.GetRoleByName(ctx, RoleUser)
	if err != nil {
		t.Fatalf("GetRoleByName failed: %v", err)
	}
	if err := svc.RemoveRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("RemoveRole failed: %v", err)
	}

	pair, err := svc.Login(ctx, "eve@example.com", "long-enough-pass", "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	p, err := svc.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken failed: %v", err)
	}
	if p.Permissions.Len() != 0 || len(p.Roles) != 0 {
		t.Fatalf("expected empty claims, got roles=%v perms=%v", p.Roles, p.Permissions.Sorted())
	}
}

func TestRefreshRotatesExclusively(t *testing.T) {
	svc, store, clock := newTestService(t)
	seedRBAC(t, svc)
	ctx := context.Background()

	_, pair, err := svc.Register(ctx, "fred@example.com", "fred", "long-enough-pass", "203.0.113.1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	clock.Advance(time.Hour)
	next, err := svc.Refresh(ctx, pair.RefreshToken, "203.0.113.2")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation must mint a new refresh token")
	}

	// The spent token loses; only one rotation per value can succeed.
	if _, err := svc.Refresh(ctx, pair.RefreshToken, ""); !errors.Is(err, ErrRefreshTokenInactive) {
		t.Fatalf("expected ErrRefreshTokenInactive for the spent token, got %v", err)
	}
	if _, err := svc.Refresh(ctx, "completely-unknown", ""); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("expected ErrRefreshTokenNotFound, got %v", err)
	}

	old, err := store.FindByValue(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("FindByValue failed: %v", err)
	}
	if !old.IsRevoked || old.RevokedIP != "203.0.113.2" {
		t.Fatalf("rotation must record the revocation chain: %+v", old)
	}
	if old.ReplacedBy != next.RefreshToken {
		t.Fatalf("replaced_by must carry the successor's value, got %q", old.ReplacedBy)
	}

	clock.Advance(8 * 24 * time.Hour)
	if _, err := svc.Refresh(ctx, next.RefreshToken, ""); !errors.Is(err, ErrRefreshTokenInactive) {
		t.Fatalf("expected ErrRefreshTokenInactive past expiry, got %v", err)
	}
}

func TestLogoutRevokesAllIdempotently(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedRBAC(t, svc)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, "gina@example.com", "gina", "long-enough-pass", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := svc.Login(ctx, "gina@example.com", "long-enough-pass", ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	count, err := svc.Logout(ctx, user.ID, "203.0.113.3")
	if err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revoked tokens, got %d", count)
	}

	count, err = svc.Logout(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("repeat Logout failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("repeat logout must revoke nothing, got %d", count)
	}

	sessions, err := svc.ActiveSessions(ctx, user.ID)
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(sessions))
	}
}

func TestRevokeTokenChecksOwnershipAndIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedRBAC(t, svc)
	ctx := context.Background()

	owner, pair, err := svc.Register(ctx, "hana@example.com", "hana", "long-enough-pass", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	stranger, _, err := svc.Register(ctx, "ivo@example.com", "ivo", "long-enough-pass", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := svc.RevokeToken(ctx, stranger.ID, pair.RefreshToken, ""); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("foreign token must look unknown, got %v", err)
	}
	revoked, err := svc.RevokeToken(ctx, owner.ID, pair.RefreshToken, "203.0.113.9")
	if err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}
	if !revoked {
		t.Fatal("first revocation must report a change")
	}
	// Revoking a revoked token is a no-op and must say so.
	revoked, err = svc.RevokeToken(ctx, owner.ID, pair.RefreshToken, "")
	if err != nil {
		t.Fatalf("repeat RevokeToken failed: %v", err)
	}
	if revoked {
		t.Fatal("repeat revocation must report no change")
	}

	sessions, err := svc.ActiveSessions(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ActiveSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no active sessions, got %d", len(sessions))
	}
}

func TestSyncCatalogIsAdditiveAndIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	added, err := svc.SyncCatalog(ctx)
	if err != nil {
		t.Fatalf("SyncCatalog failed: %v", err)
	}
	if added != len(Catalog) {
		t.Fatalf("expected %d inserts on first sync, got %d", len(Catalog), added)
	}

	added, err = svc.SyncCatalog(ctx)
	if err != nil {
		t.Fatalf("second SyncCatalog failed: %v", err)
	}
	if added != 0 {
		t.Fatalf("second sync must be a no-op, got %d inserts", added)
	}
}

func TestGrantPermissionReportsNovelty(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.SyncCatalog(ctx); err != nil {
		t.Fatalf("SyncCatalog failed: %v", err)
	}
	role, err := svc.CreateRole(ctx, "Auditor", "read-only audit access", false)
	if err != nil {
		t.Fatalf("CreateRole failed: %v", err)
	}
	if _, err := svc.CreateRole(ctx, "auditor", "", false); !errors.Is(err, ErrRoleExists) {
		t.Fatalf("role names must be unique case-insensitively, got %v", err)
	}

	created, err := svc.GrantPermission(ctx, role.ID, PermAuditRead)
	if err != nil {
		t.Fatalf("GrantPermission failed: %v", err)
	}
	if !created {
		t.Fatal("first grant must report true")
	}
	created, err = svc.GrantPermission(ctx, role.ID, PermAuditRead)
	if err != nil {
		t.Fatalf("repeat GrantPermission failed: %v", err)
	}
	if created {
		t.Fatal("repeat grant must report false")
	}
	if _, err := svc.GrantPermission(ctx, role.ID, "made.up"); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}

	if err := svc.RevokePermission(ctx, role.ID, PermAuditRead); err != nil {
		t.Fatalf("RevokePermission failed: %v", err)
	}
	perms, err := svc.PermissionsForRole(ctx, role.ID)
	if err != nil {
		t.Fatalf("PermissionsForRole failed: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("expected no grants left, got %v", perms)
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	bus := events.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := bus.Subscribe(ctx)

	svc, _, _ := newTestService(t, WithEventPublisher(bus))
	seedRBAC(t, svc)

	user, _, err := svc.Register(ctx, "hank@example.com", "hank", "long-enough-pass", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := svc.Logout(ctx, user.ID, ""); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	topics := make(map[string]events.Event)
	for i := 0; i < 2; i++ {
		select {
		case evt := <-ch:
			topics[evt.Topic] = evt
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	if _, ok := topics[events.TopicUserRegistered]; !ok {
		t.Fatalf("missing registration event, got %v", topics)
	}
	revoked, ok := topics[events.TopicTokenRevoked]
	if !ok {
		t.Fatalf("missing revocation event, got %v", topics)
	}
	if revoked.Payload["count"] != "1" {
		t.Fatalf("unexpected revocation payload: %v", revoked.Payload)
	}
}
