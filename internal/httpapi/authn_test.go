package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"gatekey.org/internal/auth"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", false},
		{"bearer abc.def.ghi", "abc.def.ghi", false},
		{"Bearer   spaced  ", "spaced", false},
		{"", "", true},
		{"Bearer ", "", true},
		{"Basic dXNlcjpwYXNz", "", true},
		{"abc.def.ghi", "", true},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("header %q: expected error", tc.header)
			}
			continue
		}
		if err != nil {
			t.Fatalf("header %q: %v", tc.header, err)
		}
		if got != tc.want {
			t.Fatalf("header %q: got %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestPublicPathsSkipAuth(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz", "/v1/info", "/metrics", "/v1/auth/login", "/openapi.yaml"} {
		if !isPublicPath(path) {
			t.Fatalf("expected %s to be public", path)
		}
	}
	for _, path := range []string{"/v1/auth/me", "/v1/roles", "/v1/events", "/v1/permissions"} {
		if isPublicPath(path) {
			t.Fatalf("expected %s to require auth", path)
		}
	}
}

func TestEnsurePermissionsDistinguishes401And403(t *testing.T) {
	a := &API{}
	need := auth.MustRequirement(auth.RequireAll, auth.PermRolesRead)

	// No principal in context.
	req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	rr := httptest.NewRecorder()
	if a.ensurePermissions(rr, req, need) {
		t.Fatal("expected denial without principal")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	// Principal without the permission.
	p := &auth.Principal{UserID: "u1", Permissions: auth.NewPermissionSet(auth.PermUsersReadOwn)}
	req = httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), p))
	rr = httptest.NewRecorder()
	if a.ensurePermissions(rr, req, need) {
		t.Fatal("expected denial without grant")
	}
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	// Principal with the permission.
	p = &auth.Principal{UserID: "u1", Permissions: auth.NewPermissionSet(auth.PermRolesRead)}
	req = httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), p))
	rr = httptest.NewRecorder()
	if !a.ensurePermissions(rr, req, need) {
		t.Fatal("expected grant")
	}
}
