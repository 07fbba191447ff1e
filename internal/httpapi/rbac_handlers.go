package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"gatekey.org/internal/audit"
	"gatekey.org/internal/auth"
)

// Static authorization rules, built once at package load. A typo in a
// permission name fails fast instead of silently allowing everything.
var (
	needRolesRead   = auth.MustRequirement(auth.RequireAny, auth.PermRolesRead)
	needRolesManage = auth.MustRequirement(auth.RequireAll, auth.PermRolesManage)
	needRoleAssign  = auth.MustRequirement(auth.RequireAny, auth.PermRolesAssign)
	needAssignUser  = auth.MustRequirement(auth.RequireAny, auth.PermRolesAssign, auth.PermRolesAssignUser)
	needPermsRead   = auth.MustRequirement(auth.RequireAny, auth.PermPermissionsRead, auth.PermRolesRead)
	needPermsManage = auth.MustRequirement(auth.RequireAll, auth.PermPermissionsManage)
	needUsersRead   = auth.MustRequirement(auth.RequireAny, auth.PermUsersRead)
	needEventsRead  = auth.MustRequirement(auth.RequireAny, auth.PermAuditReadAll)
)

type createRoleRequest struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	IsSystemAdministrator bool   `json:"is_system_administrator"`
}

type grantPermissionRequest struct {
	Permission string `json:"permission"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, needRolesRead) {
			return
		}
		roles, err := a.svc.ListRoles(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		if !a.ensurePermissions(w, r, needRolesManage) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.CreateRole(r.Context(), req.Name, req.Description, req.IsSystemAdministrator)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r, "rbac.role.created", map[string]any{"role_id": role.ID, "name": role.Name})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleRoleResource routes /v1/roles/{id} and /v1/roles/{id}/permissions.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleRole(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "permissions":
		a.handleRolePermissions(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, needRolesRead) {
		return
	}
	role, err := a.svc.GetRole(r.Context(), roleID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, needPermsRead) {
			return
		}
		perms, err := a.svc.PermissionsForRole(r.Context(), roleID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
	case http.MethodPost:
		if !a.ensurePermissions(w, r, needPermsManage) {
			return
		}
		var req grantPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.svc.GrantPermission(r.Context(), roleID, req.Permission)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if created {
			a.audit(r, "rbac.permission.granted", map[string]any{"role_id": roleID, "permission": req.Permission})
			writeJSON(w, http.StatusCreated, map[string]any{"granted": true})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"granted": false})
	case http.MethodDelete:
		if !a.ensurePermissions(w, r, needPermsManage) {
			return
		}
		var req grantPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.svc.RevokePermission(r.Context(), roleID, req.Permission); err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r, "rbac.permission.revoked", map[string]any{"role_id": roleID, "permission": req.Permission})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

// handleUserResource routes /v1/users/{id}/roles and /v1/users/{id}/roles/{role_id}.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 2 && parts[1] == "roles":
		a.handleUserRoles(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "roles":
		a.handleUserRoleAssignment(w, r, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		// Users may always inspect their own assignments.
		if principal, ok := auth.PrincipalFromContext(r.Context()); !ok || principal.UserID != userID {
			if !a.ensurePermissions(w, r, needUsersRead) {
				return
			}
		}
		roles, err := a.svc.RolesForUser(r.Context(), userID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		req.RoleID = strings.TrimSpace(req.RoleID)
		if req.RoleID == "" {
			writeError(w, r, http.StatusBadRequest, "role_id is required")
			return
		}
		role, err := a.svc.GetRole(r.Context(), req.RoleID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		// roles.assign.user only covers handing out the built-in User role.
		need := needRoleAssign
		if strings.EqualFold(role.Name, auth.RoleUser) {
			need = needAssignUser
		}
		if !a.ensurePermissions(w, r, need) {
			return
		}
		if err := a.svc.AssignRole(r.Context(), userID, req.RoleID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		a.audit(r, "rbac.role.assigned", map[string]any{"user_id": userID, "role_id": req.RoleID})
		writeJSON(w, http.StatusCreated, map[string]any{"user_id": userID, "role_id": req.RoleID})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserRoleAssignment(w http.ResponseWriter, r *http.Request, userID, roleID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensurePermissions(w, r, needRoleAssign) {
		return
	}
	if err := a.svc.RemoveRole(r.Context(), userID, roleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "rbac.role.removed", map[string]any{"user_id": userID, "role_id": roleID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, needPermsRead) {
		return
	}
	perms, err := a.svc.ListPermissions(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

// handlePermissionsSync re-runs the additive catalog sync on demand.
func (a *API) handlePermissionsSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermissions(w, r, needPermsManage) {
		return
	}
	added, err := a.svc.SyncCatalog(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.audit(r, "rbac.catalog.synced", map[string]any{"added": added})
	writeJSON(w, http.StatusOK, map[string]any{"added": added})
}

func (a *API) audit(r *http.Request, event string, fields map[string]any) {
	_ = audit.LogEvent(r.Context(), event, fields)
}
