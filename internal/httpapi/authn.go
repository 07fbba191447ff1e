package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gatekey.org/internal/audit"
	"gatekey.org/internal/auth"
	"gatekey.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/openapi.yaml",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.svc.ParseAccessToken(token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenInvalid) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			} else {
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensurePermissions runs the evaluator against the request principal and
// writes the denial response itself. Handlers bail out when it returns false.
// Denials land in the audit trail with the evaluator's reason.
func (a *API) ensurePermissions(w http.ResponseWriter, r *http.Request, req auth.Requirement) bool {
	principal, _ := auth.PrincipalFromContext(r.Context())
	decision := auth.Evaluate(principal, req)
	obs.CountDecision(decision.Allowed, decision.Reason)
	if decision.Allowed {
		return true
	}
	_ = audit.LogDecision(r.Context(), decision, map[string]any{
		"path":   r.URL.Path,
		"method": r.Method,
	})
	if decision.Reason == auth.ReasonUnauthenticated {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	writeError(w, r, http.StatusForbidden, "insufficient permissions")
	return false
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
