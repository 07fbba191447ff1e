package httpapi

import (
	"errors"
	"net/http"
	"time"

	"gatekey.org/internal/audit"
	"gatekey.org/internal/auth"
	"gatekey.org/internal/obs"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	TokenType        string    `json:"token_type"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func pairResponse(p *auth.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		TokenType:        "Bearer",
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, pair, err := a.svc.Register(r.Context(), req.Email, req.Username, req.Password, clientIP(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.user.registered", map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":   user,
		"tokens": pairResponse(pair),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, err := a.svc.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			obs.CountLogin("invalid")
		case errors.Is(err, auth.ErrAccountInactive):
			obs.CountLogin("inactive")
		default:
			obs.CountLogin("error")
		}
		handleAuthError(w, r, err)
		return
	}
	obs.CountLogin("ok")
	_ = audit.LogEvent(r.Context(), "auth.user.loggedin", map[string]any{
		"ip": clientIP(r),
	})
	writeJSON(w, http.StatusOK, pairResponse(pair))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, err := a.svc.Refresh(r.Context(), req.RefreshToken, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshTokenNotFound):
			obs.CountRefresh("not_found")
		case errors.Is(err, auth.ErrRefreshTokenInactive):
			obs.CountRefresh("inactive")
		default:
			obs.CountRefresh("error")
		}
		handleAuthError(w, r, err)
		return
	}
	obs.CountRefresh("ok")
	writeJSON(w, http.StatusOK, pairResponse(pair))
}

// handleLogout revokes every refresh token of the authenticated user.
// Repeating it is harmless; the second call reports zero revocations.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	// An optional body may name a single refresh token to revoke; without one
	// every active session goes.
	var req refreshRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	var count int
	if req.RefreshToken != "" {
		revoked, err := a.svc.RevokeToken(r.Context(), principal.UserID, req.RefreshToken, clientIP(r))
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		if revoked {
			count = 1
		}
	} else {
		var err error
		count, err = a.svc.Logout(r.Context(), principal.UserID, clientIP(r))
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
	}
	obs.CountRevoked(count)
	_ = audit.LogEvent(r.Context(), "auth.token.revoked", map[string]any{
		"count": count,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"revoked": count,
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     principal.UserID,
		"email":       principal.Email,
		"username":    principal.Username,
		"roles":       principal.Roles,
		"permissions": principal.Permissions.Sorted(),
		"admin":       principal.IsAdmin,
	})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	sessions, err := a.svc.ActiveSessions(r.Context(), principal.UserID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, map[string]any{
			"id":         s.ID,
			"created_at": s.CreatedAt,
			"expires_at": s.ExpiresAt,
			"issued_ip":  s.IssuedIP,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": out,
	})
}
