package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gatekey.org/internal/ids"
)

const refreshTokenBytes = 64

// Issuer mints access and refresh tokens. It performs no persistence: the
// caller saves refresh tokens through the ledger, which keeps issuance pure
// and testable.
type Issuer struct {
	signing SigningContext
	now     func() time.Time
}

// NewIssuer binds an Issuer to its signing context. The clock defaults to
// time.Now and is overridable for tests via WithIssuerClock.
func NewIssuer(signing SigningContext, opts ...IssuerOption) *Issuer {
	iss := &Issuer{signing: signing, now: time.Now}
	for _, opt := range opts {
		opt(iss)
	}
	return iss
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerClock overrides the time source.
func WithIssuerClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// IssueAccessToken signs an HS256 JWT for an already-authenticated user.
// exp - iat equals the configured access TTL exactly; the permissions claim is
// omitted when the set is empty.
func (i *Issuer) IssueAccessToken(user *User, roles []string, perms PermissionSet, admin bool) (string, time.Time, error) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	now := i.now().UTC()
	exp := now.Add(i.signing.accessTTL)

	claims := AccessClaims{
		Email:       user.Email,
		Username:    user.Username,
		Roles:       dedupeRoles(roles),
		Permissions: perms.Sorted(),
		Admin:       admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if i.signing.issuer != "" {
		claims.Issuer = i.signing.issuer
	}
	if i.signing.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.signing.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signing.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// IssueRefreshToken builds an opaque refresh-token record with 64 bytes of
// CSPRNG entropy. Uniqueness of the value is enforced by the ledger's unique
// index, not here.
func (i *Issuer) IssueRefreshToken(userID, ip string) (*RefreshToken, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	now := i.now().UTC()
	return &RefreshToken{
		ID:         ids.New(),
		UserID:     userID,
		TokenValue: base64.RawURLEncoding.EncodeToString(raw),
		ExpiresAt:  now.Add(i.signing.refreshTTL),
		CreatedAt:  now,
		IssuedIP:   strings.TrimSpace(ip),
	}, nil
}

// ParseAndValidate verifies signature, expiry and registered claims of an
// access token. Every failure mode collapses into ErrTokenInvalid; callers
// map it to an unauthenticated response.
func (i *Issuer) ParseAndValidate(token string) (*AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if i.signing.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.signing.issuer))
	}
	if i.signing.audience != "" {
		opts = append(opts, jwt.WithAudience(i.signing.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		return i.signing.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func dedupeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var out []string
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		key := strings.ToLower(role)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, role)
	}
	return out
}
