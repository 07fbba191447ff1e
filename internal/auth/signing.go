package auth

import (
	"strings"
	"time"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// SigningContext is the immutable token-signing configuration, constructed
// once at process start and passed by value to the Issuer. There is no
// ambient/global secret lookup anywhere else in the package.
type SigningContext struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewSigningContext validates and freezes the signing configuration.
// An empty secret is a startup-fatal ErrSigningConfigurationMissing.
func NewSigningContext(secret, issuer, audience string, accessTTL, refreshTTL time.Duration) (SigningContext, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return SigningContext{}, ErrSigningConfigurationMissing
	}
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	return SigningContext{
		secret:     []byte(secret),
		issuer:     strings.TrimSpace(issuer),
		audience:   strings.TrimSpace(audience),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (c SigningContext) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (c SigningContext) RefreshTTL() time.Duration { return c.refreshTTL }

// Issuer returns the iss claim value.
func (c SigningContext) Issuer() string { return c.issuer }
