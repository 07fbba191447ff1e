package auth

import (
	"fmt"
	"strings"
)

// Requirement mode: whether every named permission is required, or any one.
const (
	RequireAll = "all"
	RequireAny = "any"
)

// Requirement is a static authorization rule built at handler registration
// time. An empty permission list is a configuration bug, so NewRequirement
// rejects it instead of letting a vacuous rule reach the evaluator.
type Requirement struct {
	permissions []string
	mode        string
}

// NewRequirement builds a requirement. mode must be RequireAll or RequireAny
// and at least one permission name must be given.
func NewRequirement(mode string, permissions ...string) (Requirement, error) {
	cleaned := make([]string, 0, len(permissions))
	for _, p := range permissions {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return Requirement{}, fmt.Errorf("%w: requirement needs at least one permission", ErrInvalidInput)
	}
	switch mode {
	case RequireAll, RequireAny:
	default:
		return Requirement{}, fmt.Errorf("%w: unknown requirement mode %q", ErrInvalidInput, mode)
	}
	return Requirement{permissions: cleaned, mode: mode}, nil
}

// MustRequirement is NewRequirement for static rules; it panics on a bad rule.
func MustRequirement(mode string, permissions ...string) Requirement {
	r, err := NewRequirement(mode, permissions...)
	if err != nil {
		panic(err)
	}
	return r
}

// Permissions returns the required permission names.
func (r Requirement) Permissions() []string { return append([]string(nil), r.permissions...) }

// Decision is the evaluator's verdict. Denial is a value, not an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Denial reasons.
const (
	ReasonUnauthenticated   = "unauthenticated"
	ReasonNoPermissions     = "no_permissions_claim"
	ReasonAdminOverride     = "admin_override"
	ReasonGranted           = "granted"
	ReasonMissingPermission = "missing_permission"
)

// Evaluate decides the requirement against a principal using only token
// contents. The order is fixed: unauthenticated, then an absent permissions
// claim, then the admin override, then the set test.
func Evaluate(p *Principal, r Requirement) Decision {
	if p == nil || p.UserID == "" {
		return Decision{Allowed: false, Reason: ReasonUnauthenticated}
	}
	if len(p.Permissions) == 0 {
		return Decision{Allowed: false, Reason: ReasonNoPermissions}
	}
	if p.IsAdmin {
		return Decision{Allowed: true, Reason: ReasonAdminOverride}
	}
	ok := false
	switch r.mode {
	case RequireAny:
		ok = p.Permissions.ContainsAny(r.permissions...)
	default:
		ok = p.Permissions.ContainsAll(r.permissions...)
	}
	if ok {
		return Decision{Allowed: true, Reason: ReasonGranted}
	}
	return Decision{Allowed: false, Reason: ReasonMissingPermission}
}
