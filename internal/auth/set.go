package auth

import (
	"sort"
	"strings"
)

// PermissionSet is a case-insensitive set of permission names. It is the
// in-process representation of the token's permissions claim; JSON
// serialization happens only at the token boundary, via Sorted.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from names, lower-casing and dropping blanks.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

func (s PermissionSet) Len() int { return len(s) }

// Contains reports membership, case-insensitively.
func (s PermissionSet) Contains(name string) bool {
	_, ok := s[strings.TrimSpace(strings.ToLower(name))]
	return ok
}

// ContainsAny reports whether at least one of the names is held.
// ContainsAny of nothing is false.
func (s PermissionSet) ContainsAny(names ...string) bool {
	for _, name := range names {
		if s.Contains(name) {
			return true
		}
	}
	return false
}

// ContainsAll reports whether every name is held. ContainsAll of nothing is
// vacuously true.
func (s PermissionSet) ContainsAll(names ...string) bool {
	for _, name := range names {
		if !s.Contains(name) {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexical order for stable claim encoding.
// An empty set returns nil so the permissions claim is omitted entirely.
func (s PermissionSet) Sorted() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
