package auth

import (
	"fmt"
	"sort"
)

// Role is the coarse privilege level of a principal.
type Role string

// The closed set of roles.
const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// DefaultRole is assigned when a token carries no role.
const DefaultRole = RoleUser

// ParseRole converts a string into a Role. An empty string yields the
// default role; anything outside the closed set is an error.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return DefaultRole, nil
	case RoleUser, RoleModerator, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// PermissionSet is an open set of permission strings.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from the given permissions, ignoring empty strings.
func NewPermissionSet(perms ...string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		if p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p string) bool {
	_, ok := s[p]
	return ok
}

// HasAny reports whether the set intersects perms.
func (s PermissionSet) HasAny(perms ...string) bool {
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// List returns the permissions in sorted order.
func (s PermissionSet) List() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Principal is the authenticated identity attached to a request or a
// realtime session. It is never mutated after verification.
type Principal struct {
	ID          string
	Email       string
	Username    string
	Role        Role
	Permissions PermissionSet
}

// HasRole reports whether the principal's role is one of roles.
func (p *Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal has the admin role.
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
