// Package authz holds the access checks applied to an authenticated
// principal. Every check is a pure function returning nil on success or an
// *apierror.Error describing the refusal; none of them has side effects.
package authz

import (
	"strings"

	"github.com/vyrodovalexey/vibemuse-edge/internal/apierror"
	"github.com/vyrodovalexey/vibemuse-edge/internal/auth"
)

// RoleDenial is attached to role refusals for diagnostics.
type RoleDenial struct {
	RequiredRoles []auth.Role `json:"requiredRoles"`
	UserRole      auth.Role   `json:"userRole"`
}

// PermissionDenial is attached to permission refusals for diagnostics.
type PermissionDenial struct {
	RequiredPermissions []string `json:"requiredPermissions"`
	UserPermissions     []string `json:"userPermissions"`
}

// ModeratorRoles are the roles accepted by RequireModerator.
var ModeratorRoles = []auth.Role{auth.RoleModerator, auth.RoleAdmin}

// CheckAuthenticated fails when no principal is present.
func CheckAuthenticated(p *auth.Principal) error {
	if p == nil {
		return apierror.AuthenticationRequired()
	}
	return nil
}

// CheckRole passes iff the principal's role is one of roles.
func CheckRole(p *auth.Principal, roles ...auth.Role) error {
	if err := CheckAuthenticated(p); err != nil {
		return err
	}
	if p.HasRole(roles...) {
		return nil
	}

	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}
	e := apierror.Forbidden("Required role: " + strings.Join(names, " or ")).
		WithDetails(RoleDenial{RequiredRoles: roles, UserRole: p.Role})
	e.Code = apierror.CodeInsufficientPermission
	return e
}

// CheckPermission passes iff the principal holds at least one of perms.
func CheckPermission(p *auth.Principal, perms ...string) error {
	if err := CheckAuthenticated(p); err != nil {
		return err
	}
	if p.Permissions.HasAny(perms...) {
		return nil
	}

	e := apierror.Forbidden("Required permission: " + strings.Join(perms, " or ")).
		WithDetails(PermissionDenial{RequiredPermissions: perms, UserPermissions: p.Permissions.List()})
	e.Code = apierror.CodeInsufficientPermission
	return e
}

// CheckSelfOrAdmin passes iff the principal owns targetID or is an admin.
func CheckSelfOrAdmin(p *auth.Principal, targetID string) error {
	if err := CheckAuthenticated(p); err != nil {
		return err
	}
	if p.IsAdmin() || (targetID != "" && p.ID == targetID) {
		return nil
	}
	return apierror.Forbidden("Access denied: can only access own resources")
}

// CheckAdmin passes iff the principal is an admin.
func CheckAdmin(p *auth.Principal) error {
	return CheckRole(p, auth.RoleAdmin)
}

// CheckModerator passes iff the principal is a moderator or an admin.
func CheckModerator(p *auth.Principal) error {
	return CheckRole(p, ModeratorRoles...)
}
