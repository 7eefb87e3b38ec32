package auth

import "slices"

// Permission represents a named capability on the admin API.
type Permission string

// Permission constants.
const (
	PermCurveRead  Permission = "curve:read"
	PermCurveWrite Permission = "curve:write"
	PermAuditRead  Permission = "audit:read"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermCurveRead,
	},
	RoleOperator: {
		PermCurveRead,
		PermCurveWrite,
		PermAuditRead,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}
