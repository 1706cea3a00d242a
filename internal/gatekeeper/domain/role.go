package domain

import "slices"

const (
	RoleUser      = "USER"
	RoleModerator = "MODERATOR"
	RoleAdmin     = "ADMIN"
)

// AuditReaderRoles may query the audit trail.
var AuditReaderRoles = []string{RoleAdmin, RoleModerator}

// IsKnownRole reports whether r is one of the fixed roles.
func IsKnownRole(r string) bool {
	return slices.Contains([]string{RoleUser, RoleModerator, RoleAdmin}, r)
}
