package capabilities

import "strings"

// Role is a user's enumerated role within one project. Roles form a strict
// superset ordering (owner over admin over member over viewer) in the
// capabilities they resolve to; feature flags only narrow the two lower
// roles.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Roles lists the known roles from most to least privileged.
var Roles = []Role{RoleOwner, RoleAdmin, RoleMember, RoleViewer}

// Known reports whether r is one of the recognized roles. Unrecognized roles
// resolve to the zero capability set; callers decide how loudly to warn.
func (r Role) Known() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// ParseRole normalizes raw input (as stored in a membership list) to a Role.
// The second return is false when the input is not a recognized role; the
// raw value is preserved in the returned Role either way so it can be logged.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	return r, r.Known()
}
