package permissions

import (
	"fmt"
	"slices"
	"strings"

	"mlaku/shared/failure"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleStaff   Role = "staff"
	RoleTourist Role = "tourist"
)

var roles = []Role{RoleOwner, RoleStaff, RoleTourist}

// Roles lists every known role.
func Roles() []Role {
	return slices.Clone(roles)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return slices.Contains(roles, r)
}

func (r Role) String() string {
	return string(r)
}

// ParseRole accepts a role name case-insensitively.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", value)
	}

	return role, nil
}

// Actor is the identity an operation is performed on behalf of.
type Actor struct {
	ID   string
	Role Role
}

// Satisfies reports whether role meets a requirement naming any of required.
// Owners satisfy every requirement; an empty requirement is satisfied by anyone.
func (r Role) Satisfies(required ...Role) bool {
	if len(required) == 0 {
		return true
	}

	if r == RoleOwner {
		return true
	}

	return r.Valid() && slices.Contains(required, r)
}

// Authorize is the single authorization gate. It is a pure function of the
// actor's role and the operation's role requirement.
func Authorize(actor *Actor, required ...Role) error {
	if len(required) == 0 {
		return nil
	}

	if actor == nil || actor.Role == "" {
		return failure.ForbiddenError
	}

	if !actor.Role.Satisfies(required...) {
		return failure.ForbiddenError
	}

	return nil
}
