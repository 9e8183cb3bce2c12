package auth

import (
	"fmt"
	"strings"
)

// Role is the access level carried in a token's role claim.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleLevels = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// ParseRole validates a role claim. Matching is case-insensitive.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleLevels[role]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, value)
	}
	return role, nil
}

// Allows reports whether r grants at least the required level.
func (r Role) Allows(required Role) bool {
	level, ok := roleLevels[r]
	return ok && level >= roleLevels[required]
}
