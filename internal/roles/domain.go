package roles

import (
	"errors"
	"strings"
	"time"
)

// Role names. A user without an admin row holds the default role.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// ErrUnknownRole is returned for role names outside RoleAdmin and RoleUser.
var ErrUnknownRole = errors.New("roles: unknown role")

// Assignment is one row of the user_roles relation.
type Assignment struct {
	UserID    string
	Role      string
	CreatedAt time.Time
}

// ParseRole normalises raw into a known role name.
func ParseRole(raw string) (string, error) {
	switch role := strings.ToLower(strings.TrimSpace(raw)); role {
	case RoleAdmin, RoleUser:
		return role, nil
	default:
		return "", ErrUnknownRole
	}
}

// HasAdmin reports whether the role set grants administrator access.
func HasAdmin(roles []string) bool {
	for _, role := range roles {
		if role == RoleAdmin {
			return true
		}
	}
	return false
}

// Display returns the role shown for a user holding roles.
func Display(roles []string) string {
	if HasAdmin(roles) {
		return RoleAdmin
	}
	return RoleUser
}
