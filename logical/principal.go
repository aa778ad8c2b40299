package logical

import "strings"

// RolePrefix is the optional prefix carried by role names in tokens.
const RolePrefix = "ROLE_"

// Principal is the identified subject of a request. A guest has no user id
// and no username; a user has both.
type Principal struct {
	UserID    *int64
	Username  string
	Email     string
	FirstName string
	LastName  string
	// Roles keeps claim order; it is the order used in X-User-Roles.
	Roles     []string
	SessionID string
}

// IsGuest reports whether the principal is an anonymous guest.
func (p *Principal) IsGuest() bool {
	return p.UserID == nil && p.Username == ""
}

// HasRole reports membership on the normalized role name, so "ADMIN" and
// "ROLE_ADMIN" are the same role.
func (p *Principal) HasRole(name string) bool {
	want := NormalizeRole(name)
	for _, r := range p.Roles {
		if NormalizeRole(r) == want {
			return true
		}
	}
	return false
}

// NormalizeRole strips the ROLE_ prefix when present.
func NormalizeRole(role string) string {
	return strings.TrimPrefix(role, RolePrefix)
}
