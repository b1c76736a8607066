// Package auth holds the identity types shared by the API server and its clients:
// roles, the authenticated principal, route requirements and the guard deciding access.
package auth

import (
	"sort"
	"strings"
)

// Role is the access level of a principal. Unauthenticated callers have no principal at all.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleGuru  Role = "guru" // teacher
	RoleUser  Role = "user"
)

var (
	AllRoles = []Role{RoleAdmin, RoleGuru, RoleUser}

	rolePriorities = map[Role]int{
		RoleAdmin: 30,
		RoleGuru:  20,
		RoleUser:  10,
	}

	roleNames = map[Role]string{
		RoleAdmin: "Admin",
		RoleGuru:  "Guru",
		RoleUser:  "User",
	}
)

// ParseRole returns the role matching s (case-insensitive) and whether it is known.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	_, ok := rolePriorities[r]
	return r, ok
}

func (r Role) Valid() bool {
	_, ok := rolePriorities[r]
	return ok
}

func (r Role) Priority() int { return rolePriorities[r] }

// Name is the human readable role name.
func (r Role) Name() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return string(r)
}

// Outranks reports whether r has a strictly higher priority than other.
func (r Role) Outranks(other Role) bool { return r.Priority() > other.Priority() }

// SortRoles orders roles from the highest priority to the lowest.
func SortRoles(roles []Role) {
	sort.SliceStable(roles, func(i, j int) bool { return roles[i].Outranks(roles[j]) })
}

// Principal is the authenticated identity of the current session.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  Role   `json:"role"`
	Token string `json:"-"`
}

// HasRole reports whether the principal holds one of roles.
func (p *Principal) HasRole(roles ...Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

func (p *Principal) IsAdmin() bool { return p.HasRole(RoleAdmin) }
