package permissions

import (
	"fmt"
	"strings"
)

// Role is a closed set of authorization levels ordered by privilege.
type Role uint8

const (
	// RoleUnknown is the zero value and grants nothing.
	RoleUnknown Role = iota
	// RoleUser owns balances and tokens.
	RoleUser
	// RoleAdmin manages the users it created.
	RoleAdmin
	// RoleSuperAdmin is unrestricted.
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleUser:       "user",
	RoleAdmin:      "admin",
	RoleSuperAdmin: "superadmin",
}

// ParseRole converts a stored role name into a Role.
func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for role, roleName := range roleNames {
		if roleName == name {
			return role, nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", s)
}

// String returns the stored name of r.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r is min or more privileged.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r >= min
}

// Principal is the authenticated caller.
type Principal struct {
	ID   uint64
	Role Role
}

// Subject is the user a resource belongs to.
type Subject struct {
	ID        uint64
	Role      Role
	CreatedBy *uint64
}

func (s Subject) createdBy(id uint64) bool {
	return s.CreatedBy != nil && *s.CreatedBy == id
}

// CanActOn reports whether actor may read or change the balances, tokens and
// transactions of target.
func CanActOn(actor Principal, target Subject) bool {
	switch actor.Role {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		return target.ID != actor.ID && target.Role == RoleUser && target.createdBy(actor.ID)
	case RoleUser:
		return target.ID == actor.ID
	default:
		return false
	}
}

// CanView is CanActOn widened to always include the actor's own record.
func CanView(actor Principal, target Subject) bool {
	if actor.Role.Valid() && actor.ID == target.ID {
		return true
	}
	return CanActOn(actor, target)
}

// CanCreate reports whether actor may create an account with role.
func CanCreate(actor Principal, role Role) bool {
	if !role.Valid() {
		return false
	}
	switch actor.Role {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		return role == RoleUser
	default:
		return false
	}
}

// CanManageUser reports whether actor may edit or delete target's account.
func CanManageUser(actor Principal, target Subject) bool {
	switch actor.Role {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		return CanActOn(actor, target)
	default:
		return false
	}
}

// CanAssignRole reports whether actor may move target to role.
func CanAssignRole(actor Principal, target Subject, role Role) bool {
	if !CanManageUser(actor, target) || !CanCreate(actor, role) {
		return false
	}
	if actor.ID == target.ID && role != actor.Role {
		return false
	}
	return true
}

// Scope describes which users an actor can see in listings.
type Scope struct {
	All       bool
	CreatedBy *uint64
	Self      uint64
}

// VisibleScope returns the listing scope for actor.
func VisibleScope(actor Principal) Scope {
	switch actor.Role {
	case RoleSuperAdmin:
		return Scope{All: true}
	case RoleAdmin:
		id := actor.ID
		return Scope{CreatedBy: &id}
	default:
		return Scope{Self: actor.ID}
	}
}
