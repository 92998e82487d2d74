// Package rbac implements the threshold-based permission core: an ordered
// role hierarchy, permission tuples over resource/action/context axes, and a
// static policy table mapping tuples to minimum role levels.
package rbac

import "fmt"

// RoleLevel is a position in the role hierarchy. Levels are ordered and
// threshold-based, not bitmasks: a permission granted at level N is granted
// to every level above N.
type RoleLevel int

const (
	RoleCustomer     RoleLevel = 1
	RoleFulfillment  RoleLevel = 2
	RoleSalesRep     RoleLevel = 3
	RoleSalesManager RoleLevel = 4
	RoleAdmin        RoleLevel = 5
	RoleSuperAdmin   RoleLevel = 6
)

var roleNames = map[RoleLevel]string{
	RoleCustomer:     "customer",
	RoleFulfillment:  "fulfillment_coordinator",
	RoleSalesRep:     "sales_rep",
	RoleSalesManager: "sales_manager",
	RoleAdmin:        "admin",
	RoleSuperAdmin:   "super_admin",
}

// String returns the stable wire name of the level.
func (l RoleLevel) String() string {
	if name, ok := roleNames[l]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(l))
}

// Valid reports whether the level is within the defined hierarchy.
func (l RoleLevel) Valid() bool {
	return l >= RoleCustomer && l <= RoleSuperAdmin
}

// AtLeast reports whether the level meets the given minimum.
func (l RoleLevel) AtLeast(min RoleLevel) bool {
	return l >= min
}

// ParseRole resolves a wire name back to its level.
func ParseRole(name string) (RoleLevel, error) {
	for level, n := range roleNames {
		if n == name {
			return level, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}
