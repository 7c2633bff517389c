// Package policy decides which administrator roles may message each other.
package policy

type Role string

const (
	RoleSuper   Role = "super"
	RoleAdmin   Role = "admin"
	RoleAdminTL Role = "admin_tl"
)

// Roles returns the closed set of roles known to the console.
func Roles() []Role {
	return []Role{RoleSuper, RoleAdmin, RoleAdminTL}
}

// ParseRole maps a stored role string onto the closed set.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

func (r Role) Valid() bool {
	switch r {
	case RoleSuper, RoleAdmin, RoleAdminTL:
		return true
	}
	return false
}

// conversable lists, per role, the roles it may message. Every entry must be
// mirrored on the other side.
var conversable = map[Role]map[Role]bool{
	RoleSuper:   {RoleSuper: true, RoleAdmin: true, RoleAdminTL: true},
	RoleAdmin:   {RoleSuper: true, RoleAdmin: true, RoleAdminTL: true},
	RoleAdminTL: {RoleSuper: true, RoleAdmin: true, RoleAdminTL: true},
}

// CanConverse reports whether principals holding roles a and b may exchange
// direct messages. It is symmetric and denies any role outside the set.
func CanConverse(a, b Role) bool {
	return conversable[a][b]
}

// CanConverseRaw is CanConverse over unparsed role strings.
func CanConverseRaw(a, b string) bool {
	return CanConverse(Role(a), Role(b))
}
