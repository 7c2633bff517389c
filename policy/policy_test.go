package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanConverse_RoleMatrix(t *testing.T) {
	want := map[Role]map[Role]bool{
		RoleSuper:   {RoleSuper: true, RoleAdmin: true, RoleAdminTL: true},
		RoleAdmin:   {RoleSuper: true, RoleAdmin: true, RoleAdminTL: true},
		RoleAdminTL: {RoleSuper: true, RoleAdmin: true, RoleAdminTL: true},
	}
	for _, a := range Roles() {
		for _, b := range Roles() {
			require.Equal(t, want[a][b], CanConverse(a, b), "%s <-> %s", a, b)
		}
	}
}

func TestCanConverse_Symmetric(t *testing.T) {
	all := append(Roles(), Role(""), Role("employee"), Role("SUPER"))
	for _, a := range all {
		for _, b := range all {
			require.Equal(t, CanConverse(a, b), CanConverse(b, a), "%q <-> %q", a, b)
		}
	}
}

func TestCanConverse_UnknownRoleDenied(t *testing.T) {
	req := require.New(t)
	for _, r := range Roles() {
		req.False(CanConverse(r, "employee"))
		req.False(CanConverse("", r))
	}
	req.False(CanConverse("employee", "employee"))
	req.False(CanConverseRaw("super", "root"))
}

func TestParseRole(t *testing.T) {
	req := require.New(t)
	r, ok := ParseRole("admin_tl")
	req.True(ok)
	req.Equal(RoleAdminTL, r)

	_, ok = ParseRole("Admin")
	req.False(ok)
}
