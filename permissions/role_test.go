package permissions_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlaku/permissions"
	"mlaku/shared/failure"
)

func TestAuthorize(t *testing.T) {
	owner := &permissions.Actor{ID: "o", Role: permissions.RoleOwner}
	staff := &permissions.Actor{ID: "s", Role: permissions.RoleStaff}
	tourist := &permissions.Actor{ID: "t", Role: permissions.RoleTourist}

	tests := []struct {
		name     string
		actor    *permissions.Actor
		required []permissions.Role
		allowed  bool
	}{
		{name: "unscoped allows tourist", actor: tourist, allowed: true},
		{name: "unscoped allows missing actor", actor: nil, allowed: true},
		{name: "owner satisfies owner", actor: owner, required: []permissions.Role{permissions.RoleOwner}, allowed: true},
		{name: "owner satisfies staff", actor: owner, required: []permissions.Role{permissions.RoleStaff}, allowed: true},
		{name: "owner satisfies tourist", actor: owner, required: []permissions.Role{permissions.RoleTourist}, allowed: true},
		{name: "staff satisfies staff", actor: staff, required: []permissions.Role{permissions.RoleStaff}, allowed: true},
		{name: "staff denied owner", actor: staff, required: []permissions.Role{permissions.RoleOwner}},
		{name: "staff denied tourist only", actor: staff, required: []permissions.Role{permissions.RoleTourist}},
		{name: "tourist satisfies tourist", actor: tourist, required: []permissions.Role{permissions.RoleTourist}, allowed: true},
		{name: "tourist denied staff", actor: tourist, required: []permissions.Role{permissions.RoleStaff}},
		{name: "tourist denied owner", actor: tourist, required: []permissions.Role{permissions.RoleOwner}},
		{name: "missing actor denied", actor: nil, required: []permissions.Role{permissions.RoleTourist}},
		{name: "missing role denied", actor: &permissions.Actor{ID: "x"}, required: []permissions.Role{permissions.RoleTourist}},
		{name: "unknown role denied", actor: &permissions.Actor{ID: "x", Role: "admin"}, required: []permissions.Role{permissions.RoleTourist}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := permissions.Authorize(tt.actor, tt.required...)
			if tt.allowed {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Equal(t, http.StatusForbidden, failure.GetCode(err))
		})
	}
}

func TestParseRole(t *testing.T) {
	role, err := permissions.ParseRole(" Staff ")
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleStaff, role)

	_, err = permissions.ParseRole("pegawai")
	assert.Error(t, err)
}

func TestPermissionTable(t *testing.T) {
	data := permissions.Get()
	require.NotNil(t, data)

	rule, ok := data.FindPermissions("/v1/trips", http.MethodPost)
	require.True(t, ok)
	assert.Equal(t, []permissions.Role{permissions.RoleOwner}, rule.Roles)

	rule, ok = data.FindPermissions("/v1/trips", http.MethodGet)
	require.True(t, ok)
	assert.True(t, rule.Skip)

	rule, ok = data.FindPermissions("/v1/auth/register-owner", http.MethodPost)
	require.True(t, ok)
	assert.True(t, rule.APIKey)

	_, ok = data.FindPermissions("/v1/unknown", http.MethodGet)
	assert.False(t, ok)

	for _, endpoint := range data.Endpoints {
		for _, role := range endpoint.Roles {
			assert.True(t, role.Valid(), "%s %s lists unknown role %q", endpoint.Method, endpoint.Path, role)
		}
	}
}
