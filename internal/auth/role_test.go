// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlance-ai/parlance/internal/auth"
	"github.com/parlance-ai/parlance/pkg/errutil"
)

func TestRole_Valid(t *testing.T) {
	assert.True(t, auth.RoleUser.Valid())
	assert.True(t, auth.RoleAdmin.Valid())
	assert.False(t, auth.Role("root").Valid())
	assert.False(t, auth.Role("").Valid())
}

func TestRoleSet(t *testing.T) {
	set := auth.Roles(auth.RoleAdmin, auth.RoleUser, auth.RoleAdmin)
	assert.Len(t, set, 2)
	assert.True(t, set.Contains(auth.RoleAdmin))
	assert.False(t, set.Contains(auth.Role("root")))
	assert.Equal(t, []string{"admin", "user"}, set.Sorted())
	assert.Equal(t, set, auth.AnyRole())
}

func TestAuthorize(t *testing.T) {
	admin := &auth.User{Role: auth.RoleAdmin}
	user := &auth.User{Role: auth.RoleUser}

	tests := []struct {
		name    string
		user    *auth.User
		allowed auth.RoleSet
		code    string
	}{
		{name: "admin on admin route", user: admin, allowed: auth.Roles(auth.RoleAdmin)},
		{name: "user on any-role route", user: user, allowed: auth.AnyRole()},
		{name: "user on admin route", user: user, allowed: auth.Roles(auth.RoleAdmin), code: auth.CodeForbidden},
		{name: "empty set denies everyone", user: admin, allowed: auth.Roles(), code: auth.CodeForbidden},
		{name: "nil user is unauthenticated", user: nil, allowed: auth.AnyRole(), code: auth.CodeUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.Authorize(tt.user, tt.allowed)
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}

	t.Run("forbidden error carries role context", func(t *testing.T) {
		err := auth.Authorize(user, auth.Roles(auth.RoleAdmin))
		errutil.AssertErrorContext(t, err, "role", "user")
		errutil.AssertErrorContext(t, err, "allowed", []string{"admin"})
	})
}
