// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth

import (
	"slices"

	"github.com/samber/oops"
)

// Role is a user's authorization role.
type Role string

// Known roles. The set is closed; storage rejects anything else.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// RoleSet is the set of roles allowed to perform an operation.
type RoleSet map[Role]struct{}

// Roles builds a RoleSet from the given roles.
func Roles(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// AnyRole allows every known role; use it for routes that only need a login.
func AnyRole() RoleSet {
	return Roles(RoleUser, RoleAdmin)
}

// Contains reports whether r is in the set.
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}

// Sorted returns the roles in the set in a stable order, for logs and errors.
func (s RoleSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, string(r))
	}
	slices.Sort(out)
	return out
}

// Authorize checks that user holds one of the allowed roles. It performs no I/O.
// A nil user means authentication did not run and is reported as such.
func Authorize(user *User, allowed RoleSet) error {
	if user == nil {
		return unauthenticated(ReasonMissingToken, "you are not logged in, please log in to get access")
	}
	if !allowed.Contains(user.Role) {
		return oops.Code(CodeForbidden).
			With("role", string(user.Role)).
			With("allowed", allowed.Sorted()).
			Errorf("you do not have permission to perform this action")
	}
	return nil
}
