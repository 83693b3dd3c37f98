// Package expiration decides whether a user's password has outlived the
// policy limit. Everything here is read-only and safe for concurrent use;
// verdicts are recomputed on every call.
package expiration

import (
	"errors"
	"time"

	"github.com/jwalitptl/expass/internal/model"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrNoRoleAssigned   = errors.New("user has no role assigned")
	ErrRoleNotExpirable = errors.New("none of the user's roles is expirable")
)

// CheckRoles explains why a user is or is not subject to the policy. It
// returns nil when at least one of the user's roles is in the policy set.
// A role-less user is never expirable.
func CheckRoles(user *model.User, policy model.Policy) error {
	if user == nil || !user.HasRoles() {
		return ErrNoRoleAssigned
	}
	for _, role := range user.Roles {
		if role != "" && policy.Covers(role) {
			return nil
		}
	}
	return ErrRoleNotExpirable
}

func HasExpirableRole(user *model.User, policy model.Policy) bool {
	return CheckRoles(user, policy) == nil
}

// ExpiresAt adds limitDays calendar days to setAt in loc, so a DST change
// inside the window does not shift the wall-clock expiry time.
func ExpiresAt(setAt time.Time, limitDays int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return setAt.In(loc).AddDate(0, 0, limitDays)
}

// Expired reports whether now is strictly after expiresAt. A password is
// still valid at exactly its expiry instant.
func Expired(now, expiresAt time.Time) bool {
	return now.After(expiresAt)
}
