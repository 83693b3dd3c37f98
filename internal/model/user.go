package model

import (
	"github.com/lib/pq"
)

// User is the account the policy evaluates. Roles keeps the order in which
// they were assigned.
type User struct {
	Base
	Email        string         `json:"email" db:"email"`
	Name         string         `json:"name" db:"name"`
	PasswordHash string         `json:"-" db:"password_hash"`
	Roles        pq.StringArray `json:"roles" db:"roles"`
}

// HasRoles reports whether the account has at least one non-empty role.
func (u *User) HasRoles() bool {
	for _, r := range u.Roles {
		if r != "" {
			return true
		}
	}
	return false
}

// UserFilter represents user search parameters
type UserFilter struct {
	Pagination
	Role string `json:"role" form:"role"`
}

// Role is a role known to the directory.
type Role struct {
	Name        string `json:"name" db:"name"`
	DisplayName string `json:"display_name" db:"display_name"`
	Editable    bool   `json:"editable" db:"editable"`
}
