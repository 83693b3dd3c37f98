package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PolicySettings is the persisted policy object exactly as stored. Limit is
// kept as text because it comes from an admin form and may hold garbage.
// RolesSaved distinguishes "never saved" from "saved as empty".
type PolicySettings struct {
	Limit      sql.NullString `db:"limit_days"`
	Roles      pq.StringArray `db:"roles"`
	RolesSaved bool           `db:"roles_saved"`
	UpdatedAt  *time.Time     `db:"updated_at"`
}

// Policy is the resolved policy in effect.
type Policy struct {
	LimitDays int      `json:"limit_days"`
	Roles     []string `json:"roles"`
}

// Covers reports whether role is an expirable role under p.
func (p Policy) Covers(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// UpdatePolicyRequest is the admin settings update. Roles must be present;
// an empty list is a valid explicit choice meaning nobody expires.
type UpdatePolicyRequest struct {
	LimitDays *int     `json:"limit_days" binding:"omitempty,min=1,max=365"`
	Roles     []string `json:"roles" binding:"required,dive,rolename"`
}

// PolicyView is what the admin API returns.
type PolicyView struct {
	Policy
	DefaultLimitDays int        `json:"default_limit_days"`
	RolesSaved       bool       `json:"roles_saved"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// Verdict reasons
const (
	ReasonNoRoleAssigned   = "no_role_assigned"
	ReasonRoleNotExpirable = "role_not_expirable"
	ReasonNoTimestamp      = "no_timestamp"
	ReasonActive           = "active"
	ReasonExpired          = "expired"
)

// ExpirationVerdict is derived on every query and never persisted.
type ExpirationVerdict struct {
	UserID      uuid.UUID  `json:"user_id"`
	IsExpirable bool       `json:"is_expirable"`
	SetAt       *time.Time `json:"set_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsExpired   bool       `json:"is_expired"`
	Reason      string     `json:"reason"`
}

// PasswordStatus is one row of the admin password status listing.
type PasswordStatus struct {
	User    *User              `json:"user"`
	Verdict *ExpirationVerdict `json:"verdict"`
}
