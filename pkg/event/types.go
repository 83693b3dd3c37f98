package event

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	PasswordExpired     EventType = "password.expired"
	PasswordReset       EventType = "password.reset"
	TimestampBackfilled EventType = "password.backfilled"
	PolicyUpdated       EventType = "policy.updated"
)

// PasswordEvent is the payload published for every credential lifecycle change.
type PasswordEvent struct {
	UserID     uuid.UUID  `json:"user_id"`
	OccurredAt time.Time  `json:"occurred_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LimitDays  int        `json:"limit_days,omitempty"`
}
