package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/expass/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// All repository interfaces in one file
type (
	// UserRepository is the user directory. Get reports ErrNotFound for an
	// unknown id; a user with no roles is returned normally.
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
		List(ctx context.Context, filter *model.UserFilter) ([]*model.User, error)
	}

	RoleRepository interface {
		ListEditable(ctx context.Context) ([]*model.Role, error)
	}

	// CredentialRepository stores one "password last set" timestamp per user.
	CredentialRepository interface {
		Get(ctx context.Context, userID uuid.UUID) (time.Time, bool, error)
		Set(ctx context.Context, userID uuid.UUID, setAt time.Time) error
	}

	// PolicyRepository persists the single policy settings object. Get
	// returns a zero PolicySettings when nothing was ever saved.
	PolicyRepository interface {
		Get(ctx context.Context) (*model.PolicySettings, error)
		Save(ctx context.Context, limitDays *int, roles []string) error
	}

	TokenRepository interface {
		StoreResetToken(ctx context.Context, userID uuid.UUID, token string, expiry time.Time) error
		ValidateResetToken(ctx context.Context, token string) (uuid.UUID, error)
		InvalidateResetToken(ctx context.Context, token string) error
		// PurgeResetTokens deletes reset tokens that expired or were used
		// before the cutoff and reports how many were removed.
		PurgeResetTokens(ctx context.Context, before time.Time) (int64, error)
	}
)
