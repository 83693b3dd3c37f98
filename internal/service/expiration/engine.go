package expiration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/internal/repository"
	"github.com/jwalitptl/expass/pkg/metrics"
)

// PasswordPolicy is the stable interface to the expiration decision.
type PasswordPolicy interface {
	HasExpirableRole(ctx context.Context, userID uuid.UUID) (bool, error)
	GetExpiration(ctx context.Context, userID uuid.UUID) (*time.Time, error)
	IsExpired(ctx context.Context, userID uuid.UUID) (bool, error)
	Evaluate(ctx context.Context, userID uuid.UUID) (*model.ExpirationVerdict, error)
	EvaluateUser(ctx context.Context, user *model.User) (*model.ExpirationVerdict, error)
}

type PolicySource interface {
	Current(ctx context.Context) model.Policy
}

type TimestampSource interface {
	LastSet(ctx context.Context, userID uuid.UUID) (time.Time, bool, error)
}

type Engine struct {
	users      repository.UserRepository
	policy     PolicySource
	timestamps TimestampSource
	loc        *time.Location
	now        func() time.Time
	metrics    *metrics.Metrics
}

var _ PasswordPolicy = (*Engine)(nil)

// NewEngine builds the engine. loc is where calendar days are counted; now
// defaults to time.Now.
func NewEngine(users repository.UserRepository, policy PolicySource, timestamps TimestampSource,
	loc *time.Location, now func() time.Time, m *metrics.Metrics) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		users:      users,
		policy:     policy,
		timestamps: timestamps,
		loc:        loc,
		now:        now,
		metrics:    m,
	}
}

func (e *Engine) HasExpirableRole(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := e.lookup(ctx, userID)
	if err != nil {
		return false, err
	}
	return HasExpirableRole(user, e.policy.Current(ctx)), nil
}

func (e *Engine) GetExpiration(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	verdict, err := e.Evaluate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return verdict.ExpiresAt, nil
}

func (e *Engine) IsExpired(ctx context.Context, userID uuid.UUID) (bool, error) {
	verdict, err := e.Evaluate(ctx, userID)
	if err != nil {
		return false, err
	}
	return verdict.IsExpired, nil
}

func (e *Engine) Evaluate(ctx context.Context, userID uuid.UUID) (*model.ExpirationVerdict, error) {
	user, err := e.lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.EvaluateUser(ctx, user)
}

// EvaluateUser computes the verdict for an already resolved user.
func (e *Engine) EvaluateUser(ctx context.Context, user *model.User) (*model.ExpirationVerdict, error) {
	if user == nil {
		return nil, ErrUserNotFound
	}

	policy := e.policy.Current(ctx)
	verdict := &model.ExpirationVerdict{UserID: user.ID}

	switch err := CheckRoles(user, policy); {
	case errors.Is(err, ErrNoRoleAssigned):
		verdict.Reason = model.ReasonNoRoleAssigned
		return e.done(verdict), nil
	case err != nil:
		verdict.Reason = model.ReasonRoleNotExpirable
		return e.done(verdict), nil
	}
	verdict.IsExpirable = true

	setAt, ok, err := e.timestamps.LastSet(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate user %s: %w", user.ID, err)
	}
	if !ok {
		verdict.Reason = model.ReasonNoTimestamp
		return e.done(verdict), nil
	}

	expiresAt := ExpiresAt(setAt, policy.LimitDays, e.loc)
	setAt = setAt.In(e.loc)
	verdict.SetAt = &setAt
	verdict.ExpiresAt = &expiresAt
	verdict.IsExpired = Expired(e.now(), expiresAt)
	verdict.Reason = model.ReasonActive
	if verdict.IsExpired {
		verdict.Reason = model.ReasonExpired
	}

	return e.done(verdict), nil
}

func (e *Engine) lookup(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := e.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}
	return user, nil
}

func (e *Engine) done(v *model.ExpirationVerdict) *model.ExpirationVerdict {
	if e.metrics != nil {
		e.metrics.Verdicts.WithLabelValues(v.Reason).Inc()
	}
	return v
}
