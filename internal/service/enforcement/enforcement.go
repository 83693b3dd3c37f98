// Package enforcement gates a freshly authenticated login on the password
// expiration verdict.
package enforcement

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/pkg/event"
	"github.com/jwalitptl/expass/pkg/logger"
	"github.com/jwalitptl/expass/pkg/metrics"
)

// Query parameters understood by the recovery page.
const (
	ActionParam   = "action"
	ActionValue   = "lostpassword"
	StatusParam   = "expass"
	StatusExpired = "expired"
)

type State int

const (
	StateAllowed State = iota
	StateExpiredPendingReset
)

func (s State) String() string {
	switch s {
	case StateAllowed:
		return "allowed"
	case StateExpiredPendingReset:
		return "expired_pending_reset"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Redirector issues the redirect and ends the current request. Nothing else
// may be written for the request after Redirect returns.
type Redirector interface {
	Redirect(location string)
}

type SessionInvalidator interface {
	InvalidateAll(ctx context.Context, userID uuid.UUID) error
}

type Backfiller interface {
	Backfill(ctx context.Context, userID uuid.UUID) (bool, error)
}

type Evaluator interface {
	EvaluateUser(ctx context.Context, user *model.User) (*model.ExpirationVerdict, error)
}

type LimitSource interface {
	LimitDays(ctx context.Context) int
}

type Outcome struct {
	State      State
	Backfilled bool
	Location   string
	Verdict    *model.ExpirationVerdict
}

type Machine struct {
	credentials Backfiller
	engine      Evaluator
	sessions    SessionInvalidator
	limits      LimitSource
	loginURL    string
	logger      *logger.Logger
	metrics     *metrics.Metrics
	events      event.Emitter
}

func NewMachine(credentials Backfiller, engine Evaluator, sessions SessionInvalidator, limits LimitSource,
	loginURL string, log *logger.Logger, m *metrics.Metrics, events event.Emitter) *Machine {
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = event.Discard{}
	}
	return &Machine{
		credentials: credentials,
		engine:      engine,
		sessions:    sessions,
		limits:      limits,
		loginURL:    loginURL,
		logger:      log,
		metrics:     m,
		events:      events,
	}
}

// OnAuthenticated runs once per successful login, after the new session has
// been created. Each call starts from scratch; nothing is carried between
// logins.
func (m *Machine) OnAuthenticated(ctx context.Context, user *model.User, r Redirector) (*Outcome, error) {
	log := m.logger.WithContext(ctx)

	// The backfill happens before the verdict even though it guarantees this
	// login is judged not expired.
	backfilled, err := m.credentials.Backfill(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to backfill credential timestamp: %w", err)
	}
	if backfilled {
		log.Info("credential timestamp backfilled", "user_id", user.ID.String(), "reason", model.ReasonNoTimestamp)
		if m.metrics != nil {
			m.metrics.Backfills.Inc()
		}
		m.events.Emit(ctx, event.TimestampBackfilled, event.PasswordEvent{UserID: user.ID})
	}

	verdict, err := m.engine.EvaluateUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate password expiration: %w", err)
	}

	outcome := &Outcome{State: StateAllowed, Backfilled: backfilled, Verdict: verdict}
	if !verdict.IsExpired {
		return outcome, nil
	}

	outcome.State = StateExpiredPendingReset
	if err := m.sessions.InvalidateAll(ctx, user.ID); err != nil {
		log.Error(err, "failed to invalidate sessions", "user_id", user.ID.String())
	}

	outcome.Location = RecoveryLocation(m.loginURL)
	log.Info("password expired, redirecting to recovery",
		"user_id", user.ID.String(), "reason", verdict.Reason, "expires_at", verdict.ExpiresAt)
	if m.metrics != nil {
		m.metrics.EnforcementRedirects.Inc()
	}
	m.events.Emit(ctx, event.PasswordExpired, event.PasswordEvent{
		UserID:    user.ID,
		ExpiresAt: verdict.ExpiresAt,
		LimitDays: m.limits.LimitDays(ctx),
	})

	r.Redirect(outcome.Location)
	return outcome, nil
}

// ExpiredNotice returns the message shown on the recovery page. It only
// applies to the exact marker pair set by RecoveryLocation.
func (m *Machine) ExpiredNotice(ctx context.Context, action, status string) (string, bool) {
	if action != ActionValue || status != StatusExpired {
		return "", false
	}
	return NoticeFor(m.limits.LimitDays(ctx)), true
}

// NoticeFor formats the expired-password notice for a limit.
func NoticeFor(limitDays int) string {
	if limitDays == 1 {
		return "Your password must be reset every day."
	}
	return fmt.Sprintf("Your password must be reset every %d days.", limitDays)
}

// RecoveryLocation appends the expired markers to loginURL, keeping any
// query it already has.
func RecoveryLocation(loginURL string) string {
	u, err := url.Parse(loginURL)
	if err != nil {
		sep := "?"
		if strings.Contains(loginURL, "?") {
			sep = "&"
		}
		return loginURL + sep + ActionParam + "=" + ActionValue + "&" + StatusParam + "=" + StatusExpired
	}

	q := u.Query()
	q.Set(ActionParam, ActionValue)
	q.Set(StatusParam, StatusExpired)
	u.RawQuery = q.Encode()
	return u.String()
}
