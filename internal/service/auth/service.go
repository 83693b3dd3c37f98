package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/expass/internal/email"
	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/internal/repository"
	"github.com/jwalitptl/expass/internal/service/enforcement"
	"github.com/jwalitptl/expass/internal/service/expiration"
	"github.com/jwalitptl/expass/pkg/event"
	"github.com/jwalitptl/expass/pkg/logger"
	"github.com/jwalitptl/expass/pkg/metrics"
	"github.com/jwalitptl/expass/pkg/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrPasswordExpired    = errors.New("password expired")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

const resetTokenExpiry = 1 * time.Hour

type Sessions interface {
	Create(ctx context.Context, userID uuid.UUID) (*model.Session, string, error)
	Validate(ctx context.Context, token string) (*model.Session, error)
	Invalidate(ctx context.Context, sess *model.Session) error
}

type Enforcer interface {
	OnAuthenticated(ctx context.Context, user *model.User, r enforcement.Redirector) (*enforcement.Outcome, error)
}

type ReuseChecker interface {
	Check(ctx context.Context, user *model.User, pass1, pass2 string) error
}

type Timestamps interface {
	Touch(ctx context.Context, userID uuid.UUID) (time.Time, error)
}

// Dependencies groups the collaborators of Service.
type Dependencies struct {
	Users       repository.UserRepository
	Tokens      repository.TokenRepository
	Hasher      security.Hasher
	Sessions    Sessions
	Enforcer    Enforcer
	Reuse       ReuseChecker
	Credentials Timestamps
	Email       email.Service
	Events      event.Emitter
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
	// DefaultRole is assigned to every self-registered account.
	DefaultRole string
}

type Service struct {
	users       repository.UserRepository
	tokens      repository.TokenRepository
	hasher      security.Hasher
	sessions    Sessions
	enforcer    Enforcer
	reuse       ReuseChecker
	credentials Timestamps
	emailSvc    email.Service
	events      event.Emitter
	logger      *logger.Logger
	metrics     *metrics.Metrics
	defaultRole string
	now         func() time.Time
}

func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Events == nil {
		deps.Events = event.Discard{}
	}
	return &Service{
		users:       deps.Users,
		tokens:      deps.Tokens,
		hasher:      deps.Hasher,
		sessions:    deps.Sessions,
		enforcer:    deps.Enforcer,
		reuse:       deps.Reuse,
		credentials: deps.Credentials,
		emailSvc:    deps.Email,
		events:      deps.Events,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		defaultRole: deps.DefaultRole,
		now:         time.Now,
	}
}

// Register creates the account and records its first credential timestamp.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	existing, err := s.users.GetByEmail(ctx, req.Email)
	if err == nil && existing != nil {
		return nil, ErrEmailTaken
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Base:         model.Base{ID: uuid.New()},
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         req.Name,
		PasswordHash: hashed,
	}
	if s.defaultRole != "" {
		user.Roles = pq.StringArray{s.defaultRole}
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// A missing timestamp is backfilled at first login, so this is not fatal.
	if _, err := s.credentials.Touch(ctx, user.ID); err != nil {
		s.logger.WithContext(ctx).Error(err, "failed to record credential timestamp", "user_id", user.ID.String())
	}

	return user, nil
}

// Login verifies credentials, opens a session and runs the expiration gate.
// When the password has expired the redirect has already been issued through
// r, the new session is gone and ErrPasswordExpired is returned.
func (s *Service) Login(ctx context.Context, email, password string, r enforcement.Redirector) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	sess, token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	outcome, err := s.enforcer.OnAuthenticated(ctx, user, r)
	if err != nil {
		if invErr := s.sessions.Invalidate(ctx, sess); invErr != nil {
			s.logger.WithContext(ctx).Error(invErr, "failed to drop session after enforcement error", "user_id", user.ID.String())
		}
		return nil, err
	}
	if outcome.State == enforcement.StateExpiredPendingReset {
		return nil, fmt.Errorf("%w: redirected to %s", ErrPasswordExpired, outcome.Location)
	}

	return &model.TokenResponse{
		AccessToken: token,
		ExpiresAt:   sess.ExpiresAt,
	}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return err
	}
	return s.sessions.Invalidate(ctx, sess)
}

// ValidateSession resolves a session token to its user.
func (s *Service) ValidateSession(ctx context.Context, token string) (*model.Session, *model.User, error) {
	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.Get(ctx, sess.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session user: %w", err)
	}
	return sess, user, nil
}

// ForgotPassword mails a reset link. Unknown addresses are ignored silently.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	token := uuid.New().String()
	if err := s.tokens.StoreResetToken(ctx, user.ID, token, s.now().Add(resetTokenExpiry)); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	if err := s.emailSvc.SendPasswordReset(ctx, user.Email, token); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	return nil
}

// ResetPassword sets a new password from a reset token. The reuse check runs
// before anything is written.
func (s *Service) ResetPassword(ctx context.Context, req *model.ResetPasswordRequest) error {
	if req.Password != req.ConfirmPassword {
		return ErrPasswordMismatch
	}

	userID, err := s.tokens.ValidateResetToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("failed to validate reset token: %w", err)
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", expiration.ErrUserNotFound, userID)
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	if err := s.reuse.Check(ctx, user, req.Password, req.ConfirmPassword); err != nil {
		return err
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hashed); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	log := s.logger.WithContext(ctx)
	setAt, err := s.credentials.Touch(ctx, user.ID)
	if err != nil {
		log.Error(err, "failed to record credential timestamp", "user_id", user.ID.String())
	}
	if err := s.tokens.InvalidateResetToken(ctx, req.Token); err != nil {
		log.Error(err, "failed to invalidate reset token", "user_id", user.ID.String())
	}

	log.Info("password reset", "user_id", user.ID.String())
	if s.metrics != nil {
		s.metrics.PasswordResets.Inc()
	}
	s.events.Emit(ctx, event.PasswordReset, event.PasswordEvent{UserID: user.ID, OccurredAt: setAt})

	return nil
}
