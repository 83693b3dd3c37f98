package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/internal/repository"
	"github.com/jwalitptl/expass/internal/service/credential"
	"github.com/jwalitptl/expass/internal/service/enforcement"
	"github.com/jwalitptl/expass/internal/service/expiration"
	"github.com/jwalitptl/expass/internal/service/reuse"
	"github.com/jwalitptl/expass/pkg/security"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type memUsers struct {
	byID map[uuid.UUID]*model.User
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.byID[u.ID] = u
	return nil
}

func (m *memUsers) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUsers) List(context.Context, *model.UserFilter) ([]*model.User, error) {
	return nil, nil
}

type memTokens struct {
	tokens map[string]uuid.UUID
}

func (m *memTokens) StoreResetToken(_ context.Context, id uuid.UUID, token string, _ time.Time) error {
	m.tokens[token] = id
	return nil
}

func (m *memTokens) ValidateResetToken(_ context.Context, token string) (uuid.UUID, error) {
	id, ok := m.tokens[token]
	if !ok {
		return uuid.Nil, repository.ErrNotFound
	}
	return id, nil
}

func (m *memTokens) InvalidateResetToken(_ context.Context, token string) error {
	delete(m.tokens, token)
	return nil
}

func (m *memTokens) PurgeResetTokens(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type memCredentials map[uuid.UUID]time.Time

func (m memCredentials) Get(_ context.Context, id uuid.UUID) (time.Time, bool, error) {
	t, ok := m[id]
	return t, ok, nil
}

func (m memCredentials) Set(_ context.Context, id uuid.UUID, t time.Time) error {
	m[id] = t
	return nil
}

type memSessions struct {
	live map[string]*model.Session
}

func (m *memSessions) Create(_ context.Context, userID uuid.UUID) (*model.Session, string, error) {
	s := &model.Session{ID: uuid.New(), UserID: userID, ExpiresAt: now.Add(time.Hour)}
	token := s.ID.String()
	m.live[token] = s
	return s, token, nil
}

func (m *memSessions) Validate(_ context.Context, token string) (*model.Session, error) {
	if s, ok := m.live[token]; ok {
		return s, nil
	}
	return nil, errors.New("session not found")
}

func (m *memSessions) Invalidate(_ context.Context, s *model.Session) error {
	delete(m.live, s.ID.String())
	return nil
}

func (m *memSessions) InvalidateAll(_ context.Context, userID uuid.UUID) error {
	for k, s := range m.live {
		if s.UserID == userID {
			delete(m.live, k)
		}
	}
	return nil
}

// stubEnforcer redirects every login when expired is set.
type stubEnforcer struct {
	expired  bool
	sessions *memSessions
}

func (s *stubEnforcer) OnAuthenticated(ctx context.Context, u *model.User, r enforcement.Redirector) (*enforcement.Outcome, error) {
	if !s.expired {
		return &enforcement.Outcome{State: enforcement.StateAllowed}, nil
	}
	_ = s.sessions.InvalidateAll(ctx, u.ID)
	loc := enforcement.RecoveryLocation("/login")
	r.Redirect(loc)
	return &enforcement.Outcome{State: enforcement.StateExpiredPendingReset, Location: loc}, nil
}

type recordingRedirector struct{ locations []string }

func (r *recordingRedirector) Redirect(l string) { r.locations = append(r.locations, l) }

type recordingMailer struct {
	to, token string
}

func (r *recordingMailer) SendPasswordReset(_ context.Context, to, token string) error {
	r.to, r.token = to, token
	return nil
}

type policy model.Policy

func (p policy) Current(context.Context) model.Policy { return model.Policy(p) }

type fixture struct {
	svc         *Service
	users       *memUsers
	tokens      *memTokens
	credentials memCredentials
	sessions    *memSessions
	enforcer    *stubEnforcer
	mailer      *recordingMailer
	hasher      security.Hasher
	clock       time.Time
}

func newFixture() *fixture {
	f := &fixture{
		users:       &memUsers{byID: map[uuid.UUID]*model.User{}},
		tokens:      &memTokens{tokens: map[string]uuid.UUID{}},
		credentials: memCredentials{},
		sessions:    &memSessions{live: map[string]*model.Session{}},
		mailer:      &recordingMailer{},
		hasher:      security.NewBcryptHasher(4),
		clock:       now,
	}
	f.enforcer = &stubEnforcer{sessions: f.sessions}
	creds := credential.NewService(f.credentials, func() time.Time { return f.clock })
	guard := reuse.NewGuard(policy(model.Policy{LimitDays: 30, Roles: []string{"editor"}}), f.hasher, nil, nil)

	f.svc = NewService(Dependencies{
		Users:       f.users,
		Tokens:      f.tokens,
		Hasher:      f.hasher,
		Sessions:    f.sessions,
		Enforcer:    f.enforcer,
		Reuse:       guard,
		Credentials: creds,
		Email:       f.mailer,
		DefaultRole: "editor",
	})
	return f
}

func (f *fixture) register(t *testing.T, email, password string) *model.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), &model.RegisterRequest{
		Email: email, Password: password, Name: "Test",
	})
	require.NoError(t, err)
	return u
}

func TestRegister_RecordsTimestamp(t *testing.T) {
	f := newFixture()
	u := f.register(t, "Ed@Example.com", "password-1")

	assert.Equal(t, "ed@example.com", u.Email)
	assert.Equal(t, pq.StringArray{"editor"}, u.Roles)
	assert.Equal(t, now, f.credentials[u.ID])
	assert.True(t, f.hasher.Verify("password-1", u.PasswordHash))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture()
	f.register(t, "ed@example.com", "password-1")

	_, err := f.svc.Register(context.Background(), &model.RegisterRequest{
		Email: "ED@example.com", Password: "password-2", Name: "Other",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	f := newFixture()
	f.register(t, "ed@example.com", "password-1")
	r := &recordingRedirector{}

	resp, err := f.svc.Login(context.Background(), "ed@example.com", "password-1", r)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Len(t, f.sessions.live, 1)
	assert.Empty(t, r.locations)

	_, err = f.svc.Login(context.Background(), "ed@example.com", "wrong-password", r)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), "nobody@example.com", "password-1", r)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_Expired(t *testing.T) {
	f := newFixture()
	f.register(t, "ed@example.com", "password-1")
	f.enforcer.expired = true
	r := &recordingRedirector{}

	resp, err := f.svc.Login(context.Background(), "ed@example.com", "password-1", r)
	assert.ErrorIs(t, err, ErrPasswordExpired)
	assert.Nil(t, resp)
	assert.Empty(t, f.sessions.live)
	assert.Equal(t, []string{"/login?action=lostpassword&expass=expired"}, r.locations)
}

func TestLogoutAndValidateSession(t *testing.T) {
	f := newFixture()
	u := f.register(t, "ed@example.com", "password-1")
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, "ed@example.com", "password-1", &recordingRedirector{})
	require.NoError(t, err)

	_, got, err := f.svc.ValidateSession(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	require.NoError(t, f.svc.Logout(ctx, resp.AccessToken))
	_, _, err = f.svc.ValidateSession(ctx, resp.AccessToken)
	assert.Error(t, err)
}

func TestForgotPassword(t *testing.T) {
	f := newFixture()
	u := f.register(t, "ed@example.com", "password-1")

	require.NoError(t, f.svc.ForgotPassword(context.Background(), "ed@example.com"))
	assert.Equal(t, "ed@example.com", f.mailer.to)
	assert.Equal(t, u.ID, f.tokens.tokens[f.mailer.token])

	f.mailer.to = ""
	require.NoError(t, f.svc.ForgotPassword(context.Background(), "nobody@example.com"))
	assert.Empty(t, f.mailer.to)
}

func TestResetPassword_ReuseThenSuccess(t *testing.T) {
	f := newFixture()
	u := f.register(t, "ed@example.com", "password-1")
	ctx := context.Background()
	require.NoError(t, f.svc.ForgotPassword(ctx, u.Email))
	token := f.mailer.token

	f.clock = now.AddDate(0, 0, 40)

	err := f.svc.ResetPassword(ctx, &model.ResetPasswordRequest{
		Token: token, Password: "password-1", ConfirmPassword: "password-1",
	})
	assert.ErrorIs(t, err, reuse.ErrReuseRejected)
	assert.Equal(t, now, f.credentials[u.ID])
	assert.True(t, f.hasher.Verify("password-1", f.users.byID[u.ID].PasswordHash))

	err = f.svc.ResetPassword(ctx, &model.ResetPasswordRequest{
		Token: token, Password: "password-2", ConfirmPassword: "password-2",
	})
	require.NoError(t, err)
	assert.Equal(t, f.clock, f.credentials[u.ID])
	assert.True(t, f.hasher.Verify("password-2", f.users.byID[u.ID].PasswordHash))
	assert.NotContains(t, f.tokens.tokens, token)
}

func TestResetPassword_NonExpirableMayReuse(t *testing.T) {
	f := newFixture()
	u := f.register(t, "sub@example.com", "password-1")
	f.users.byID[u.ID].Roles = pq.StringArray{"subscriber"}
	ctx := context.Background()
	require.NoError(t, f.svc.ForgotPassword(ctx, u.Email))

	err := f.svc.ResetPassword(ctx, &model.ResetPasswordRequest{
		Token: f.mailer.token, Password: "password-1", ConfirmPassword: "password-1",
	})
	assert.NoError(t, err)
}

func TestResetPassword_Errors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	err := f.svc.ResetPassword(ctx, &model.ResetPasswordRequest{
		Token: "x", Password: "password-1", ConfirmPassword: "password-2",
	})
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	err = f.svc.ResetPassword(ctx, &model.ResetPasswordRequest{
		Token: "unknown", Password: "password-1", ConfirmPassword: "password-1",
	})
	assert.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestResetPassword_AccountRemovedAfterRequest(t *testing.T) {
	f := newFixture()
	u := f.register(t, "gone@example.com", "password-1")
	ctx := context.Background()
	require.NoError(t, f.svc.ForgotPassword(ctx, u.Email))
	delete(f.users.byID, u.ID)

	err := f.svc.ResetPassword(ctx, &model.ResetPasswordRequest{
		Token: f.mailer.token, Password: "password-2", ConfirmPassword: "password-2",
	})
	assert.ErrorIs(t, err, expiration.ErrUserNotFound)
	assert.Contains(t, f.tokens.tokens, f.mailer.token)
}
