package expiration

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/internal/repository"
	"github.com/jwalitptl/expass/pkg/metrics"
)

type fakeUsers struct {
	repository.UserRepository
	users map[uuid.UUID]*model.User
	err   error
}

func (f *fakeUsers) Get(_ context.Context, id uuid.UUID) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

type staticPolicy model.Policy

func (p staticPolicy) Current(context.Context) model.Policy { return model.Policy(p) }

type fakeTimestamps map[uuid.UUID]time.Time

func (f fakeTimestamps) LastSet(_ context.Context, id uuid.UUID) (time.Time, bool, error) {
	t, ok := f[id]
	return t, ok, nil
}

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newUser(roles ...string) *model.User {
	return &model.User{Base: model.Base{ID: uuid.New()}, Roles: pq.StringArray(roles)}
}

type fixture struct {
	engine     *Engine
	users      *fakeUsers
	timestamps fakeTimestamps
	metrics    *metrics.Metrics
	clock      time.Time
}

func newFixture(policy model.Policy) *fixture {
	f := &fixture{
		users:      &fakeUsers{users: map[uuid.UUID]*model.User{}},
		timestamps: fakeTimestamps{},
		metrics:    metrics.NewMetrics("test", prometheus.NewRegistry()),
		clock:      now,
	}
	f.engine = NewEngine(f.users, staticPolicy(policy), f.timestamps, time.UTC,
		func() time.Time { return f.clock }, f.metrics)
	return f
}

func (f *fixture) add(u *model.User, setAt *time.Time) *model.User {
	f.users.users[u.ID] = u
	if setAt != nil {
		f.timestamps[u.ID] = *setAt
	}
	return u
}

func ptr(t time.Time) *time.Time { return &t }

func TestCheckRoles(t *testing.T) {
	policy := model.Policy{LimitDays: 30, Roles: []string{"editor"}}

	assert.ErrorIs(t, CheckRoles(newUser(), policy), ErrNoRoleAssigned)
	assert.ErrorIs(t, CheckRoles(newUser(""), policy), ErrNoRoleAssigned)
	assert.ErrorIs(t, CheckRoles(nil, policy), ErrNoRoleAssigned)
	assert.ErrorIs(t, CheckRoles(newUser("subscriber"), policy), ErrRoleNotExpirable)
	assert.NoError(t, CheckRoles(newUser("subscriber", "editor"), policy))
}

func TestHasExpirableRole_EmptyPolicyRoles(t *testing.T) {
	policy := model.Policy{LimitDays: 30, Roles: []string{}}
	for _, role := range []string{"administrator", "editor", "subscriber"} {
		assert.False(t, HasExpirableRole(newUser(role), policy), role)
	}
}

func TestExpiresAt_CalendarDays(t *testing.T) {
	setAt := time.Date(2024, 1, 31, 8, 30, 0, 0, time.UTC)
	for _, limit := range []int{1, 30, 90, 365} {
		assert.Equal(t, setAt.AddDate(0, 0, limit), ExpiresAt(setAt, limit, time.UTC))
	}
	assert.Equal(t, time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC), ExpiresAt(setAt, 30, nil))
}

func TestExpiresAt_AcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// DST starts 2024-03-10; one calendar day later is 23 hours of wall time.
	setAt := time.Date(2024, 3, 9, 12, 0, 0, 0, loc)
	got := ExpiresAt(setAt, 1, loc)

	assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, loc), got)
	assert.Equal(t, 23*time.Hour, got.Sub(setAt))
}

func TestExpired_StrictBoundary(t *testing.T) {
	expiresAt := now
	assert.False(t, Expired(expiresAt, expiresAt))
	assert.True(t, Expired(expiresAt.Add(time.Second), expiresAt))
	assert.False(t, Expired(expiresAt.Add(-time.Second), expiresAt))
}

func TestEngine_UnknownUser(t *testing.T) {
	f := newFixture(model.Policy{LimitDays: 30, Roles: []string{"editor"}})
	id := uuid.New()

	_, err := f.engine.IsExpired(context.Background(), id)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = f.engine.GetExpiration(context.Background(), id)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = f.engine.HasExpirableRole(context.Background(), id)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestEngine_DirectoryError(t *testing.T) {
	f := newFixture(model.Policy{LimitDays: 30, Roles: []string{"editor"}})
	f.users.err = errors.New("db down")

	_, err := f.engine.Evaluate(context.Background(), uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestEngine_NonExpirableNeverExpires(t *testing.T) {
	f := newFixture(model.Policy{LimitDays: 30, Roles: []string{"editor"}})
	ancient := ptr(now.AddDate(-5, 0, 0))
	noRoles := f.add(newUser(), ancient)
	subscriber := f.add(newUser("subscriber"), ancient)
	ctx := context.Background()

	v, err := f.engine.Evaluate(ctx, noRoles.ID)
	require.NoError(t, err)
	assert.False(t, v.IsExpirable)
	assert.False(t, v.IsExpired)
	assert.Nil(t, v.ExpiresAt)
	assert.Equal(t, model.ReasonNoRoleAssigned, v.Reason)

	v, err = f.engine.Evaluate(ctx, subscriber.ID)
	require.NoError(t, err)
	assert.False(t, v.IsExpired)
	assert.Equal(t, model.ReasonRoleNotExpirable, v.Reason)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verdicts.WithLabelValues(model.ReasonNoRoleAssigned)))
}

func TestEngine_NoTimestamp(t *testing.T) {
	f := newFixture(model.Policy{LimitDays: 30, Roles: []string{"editor"}})
	u := f.add(newUser("editor"), nil)
	ctx := context.Background()

	expiresAt, err := f.engine.GetExpiration(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, expiresAt)

	expired, err := f.engine.IsExpired(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, expired)

	v, err := f.engine.Evaluate(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, v.IsExpirable)
	assert.Equal(t, model.ReasonNoTimestamp, v.Reason)
}

func TestEngine_GetExpirationAddsLimitDays(t *testing.T) {
	for _, limit := range []int{1, 7, 30, 90, 365} {
		f := newFixture(model.Policy{LimitDays: limit, Roles: []string{"editor"}})
		setAt := now.AddDate(0, -1, 0)
		u := f.add(newUser("editor"), &setAt)

		got, err := f.engine.GetExpiration(context.Background(), u.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, setAt.AddDate(0, 0, limit), *got)
	}
}

func TestEngine_ExactlyAtExpiry(t *testing.T) {
	f := newFixture(model.Policy{LimitDays: 30, Roles: []string{"editor"}})
	setAt := now.AddDate(0, 0, -30)
	u := f.add(newUser("editor"), &setAt)
	ctx := context.Background()

	expired, err := f.engine.IsExpired(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, expired)

	f.clock = now.Add(time.Second)
	expired, err = f.engine.IsExpired(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestEngine_Scenarios(t *testing.T) {
	policy := model.Policy{LimitDays: 30, Roles: []string{"editor"}}

	t.Run("31 days old is expired", func(t *testing.T) {
		f := newFixture(policy)
		u := f.add(newUser("editor"), ptr(now.AddDate(0, 0, -31)))

		v, err := f.engine.Evaluate(context.Background(), u.ID)
		require.NoError(t, err)
		assert.True(t, v.IsExpired)
		assert.Equal(t, model.ReasonExpired, v.Reason)
	})

	t.Run("29 days old is active", func(t *testing.T) {
		f := newFixture(policy)
		u := f.add(newUser("editor"), ptr(now.AddDate(0, 0, -29)))

		v, err := f.engine.Evaluate(context.Background(), u.ID)
		require.NoError(t, err)
		assert.False(t, v.IsExpired)
		assert.Equal(t, model.ReasonActive, v.Reason)
	})

	t.Run("explicit empty role set", func(t *testing.T) {
		f := newFixture(model.Policy{LimitDays: 30, Roles: []string{}})
		u := f.add(newUser("editor", "administrator"), ptr(now.AddDate(-1, 0, 0)))

		v, err := f.engine.Evaluate(context.Background(), u.ID)
		require.NoError(t, err)
		assert.False(t, v.IsExpirable)
		assert.False(t, v.IsExpired)
	})
}

func TestEngine_HasExpirableRole(t *testing.T) {
	f := newFixture(model.Policy{LimitDays: 30, Roles: []string{"author"}})
	author := f.add(newUser("author"), nil)
	editor := f.add(newUser("editor"), nil)
	ctx := context.Background()

	ok, err := f.engine.HasExpirableRole(ctx, author.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.engine.HasExpirableRole(ctx, editor.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
