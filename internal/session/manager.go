// Package session keeps the registry of live login sessions in redis. Each
// session is a key holding its user id, and each user has a set of session
// ids so that all of a user's sessions can be dropped at once.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/pkg/auth"
	"github.com/jwalitptl/expass/pkg/metrics"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	sessionPrefix     = "expass:session:"
	userSessionPrefix = "expass:user_sessions:"
)

type Manager struct {
	client  *redis.Client
	tokens  auth.JWTService
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

func NewManager(client *redis.Client, tokens auth.JWTService, ttl time.Duration, m *metrics.Metrics) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{client: client, tokens: tokens, ttl: ttl, now: time.Now, metrics: m}
}

func sessionKey(id uuid.UUID) string      { return sessionPrefix + id.String() }
func userSessionsKey(id uuid.UUID) string { return userSessionPrefix + id.String() }

// Create registers a new session for userID and returns it with its signed
// token.
func (m *Manager) Create(ctx context.Context, userID uuid.UUID) (*model.Session, string, error) {
	sess := &model.Session{
		ID:        uuid.New(),
		UserID:    userID,
		ExpiresAt: m.now().Add(m.ttl),
	}

	start := time.Now()
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sess.ID), userID.String(), m.ttl)
		pipe.SAdd(ctx, userSessionsKey(userID), sess.ID.String())
		pipe.Expire(ctx, userSessionsKey(userID), m.ttl)
		return nil
	})
	m.observe("session_create", start, err)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store session: %w", err)
	}

	token, err := m.tokens.GenerateToken(userID, sess.ID, sess.ExpiresAt)
	if err != nil {
		return nil, "", err
	}
	return sess, token, nil
}

// Validate resolves a token to a live session.
func (m *Manager) Validate(ctx context.Context, token string) (*model.Session, error) {
	claims, err := m.tokens.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	sessionID, err := claims.SessionID()
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, auth.ErrInvalidToken
	}

	start := time.Now()
	stored, err := m.client.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		m.observe("session_get", start, nil)
		return nil, ErrSessionNotFound
	}
	m.observe("session_get", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if stored != userID.String() {
		return nil, ErrSessionNotFound
	}

	sess := &model.Session{ID: sessionID, UserID: userID}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

// Invalidate drops a single session.
func (m *Manager) Invalidate(ctx context.Context, sess *model.Session) error {
	start := time.Now()
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(sess.ID))
		pipe.SRem(ctx, userSessionsKey(sess.UserID), sess.ID.String())
		return nil
	})
	m.observe("session_delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// InvalidateAll drops every session of userID, including one created
// moments ago by the current request.
func (m *Manager) InvalidateAll(ctx context.Context, userID uuid.UUID) error {
	start := time.Now()
	ids, err := m.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		m.observe("session_invalidate_all", start, err)
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionPrefix+id)
	}
	keys = append(keys, userSessionsKey(userID))

	err = m.client.Del(ctx, keys...).Err()
	m.observe("session_invalidate_all", start, err)
	if err != nil {
		return fmt.Errorf("failed to invalidate sessions: %w", err)
	}
	return nil
}

func (m *Manager) observe(op string, start time.Time, err error) {
	if m.metrics != nil {
		m.metrics.ObserveRedis(op, time.Since(start).Seconds(), err)
	}
}
