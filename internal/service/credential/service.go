// Package credential owns the "password last set" timestamp for each user.
package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/expass/internal/repository"
)

type Service struct {
	repo repository.CredentialRepository
	now  func() time.Time
}

// NewService wraps repo. now defaults to time.Now.
func NewService(repo repository.CredentialRepository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

func (s *Service) LastSet(ctx context.Context, userID uuid.UUID) (time.Time, bool, error) {
	setAt, ok, err := s.repo.Get(ctx, userID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read credential timestamp: %w", err)
	}
	return setAt, ok, nil
}

// Touch records that the user's password was set now and returns that time.
func (s *Service) Touch(ctx context.Context, userID uuid.UUID) (time.Time, error) {
	now := s.now()
	if err := s.repo.Set(ctx, userID, now); err != nil {
		return time.Time{}, fmt.Errorf("failed to record credential timestamp: %w", err)
	}
	return now, nil
}

// Backfill writes a timestamp only when none exists. It reports whether a
// write happened.
func (s *Service) Backfill(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, ok, err := s.LastSet(ctx, userID)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if _, err := s.Touch(ctx, userID); err != nil {
		return false, err
	}
	return true, nil
}
