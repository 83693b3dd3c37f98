package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/internal/repository"
	"github.com/jwalitptl/expass/internal/service/expiration"
)

type Evaluator interface {
	EvaluateUser(ctx context.Context, user *model.User) (*model.ExpirationVerdict, error)
}

type Service struct {
	repo   repository.UserRepository
	engine Evaluator
}

func NewService(repo repository.UserRepository, engine Evaluator) *Service {
	return &Service{repo: repo, engine: engine}
}

func (s *Service) PasswordStatus(ctx context.Context, id uuid.UUID) (*model.PasswordStatus, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", expiration.ErrUserNotFound, id)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	verdict, err := s.engine.EvaluateUser(ctx, user)
	if err != nil {
		return nil, err
	}
	return &model.PasswordStatus{User: user, Verdict: verdict}, nil
}

// ListPasswordStatus evaluates one page of users.
func (s *Service) ListPasswordStatus(ctx context.Context, filter *model.UserFilter) ([]*model.PasswordStatus, error) {
	users, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	statuses := make([]*model.PasswordStatus, 0, len(users))
	for _, u := range users {
		verdict, err := s.engine.EvaluateUser(ctx, u)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, &model.PasswordStatus{User: u, Verdict: verdict})
	}
	return statuses, nil
}
