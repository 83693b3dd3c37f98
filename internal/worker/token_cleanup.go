package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/expass/internal/repository"
	"github.com/jwalitptl/expass/pkg/logger"
)

// TokenCleanupWorker periodically deletes spent and expired reset tokens.
type TokenCleanupWorker struct {
	repo            repository.TokenRepository
	retention       time.Duration
	cleanupInterval time.Duration
	logger          *logger.Logger
	now             func() time.Time
}

func NewTokenCleanupWorker(repo repository.TokenRepository, retention, cleanupInterval time.Duration, log *logger.Logger) *TokenCleanupWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &TokenCleanupWorker{
		repo:            repo,
		retention:       retention,
		cleanupInterval: cleanupInterval,
		logger:          log,
		now:             time.Now,
	}
}

// Start runs a cleanup every interval until ctx is done.
func (w *TokenCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil {
				w.logger.Error(err, "token cleanup failed")
			}
		}
	}
}

func (w *TokenCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().Add(-w.retention)

	rows, err := w.repo.PurgeResetTokens(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge reset tokens: %w", err)
	}

	w.logger.Info("purged reset tokens", "count", rows, "cutoff", cutoff)
	return rows, nil
}
