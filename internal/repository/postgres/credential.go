package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/expass/internal/repository"
)

type credentialRepository struct {
	BaseRepository
}

func NewCredentialRepository(base BaseRepository) repository.CredentialRepository {
	return &credentialRepository{base}
}

func (r *credentialRepository) Get(ctx context.Context, userID uuid.UUID) (time.Time, bool, error) {
	query := `SELECT set_at FROM credential_timestamps WHERE user_id = $1`

	var setAt time.Time
	if err := r.db.GetContext(ctx, &setAt, query, userID); err != nil {
		if errors.Is(notFound(err), repository.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get credential timestamp: %w", err)
	}

	return setAt, true, nil
}

// Set overwrites the timestamp; last writer wins.
func (r *credentialRepository) Set(ctx context.Context, userID uuid.UUID, setAt time.Time) error {
	query := `
		INSERT INTO credential_timestamps (user_id, set_at, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET set_at = EXCLUDED.set_at, updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, userID, setAt.UTC()); err != nil {
		return fmt.Errorf("failed to set credential timestamp: %w", err)
	}

	return nil
}
