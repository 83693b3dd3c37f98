package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/lib/pq"

	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/internal/repository"
)

type policyRepository struct {
	BaseRepository
}

func NewPolicyRepository(base BaseRepository) repository.PolicyRepository {
	return &policyRepository{base}
}

func (r *policyRepository) Get(ctx context.Context) (*model.PolicySettings, error) {
	query := `
		SELECT limit_days, roles, roles IS NOT NULL AS roles_saved, updated_at
		FROM policy_settings WHERE id = 1
	`

	var settings model.PolicySettings
	if err := r.db.GetContext(ctx, &settings, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &model.PolicySettings{}, nil
		}
		return nil, fmt.Errorf("failed to get policy settings: %w", err)
	}

	return &settings, nil
}

// Save stores both fields. A nil limit clears it; roles is always written as
// an explicit (possibly empty) set.
func (r *policyRepository) Save(ctx context.Context, limitDays *int, roles []string) error {
	query := `
		INSERT INTO policy_settings (id, limit_days, roles, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET limit_days = EXCLUDED.limit_days, roles = EXCLUDED.roles, updated_at = NOW()
	`

	var limit sql.NullString
	if limitDays != nil {
		limit = sql.NullString{String: strconv.Itoa(*limitDays), Valid: true}
	}
	if roles == nil {
		roles = []string{}
	}

	if _, err := r.db.ExecContext(ctx, query, limit, pq.StringArray(roles)); err != nil {
		return fmt.Errorf("failed to save policy settings: %w", err)
	}

	return nil
}
