package postgres

import (
	"context"
	"fmt"

	"github.com/jwalitptl/expass/internal/model"
	"github.com/jwalitptl/expass/internal/repository"
)

type roleRepository struct {
	BaseRepository
}

func NewRoleRepository(base BaseRepository) repository.RoleRepository {
	return &roleRepository{base}
}

func (r *roleRepository) ListEditable(ctx context.Context) ([]*model.Role, error) {
	query := `SELECT name, display_name, editable FROM roles WHERE editable ORDER BY position, name`

	var roles []*model.Role
	if err := r.db.SelectContext(ctx, &roles, query); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	return roles, nil
}
