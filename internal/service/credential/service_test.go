package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	data   map[uuid.UUID]time.Time
	sets   int
	getErr error
}

func newMemRepo() *memRepo { return &memRepo{data: map[uuid.UUID]time.Time{}} }

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (time.Time, bool, error) {
	if m.getErr != nil {
		return time.Time{}, false, m.getErr
	}
	t, ok := m.data[id]
	return t, ok, nil
}

func (m *memRepo) Set(_ context.Context, id uuid.UUID, t time.Time) error {
	m.sets++
	m.data[id] = t
	return nil
}

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func TestTouch(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, func() time.Time { return fixedNow })
	id := uuid.New()

	got, err := svc.Touch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, got)
	assert.Equal(t, fixedNow, repo.data[id])
}

func TestBackfill_WritesOnlyWhenMissing(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, func() time.Time { return fixedNow })
	ctx := context.Background()
	id := uuid.New()

	wrote, err := svc.Backfill(ctx, id)
	require.NoError(t, err)
	assert.True(t, wrote)

	earlier := fixedNow.AddDate(0, 0, -10)
	repo.data[id] = earlier

	wrote, err = svc.Backfill(ctx, id)
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Equal(t, earlier, repo.data[id])
	assert.Equal(t, 1, repo.sets)
}

func TestBackfill_ReadError(t *testing.T) {
	repo := newMemRepo()
	repo.getErr = errors.New("db down")
	svc := NewService(repo, nil)

	_, err := svc.Backfill(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.Zero(t, repo.sets)
}
