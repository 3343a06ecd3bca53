package apm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apmDomain "brokle/internal/core/domain/apm"
)

func TestDeployRepository_CreateListLatest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDeployRepository(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	first := &apmDomain.Deploy{ProjectID: "proj-1", GitSHA: "aaa111", Timestamp: now.Add(-time.Hour)}
	second := &apmDomain.Deploy{ProjectID: "proj-1", GitSHA: "bbb222", Timestamp: now}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	assert.False(t, first.ID.IsZero())

	list, err := repo.List(ctx, "proj-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bbb222", list[0].GitSHA, "list is ordered newest first")

	latest, err := repo.Latest(ctx, "proj-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "bbb222", latest.GitSHA)

	none, err := repo.Latest(ctx, "proj-unknown")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDeployRepository_DeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDeployRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, &apmDomain.Deploy{ProjectID: "proj-1", GitSHA: "old", Timestamp: now.Add(-100 * 24 * time.Hour)}))
	require.NoError(t, repo.Create(ctx, &apmDomain.Deploy{ProjectID: "proj-1", GitSHA: "recent", Timestamp: now}))

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-apmDomain.DeployRetention))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	list, err := repo.List(ctx, "proj-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "recent", list[0].GitSHA)
}
