package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clonebot/internal/models"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
	"github.com/noah-isme/clonebot/pkg/storage"
)

func newFileStore(t *testing.T) storage.Store {
	store, err := storage.NewJSONFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFileRepositoryAppendAndReplace(t *testing.T) {
	repo := NewFileRepository(newFileStore(t))
	ctx := context.Background()

	files, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, repo.Append(ctx, models.FileRecord{ID: "1", Filename: "Iron Man"}))
	require.NoError(t, repo.Append(ctx, models.FileRecord{ID: "2", Filename: "Thor"}))
	files, err = repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "Thor", files[1].Filename)

	require.NoError(t, repo.ReplaceAll(ctx, []models.FileRecord{{ID: "3", Filename: "Hulk"}}))
	files, err = repo.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.FileRecord{{ID: "3", Filename: "Hulk"}}, files)
}

func TestSettingsRepositoryMissingIsNotFound(t *testing.T) {
	repo := NewSettingsRepository(newFileStore(t))
	ctx := context.Background()

	_, err := repo.Get(ctx)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	require.NoError(t, repo.Save(ctx, models.AccessPolicy{DeleteTimer: "10m", RequiredChannels: []string{"a"}}))
	policy, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10m", policy.DeleteTimer)
	assert.Equal(t, []string{"a"}, policy.RequiredChannels)
}

func TestBotRepositoryRoundTrip(t *testing.T) {
	repo := NewBotRepository(newFileStore(t))
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, models.ClonedBot{ID: "a", Username: "one_bot", Usage: models.UsageSearchBot}))
	require.NoError(t, repo.Append(ctx, models.ClonedBot{ID: "b", Username: "two_bot", Usage: models.UsageFileStore}))
	bots, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 2)

	require.NoError(t, repo.ReplaceAll(ctx, bots[1:]))
	bots, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.Equal(t, "two_bot", bots[0].Username)
}

func TestUserRepositoryAppend(t *testing.T) {
	repo := NewUserRepository(newFileStore(t))
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, models.BotUser{ID: 5, Username: "neo"}))
	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(5), users[0].ID)
}
