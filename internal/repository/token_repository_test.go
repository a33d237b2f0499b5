package repository

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clonebot/internal/models"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
)

func TestMemoryTokenRepositorySingleUse(t *testing.T) {
	repo := NewMemoryTokenRepository(10, 0)
	ctx := context.Background()

	stored, err := repo.Put(ctx, models.RedemptionToken{Token: "t1", Target: "https://example.com/a"})
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = repo.Put(ctx, models.RedemptionToken{Token: "t1", Target: "https://example.com/b"})
	require.NoError(t, err)
	assert.False(t, stored)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.Take(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", got.Target)

	_, err = repo.Take(ctx, "t1")
	assert.ErrorIs(t, err, appErrors.ErrTokenNotFound)
}

func TestMemoryTokenRepositoryExpires(t *testing.T) {
	repo := NewMemoryTokenRepository(10, 20*time.Millisecond)
	ctx := context.Background()

	_, err := repo.Put(ctx, models.RedemptionToken{Token: "t1", Target: "https://example.com/a"})
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)

	_, err = repo.Take(ctx, "t1")
	assert.ErrorIs(t, err, appErrors.ErrTokenNotFound)
}

func TestMemoryTokenRepositoryConcurrentTake(t *testing.T) {
	repo := NewMemoryTokenRepository(10, 0)
	ctx := context.Background()
	_, err := repo.Put(ctx, models.RedemptionToken{Token: "race", Target: "https://example.com/a"})
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Take(ctx, "race"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins)
}

func TestRedisTokenRepositoryPutAndTake(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewRedisTokenRepository(client, time.Hour, nil)
	ctx := context.Background()

	token := models.RedemptionToken{Token: "abc", Target: "https://example.com/a", IssuedFor: "1", IssuedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	payload, err := json.Marshal(token)
	require.NoError(t, err)

	mock.ExpectSetNX(tokenKeyPrefix+"abc", payload, time.Hour).SetVal(true)
	mock.ExpectGetDel(tokenKeyPrefix + "abc").SetVal(string(payload))
	mock.ExpectGetDel(tokenKeyPrefix + "abc").RedisNil()

	stored, err := repo.Put(ctx, token)
	require.NoError(t, err)
	assert.True(t, stored)

	got, err := repo.Take(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, token.Target, got.Target)
	assert.Equal(t, "1", got.IssuedFor)

	_, err = repo.Take(ctx, "abc")
	assert.ErrorIs(t, err, appErrors.ErrTokenNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
