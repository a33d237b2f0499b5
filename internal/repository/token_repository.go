package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/models"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
)

const tokenKeyPrefix = "clonebot:token:"

// RedisTokenRepository stores redemption tokens in Redis so every process sees the same vault.
// GETDEL makes redemption a single atomic read-and-remove.
type RedisTokenRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisTokenRepository constructs a Redis backed token repository. ttl 0 keeps tokens until redeemed.
func NewRedisTokenRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisTokenRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTokenRepository{client: client, ttl: ttl, logger: logger}
}

// Put stores token unless it already exists and reports whether it was stored.
func (r *RedisTokenRepository) Put(ctx context.Context, token models.RedemptionToken) (bool, error) {
	payload, err := json.Marshal(token)
	if err != nil {
		return false, fmt.Errorf("marshal token: %w", err)
	}
	stored, err := r.client.SetNX(ctx, tokenKeyPrefix+token.Token, payload, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx token: %w", err)
	}
	return stored, nil
}

// Take atomically reads and deletes token.
func (r *RedisTokenRepository) Take(ctx context.Context, token string) (*models.RedemptionToken, error) {
	raw, err := r.client.GetDel(ctx, tokenKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrTokenNotFound
		}
		return nil, fmt.Errorf("redis getdel token: %w", err)
	}
	var out models.RedemptionToken
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return &out, nil
}

// Count scans the live token keys.
func (r *RedisTokenRepository) Count(ctx context.Context) (int, error) {
	count := 0
	iter := r.client.Scan(ctx, 0, tokenKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan tokens: %w", err)
	}
	return count, nil
}

// MemoryTokenRepository keeps tokens in a bounded, expiring LRU owned by this process.
type MemoryTokenRepository struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, models.RedemptionToken]
}

// NewMemoryTokenRepository constructs an in-process token repository. ttl 0 disables expiry;
// capacity bounds memory by evicting the oldest unredeemed tokens.
func NewMemoryTokenRepository(capacity int, ttl time.Duration) *MemoryTokenRepository {
	if capacity <= 0 {
		capacity = 100000
	}
	return &MemoryTokenRepository{cache: expirable.NewLRU[string, models.RedemptionToken](capacity, nil, ttl)}
}

// Put stores token unless it already exists.
func (r *MemoryTokenRepository) Put(_ context.Context, token models.RedemptionToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache.Peek(token.Token); ok {
		return false, nil
	}
	r.cache.Add(token.Token, token)
	return true, nil
}

// Take reads and removes token under one lock.
func (r *MemoryTokenRepository) Take(_ context.Context, token string) (*models.RedemptionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.cache.Peek(token)
	if !ok {
		return nil, appErrors.ErrTokenNotFound
	}
	r.cache.Remove(token)
	return &value, nil
}

// Count returns the number of unexpired tokens.
func (r *MemoryTokenRepository) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache.Keys()), nil
}
