package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/models"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
)

const (
	tokenBytes         = 16
	tokenIssueAttempts = 3
)

type tokenRepository interface {
	Put(ctx context.Context, token models.RedemptionToken) (bool, error)
	Take(ctx context.Context, token string) (*models.RedemptionToken, error)
	Count(ctx context.Context) (int, error)
}

// TokenVault issues and redeems single-use redirection tokens.
type TokenVault struct {
	repo    tokenRepository
	logger  *zap.Logger
	metrics *MetricsService
	random  io.Reader
	now     func() time.Time
}

// NewTokenVault constructs a token vault over repo.
func NewTokenVault(repo tokenRepository, metrics *MetricsService, logger *zap.Logger) *TokenVault {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenVault{repo: repo, logger: logger, metrics: metrics, random: rand.Reader, now: time.Now}
}

// Issue stores a fresh 128-bit token for target and returns it.
func (v *TokenVault) Issue(ctx context.Context, target, issuedFor string) (string, error) {
	if target == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "download target is required")
	}

	for attempt := 0; attempt < tokenIssueAttempts; attempt++ {
		token, err := v.newToken()
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate token")
		}
		stored, err := v.repo.Put(ctx, models.RedemptionToken{
			Token:     token,
			Target:    target,
			IssuedFor: issuedFor,
			IssuedAt:  v.now().UTC(),
		})
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store token")
		}
		if stored {
			v.metrics.RecordTokenIssued()
			return token, nil
		}
		v.logger.Warn("token collision, regenerating", zap.Int("attempt", attempt+1))
	}
	return "", appErrors.Clone(appErrors.ErrInternal, "could not allocate a unique token")
}

// Redeem atomically resolves and removes token. Unknown, expired and reused tokens all yield
// appErrors.ErrTokenNotFound.
func (v *TokenVault) Redeem(ctx context.Context, token string) (*models.RedemptionToken, error) {
	if !validToken(token) {
		v.metrics.RecordRedemption(false)
		return nil, appErrors.ErrTokenNotFound
	}
	redeemed, err := v.repo.Take(ctx, token)
	if err != nil {
		v.metrics.RecordRedemption(false)
		if errors.Is(err, appErrors.ErrTokenNotFound) {
			return nil, appErrors.ErrTokenNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to redeem token")
	}
	v.metrics.RecordRedemption(true)
	return redeemed, nil
}

// Pending returns the number of live tokens, or 0 when the backend cannot count.
func (v *TokenVault) Pending(ctx context.Context) int {
	count, err := v.repo.Count(ctx)
	if err != nil {
		v.logger.Warn("count pending tokens", zap.Error(err))
		return 0
	}
	return count
}

func (v *TokenVault) newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(v.random, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func validToken(token string) bool {
	if len(token) != tokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
