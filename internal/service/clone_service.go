package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/dto"
	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/pkg/config"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
	"github.com/noah-isme/clonebot/pkg/retry"
	"github.com/noah-isme/clonebot/pkg/secret"
	"github.com/noah-isme/clonebot/pkg/telegram"
)

var botTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

type botRepository interface {
	List(ctx context.Context) ([]models.ClonedBot, error)
	Append(ctx context.Context, bot models.ClonedBot) error
	ReplaceAll(ctx context.Context, bots []models.ClonedBot) error
}

type tokenVerifier interface {
	Verify(ctx context.Context, token string) (telegram.Identity, error)
}

// BotRunner starts and stops polling loops for bot identities.
type BotRunner interface {
	Start(ctx context.Context, profile models.BotProfile, token string) error
	Stop(id string) bool
	Running(id string) bool
}

// CloneService manages the registry of cloned bots.
type CloneService struct {
	repo      botRepository
	verifier  tokenVerifier
	box       *secret.Box
	retry     retry.Policy
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	runner BotRunner
}

// NewCloneService constructs a clone registry. Token verification runs under a bounded
// exponential retry policy derived from cfg.Clone.
func NewCloneService(repo botRepository, verifier tokenVerifier, box *secret.Box, validate *validator.Validate, logger *zap.Logger, cfg config.Config) *CloneService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloneService{
		repo:      repo,
		verifier:  verifier,
		box:       box,
		validator: validate,
		logger:    logger,
		now:       time.Now,
		retry: retry.Policy{
			MaxAttempts: cfg.Clone.VerifyAttempts,
			BaseDelay:   cfg.Clone.VerifyBase,
			MaxDelay:    cfg.Clone.VerifyMax,
			Classify:    telegram.Classify,
			Logger:      logger,
		},
	}
}

// SetRunner attaches the runtime that hosts cloned bots. The runner is created after the
// service because it needs the dispatcher, which in turn needs this service.
func (s *CloneService) SetRunner(runner BotRunner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = runner
}

// Create verifies the token, stores the sealed clone and starts it.
func (s *CloneService) Create(ctx context.Context, req dto.CreateCloneRequest) (*models.ClonedBot, error) {
	req.Token = strings.TrimSpace(req.Token)
	req.Visibility = strings.ToLower(strings.TrimSpace(req.Visibility))
	req.Usage = strings.ToLower(strings.TrimSpace(req.Usage))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "usage: /clone <public|private> <searchbot|filestore> <token>")
	}
	if !botTokenPattern.MatchString(req.Token) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "that does not look like a bot token from @BotFather")
	}

	var identity telegram.Identity
	err := s.retry.Do(ctx, "verify clone token", func(ctx context.Context) error {
		var verr error
		identity, verr = s.verifier.Verify(ctx, req.Token)
		return verr
	})
	if err != nil {
		if telegram.IsUnauthorized(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "Telegram rejected this token")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "could not reach Telegram to verify the token")
	}

	sealed, err := s.box.Seal(req.Token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to seal token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read clones")
	}
	for _, bot := range existing {
		if bot.BotID == identity.ID {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("@%s is already cloned", identity.Username))
		}
	}

	bot := models.ClonedBot{
		ID:          uuid.NewString(),
		BotID:       identity.ID,
		Username:    identity.Username,
		OwnerID:     req.OwnerID,
		SealedToken: sealed,
		Visibility:  models.Visibility(req.Visibility),
		Usage:       models.Usage(req.Usage),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Append(ctx, bot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store clone")
	}

	if s.runner != nil {
		if err := s.runner.Start(ctx, bot.Profile(), req.Token); err != nil {
			s.logger.Warn("start cloned bot", zap.String("bot", bot.Username), zap.Error(err))
		}
	}
	s.logger.Info("bot cloned", zap.String("bot", bot.Username), zap.Int64("owner_id", bot.OwnerID))
	return &bot, nil
}

// List returns every clone in creation order.
func (s *CloneService) List(ctx context.Context) ([]models.ClonedBot, error) {
	bots, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read clones")
	}
	return bots, nil
}

// Count returns the number of clones, or 0 when the store is unavailable.
func (s *CloneService) Count(ctx context.Context) int {
	bots, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Warn("count clones", zap.Error(err))
		return 0
	}
	return len(bots)
}

// Running reports whether the clone with id is polling.
func (s *CloneService) Running(id string) bool {
	s.mu.Lock()
	runner := s.runner
	s.mu.Unlock()
	return runner != nil && runner.Running(id)
}

// Delete removes the clone at 1-based position index in List order and stops it.
func (s *CloneService) Delete(ctx context.Context, index int) (*models.ClonedBot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bots, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read clones")
	}
	if index < 1 || index > len(bots) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no clone #%d, see /clones", index))
	}
	removed := bots[index-1]
	remaining := append(append([]models.ClonedBot(nil), bots[:index-1]...), bots[index:]...)
	if err := s.repo.ReplaceAll(ctx, remaining); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete clone")
	}
	if s.runner != nil {
		s.runner.Stop(removed.ID)
	}
	s.logger.Info("clone deleted", zap.String("bot", removed.Username))
	return &removed, nil
}

// Restore starts every persisted clone and returns how many came up. Clones whose token can no
// longer be opened or is revoked are skipped.
func (s *CloneService) Restore(ctx context.Context) (int, error) {
	s.mu.Lock()
	runner := s.runner
	s.mu.Unlock()
	if runner == nil {
		return 0, errors.New("clone runner is not attached")
	}

	bots, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, bot := range bots {
		token, err := s.box.Open(bot.SealedToken)
		if err != nil {
			s.logger.Error("open clone token", zap.String("bot", bot.Username), zap.Error(err))
			continue
		}
		if err := runner.Start(ctx, bot.Profile(), token); err != nil {
			s.logger.Warn("restore clone", zap.String("bot", bot.Username), zap.Error(err))
			continue
		}
		started++
	}
	return started, nil
}
