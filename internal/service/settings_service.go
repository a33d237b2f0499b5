package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/dto"
	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/pkg/config"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
)

// DeleteTimerChoices are offered by the settings menu.
var DeleteTimerChoices = []string{"0m", "5m", "10m", "1h"}

var (
	channelNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)
	channelIDPattern   = regexp.MustCompile(`^-100\d+$`)
	timerInputPattern  = regexp.MustCompile(`^\d+[mhMH]$`)
)

type settingsRepository interface {
	Get(ctx context.Context) (*models.AccessPolicy, error)
	Save(ctx context.Context, policy models.AccessPolicy) error
}

// SettingsService owns the AccessPolicy. Reads are served from memory; every write is a
// read-modify-write under one lock so concurrent admin sessions never lose updates.
type SettingsService struct {
	repo      settingsRepository
	validator *validator.Validate
	logger    *zap.Logger
	defaults  models.AccessPolicy

	writeMu sync.Mutex
	mu      sync.RWMutex
	cached  *models.AccessPolicy
}

// NewSettingsService constructs a SettingsService with defaults taken from cfg.
func NewSettingsService(repo settingsRepository, validate *validator.Validate, logger *zap.Logger, cfg config.Config) *SettingsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	channels := make([]string, 0, len(cfg.Search.DefaultForceSubChannels))
	for _, raw := range cfg.Search.DefaultForceSubChannels {
		if name, err := NormalizeChannel(raw); err == nil && len(channels) < models.MaxRequiredChannels {
			channels = append(channels, name)
		}
	}
	shortener, ok := models.ParseShortenerKind(cfg.Search.DefaultShortener)
	if !ok {
		shortener = models.ShortenerNone
	}
	return &SettingsService{
		repo:      repo,
		validator: validate,
		logger:    logger,
		defaults: models.AccessPolicy{
			RequiredChannels: channels,
			DeleteTimer:      "0m",
			SearchCaption:    cfg.Search.DefaultCaption,
			Shortener:        shortener,
			DBChannelID:      cfg.Telegram.DBChannelID,
			LogChannelID:     cfg.Telegram.LogChannelID,
		},
	}
}

// Policy returns a copy of the current policy. Store failures fall back to defaults without
// caching them.
func (s *SettingsService) Policy(ctx context.Context) models.AccessPolicy {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		return cached.Clone()
	}

	policy, err := s.load(ctx)
	if err != nil {
		s.logger.Error("load settings, using defaults", zap.Error(err))
		return s.defaults.Clone()
	}
	s.mu.Lock()
	s.cached = &policy
	s.mu.Unlock()
	return policy.Clone()
}

// Update applies fn to the freshest stored policy and persists the result.
func (s *SettingsService) Update(ctx context.Context, fn func(*models.AccessPolicy) error) (models.AccessPolicy, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return models.AccessPolicy{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return models.AccessPolicy{}, err
	}
	if err := s.repo.Save(ctx, next); err != nil {
		return models.AccessPolicy{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save settings")
	}

	s.mu.Lock()
	stored := next.Clone()
	s.cached = &stored
	s.mu.Unlock()
	return next, nil
}

// ToggleForceSub flips mandatory subscription.
func (s *SettingsService) ToggleForceSub(ctx context.Context) (models.AccessPolicy, error) {
	return s.Update(ctx, func(p *models.AccessPolicy) error {
		p.ForceSubscriptionEnabled = !p.ForceSubscriptionEnabled
		return nil
	})
}

// SetForceSub enables or disables mandatory subscription.
func (s *SettingsService) SetForceSub(ctx context.Context, enabled bool) (models.AccessPolicy, error) {
	return s.Update(ctx, func(p *models.AccessPolicy) error {
		p.ForceSubscriptionEnabled = enabled
		return nil
	})
}

// AddChannel appends a required channel, keeping insertion order.
func (s *SettingsService) AddChannel(ctx context.Context, raw string) (models.AccessPolicy, error) {
	name, err := NormalizeChannel(raw)
	if err != nil {
		return models.AccessPolicy{}, err
	}
	return s.Update(ctx, func(p *models.AccessPolicy) error {
		for _, existing := range p.RequiredChannels {
			if strings.EqualFold(existing, name) {
				return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("@%s is already required", name))
			}
		}
		if len(p.RequiredChannels) >= models.MaxRequiredChannels {
			return appErrors.Clone(appErrors.ErrLimitReached, fmt.Sprintf("at most %d channels can be required", models.MaxRequiredChannels))
		}
		p.RequiredChannels = append(p.RequiredChannels, name)
		return nil
	})
}

// RemoveChannel drops a required channel.
func (s *SettingsService) RemoveChannel(ctx context.Context, raw string) (models.AccessPolicy, error) {
	name, err := NormalizeChannel(raw)
	if err != nil {
		return models.AccessPolicy{}, err
	}
	return s.Update(ctx, func(p *models.AccessPolicy) error {
		for i, existing := range p.RequiredChannels {
			if strings.EqualFold(existing, name) {
				p.RequiredChannels = append(p.RequiredChannels[:i], p.RequiredChannels[i+1:]...)
				return nil
			}
		}
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("@%s is not a required channel", name))
	})
}

// SetDeleteTimer stores a timer such as "10m" or "1h"; "0m" disables deletion.
func (s *SettingsService) SetDeleteTimer(ctx context.Context, raw string) (models.AccessPolicy, error) {
	timer, err := normalizeTimer(raw)
	if err != nil {
		return models.AccessPolicy{}, err
	}
	return s.Update(ctx, func(p *models.AccessPolicy) error {
		p.DeleteTimer = timer
		return nil
	})
}

// SetCaption changes the search result caption.
func (s *SettingsService) SetCaption(ctx context.Context, raw string) (models.AccessPolicy, error) {
	caption, err := normalizeCaption(raw)
	if err != nil {
		return models.AccessPolicy{}, err
	}
	return s.Update(ctx, func(p *models.AccessPolicy) error {
		p.SearchCaption = caption
		return nil
	})
}

// SetShortener selects the link shortener.
func (s *SettingsService) SetShortener(ctx context.Context, raw string) (models.AccessPolicy, error) {
	kind, ok := models.ParseShortenerKind(raw)
	if !ok {
		return models.AccessPolicy{}, appErrors.Clone(appErrors.ErrValidation, "shortener must be GPLinks, TinyURL or None")
	}
	return s.Update(ctx, func(p *models.AccessPolicy) error {
		p.Shortener = kind
		return nil
	})
}

// SetDBChannel sets the database channel id (-100 followed by digits).
func (s *SettingsService) SetDBChannel(ctx context.Context, raw string) (models.AccessPolicy, error) {
	id, err := ParseChannelID(raw)
	if err != nil {
		return models.AccessPolicy{}, err
	}
	return s.Update(ctx, func(p *models.AccessPolicy) error {
		p.DBChannelID = id
		return nil
	})
}

// SetLogChannel sets the activity log channel id (-100 followed by digits).
func (s *SettingsService) SetLogChannel(ctx context.Context, raw string) (models.AccessPolicy, error) {
	id, err := ParseChannelID(raw)
	if err != nil {
		return models.AccessPolicy{}, err
	}
	return s.Update(ctx, func(p *models.AccessPolicy) error {
		p.LogChannelID = id
		return nil
	})
}

// Replace validates and applies an admin API settings document.
func (s *SettingsService) Replace(ctx context.Context, req dto.UpdateSettingsRequest) (models.AccessPolicy, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.AccessPolicy{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}
	timer, err := normalizeTimer(req.DeleteTimer)
	if err != nil {
		return models.AccessPolicy{}, err
	}
	caption, err := normalizeCaption(req.SearchCaption)
	if err != nil {
		return models.AccessPolicy{}, err
	}
	channels := make([]string, 0, len(req.RequiredChannels))
	seen := make(map[string]struct{}, len(req.RequiredChannels))
	for _, raw := range req.RequiredChannels {
		name, err := NormalizeChannel(raw)
		if err != nil {
			return models.AccessPolicy{}, err
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return models.AccessPolicy{}, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("@%s is listed twice", name))
		}
		seen[key] = struct{}{}
		channels = append(channels, name)
	}
	kind, _ := models.ParseShortenerKind(req.Shortener)

	return s.Update(ctx, func(p *models.AccessPolicy) error {
		p.ForceSubscriptionEnabled = req.ForceSubscriptionEnabled
		p.RequiredChannels = channels
		p.DeleteTimer = timer
		p.SearchCaption = caption
		p.Shortener = kind
		return nil
	})
}

func (s *SettingsService) load(ctx context.Context) (models.AccessPolicy, error) {
	stored, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return s.defaults.Clone(), nil
		}
		return models.AccessPolicy{}, err
	}
	policy := stored.Clone()
	if policy.SearchCaption == "" {
		policy.SearchCaption = s.defaults.SearchCaption
	}
	if policy.DeleteTimer == "" {
		policy.DeleteTimer = s.defaults.DeleteTimer
	}
	if policy.Shortener == "" {
		policy.Shortener = s.defaults.Shortener
	}
	if policy.DBChannelID == 0 {
		policy.DBChannelID = s.defaults.DBChannelID
	}
	if policy.LogChannelID == 0 {
		policy.LogChannelID = s.defaults.LogChannelID
	}
	return policy, nil
}

// NormalizeChannel strips the @ prefix and validates a public channel username. Numeric ids
// are rejected: members could not be sent a join link for them.
func NormalizeChannel(raw string) (string, error) {
	name := strings.TrimPrefix(strings.TrimSpace(raw), "@")
	if channelNamePattern.MatchString(name) {
		return name, nil
	}
	return "", appErrors.Clone(appErrors.ErrValidation, "channel must be a public @channelname")
}

// ParseChannelID validates a private channel id such as -1001234567890.
func ParseChannelID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if !channelIDPattern.MatchString(raw) {
		return 0, appErrors.Clone(appErrors.ErrValidation, "channel id must start with -100 followed by digits")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "channel id is out of range")
	}
	return id, nil
}

func normalizeTimer(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !timerInputPattern.MatchString(raw) {
		return "", appErrors.Clone(appErrors.ErrValidation, "timer must look like 10m or 1h")
	}
	return strings.ToLower(raw), nil
}

func normalizeCaption(raw string) (string, error) {
	caption := strings.TrimSpace(raw)
	if caption == "" || utf8.RuneCountInString(caption) > models.MaxCaptionLength {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("caption must be 1 to %d characters", models.MaxCaptionLength))
	}
	return caption, nil
}
