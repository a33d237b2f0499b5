package service

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/models"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
	"github.com/noah-isme/clonebot/pkg/jobs"
	"github.com/noah-isme/clonebot/pkg/telegram"
)

// JobBroadcastMessage is the job type for one broadcast delivery.
const JobBroadcastMessage = "broadcast_message"

// maxBroadcastLength is the Bot API limit for message text.
const maxBroadcastLength = 4096

type userRepository interface {
	List(ctx context.Context) ([]models.BotUser, error)
	Append(ctx context.Context, user models.BotUser) error
}

// BroadcastPayload is one queued broadcast delivery.
type BroadcastPayload struct {
	Sender textSender
	ChatID int64
	Text   string
}

// UserService records users on first contact and fans out broadcasts.
type UserService struct {
	repo   userRepository
	queue  jobEnqueuer
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	known map[int64]struct{}
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, queue jobEnqueuer, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, queue: queue, logger: logger, now: time.Now}
}

// Touch records user if it has not been seen before and reports whether it was new.
func (s *UserService) Touch(ctx context.Context, user models.BotUser) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.known == nil {
		users, err := s.repo.List(ctx)
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read users")
		}
		s.known = make(map[int64]struct{}, len(users))
		for _, u := range users {
			s.known[u.ID] = struct{}{}
		}
	}
	if _, ok := s.known[user.ID]; ok {
		return false, nil
	}
	if user.FirstSeen.IsZero() {
		user.FirstSeen = s.now().UTC()
	}
	if err := s.repo.Append(ctx, user); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record user")
	}
	s.known[user.ID] = struct{}{}
	return true, nil
}

// List returns every known user.
func (s *UserService) List(ctx context.Context) ([]models.BotUser, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read users")
	}
	return users, nil
}

// Count returns the number of known users, or 0 when the store is unavailable.
func (s *UserService) Count(ctx context.Context) int {
	users, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Warn("count users", zap.Error(err))
		return 0
	}
	return len(users)
}

// Broadcast queues text for every known user and returns how many deliveries were queued.
func (s *UserService) Broadcast(ctx context.Context, sender textSender, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > maxBroadcastLength {
		return 0, appErrors.Clone(appErrors.ErrValidation, "broadcast text must be 1 to 4096 characters")
	}
	users, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, user := range users {
		err := s.queue.Enqueue(jobs.Job{
			Type:    JobBroadcastMessage,
			Payload: BroadcastPayload{Sender: sender, ChatID: user.ID, Text: text},
		})
		if err != nil {
			s.logger.Warn("queue broadcast", zap.Int64("user_id", user.ID), zap.Error(err))
			continue
		}
		queued++
	}
	s.logger.Info("broadcast queued", zap.Int("recipients", queued))
	return queued, nil
}

// HandleBroadcastJob delivers one broadcast message. Users who blocked the bot are skipped.
func (s *UserService) HandleBroadcastJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(BroadcastPayload)
	if !ok || payload.Sender == nil {
		s.logger.Error("invalid broadcast payload", zap.String("job_id", job.ID))
		return nil
	}
	_, err := payload.Sender.SendText(ctx, payload.ChatID, payload.Text, nil)
	switch {
	case err == nil:
		return nil
	case telegram.IsBlocked(err):
		s.logger.Debug("broadcast recipient unreachable", zap.Int64("user_id", payload.ChatID))
		return nil
	case retryable(err):
		return err
	default:
		s.logger.Warn("broadcast delivery failed", zap.Int64("user_id", payload.ChatID), zap.Error(err))
		return nil
	}
}
