package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/pkg/jobs"
	"github.com/noah-isme/clonebot/pkg/telegram"
)

// JobActivityLog is the job type for activity log posts.
const JobActivityLog = "activity_log"

type textSender interface {
	SendText(ctx context.Context, chatID int64, text string, keyboard telegram.Keyboard) (int, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type policyReader interface {
	Policy(ctx context.Context) models.AccessPolicy
}

// ActivityEntry is one line of the user activity log.
type ActivityEntry struct {
	UserID   int64
	Username string
	Bot      string
	Action   string
	At       time.Time
}

type activityPayload struct {
	ChannelID int64
	Entry     ActivityEntry
}

// ActivityService posts user activity to the log channel through the primary bot.
type ActivityService struct {
	settings policyReader
	sender   textSender
	queue    jobEnqueuer
	logger   *zap.Logger
	now      func() time.Time
}

// NewActivityService constructs an activity logger. sender is the primary bot.
func NewActivityService(settings policyReader, sender textSender, queue jobEnqueuer, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{settings: settings, sender: sender, queue: queue, logger: logger, now: time.Now}
}

// Record queues entry for the log channel. It is a no-op when no log channel is configured.
func (s *ActivityService) Record(ctx context.Context, entry ActivityEntry) {
	if s == nil || s.queue == nil {
		return
	}
	channelID := s.settings.Policy(ctx).LogChannelID
	if channelID == 0 {
		return
	}
	if entry.At.IsZero() {
		entry.At = s.now().UTC()
	}
	err := s.queue.Enqueue(jobs.Job{
		Type:    JobActivityLog,
		Payload: activityPayload{ChannelID: channelID, Entry: entry},
	})
	if err != nil {
		s.logger.Warn("queue activity log", zap.Int64("user_id", entry.UserID), zap.Error(err))
	}
}

// Recordf is Record with a formatted action.
func (s *ActivityService) Recordf(ctx context.Context, req Request, format string, args ...interface{}) {
	s.Record(ctx, ActivityEntry{
		UserID:   req.UserID,
		Username: req.Username,
		Bot:      req.Profile.Username,
		Action:   fmt.Sprintf(format, args...),
	})
}

// HandleJob posts a queued entry.
func (s *ActivityService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(activityPayload)
	if !ok {
		s.logger.Error("invalid activity payload", zap.String("job_id", job.ID))
		return nil
	}
	_, err := s.sender.SendText(ctx, payload.ChannelID, FormatActivity(payload.Entry), nil)
	if err == nil {
		return nil
	}
	if retryable(err) {
		return err
	}
	s.logger.Warn("post activity log", zap.Int64("channel_id", payload.ChannelID), zap.Error(err))
	return nil
}

// FormatActivity renders entry as HTML for the log channel.
func FormatActivity(entry ActivityEntry) string {
	var b strings.Builder
	b.WriteString("📝 <b>Activity</b>\n")
	fmt.Fprintf(&b, "🆔 <code>%d</code>", entry.UserID)
	if entry.Username != "" {
		fmt.Fprintf(&b, " @%s", html.EscapeString(entry.Username))
	}
	b.WriteString("\n")
	if entry.Bot != "" {
		fmt.Fprintf(&b, "🤖 @%s\n", html.EscapeString(entry.Bot))
	}
	fmt.Fprintf(&b, "🛠 %s\n", html.EscapeString(entry.Action))
	fmt.Fprintf(&b, "🕒 %s", entry.At.UTC().Format(time.RFC3339))
	return b.String()
}
