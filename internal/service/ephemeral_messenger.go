package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/pkg/jobs"
	"github.com/noah-isme/clonebot/pkg/telegram"
)

// JobDeleteMessage is the job type for scheduled deletions.
const JobDeleteMessage = "delete_message"

var deleteTimerPattern = regexp.MustCompile(`^(\d+)([mhMH])$`)

// ParseDeleteTimer parses "<n>m" or "<n>h". Zero, malformed or overflowing input reports
// ok=false, meaning deletion is disabled.
func ParseDeleteTimer(raw string) (time.Duration, bool) {
	match := deleteTimerPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	unit := time.Minute
	if strings.EqualFold(match[2], "h") {
		unit = time.Hour
	}
	if n > int64((1<<63-1)/unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

// HumanizeDeleteTimer renders a timer for user-facing text, e.g. "10 minutes".
func HumanizeDeleteTimer(raw string) string {
	d, ok := ParseDeleteTimer(raw)
	if !ok {
		return "disabled"
	}
	if d%time.Hour == 0 {
		return plural(int(d/time.Hour), "hour")
	}
	return plural(int(d/time.Minute), "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

type messageDeleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

type delayedEnqueuer interface {
	EnqueueAfter(job jobs.Job, delay time.Duration) error
}

// DeleteMessagePayload identifies a message and the bot that owns it.
type DeleteMessagePayload struct {
	Deleter   messageDeleter
	ChatID    int64
	MessageID int
}

// EphemeralMessenger schedules one-shot deletion of bot messages.
type EphemeralMessenger struct {
	scheduler delayedEnqueuer
	logger    *zap.Logger
}

// NewEphemeralMessenger constructs a messenger that hands deletions to scheduler.
func NewEphemeralMessenger(scheduler delayedEnqueuer, logger *zap.Logger) *EphemeralMessenger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EphemeralMessenger{scheduler: scheduler, logger: logger}
}

// ScheduleDeletion arranges for the message to be deleted after timer. A disabled timer is a
// no-op and scheduling problems are only logged so replies are never blocked.
func (m *EphemeralMessenger) ScheduleDeletion(deleter messageDeleter, chatID int64, messageID int, timer string) bool {
	delay, ok := ParseDeleteTimer(timer)
	if !ok || m == nil || m.scheduler == nil {
		return false
	}
	job := jobs.Job{
		Type:    JobDeleteMessage,
		Payload: DeleteMessagePayload{Deleter: deleter, ChatID: chatID, MessageID: messageID},
	}
	if err := m.scheduler.EnqueueAfter(job, delay); err != nil {
		m.logger.Warn("schedule message deletion", zap.Int64("chat_id", chatID), zap.Int("message_id", messageID), zap.Error(err))
		return false
	}
	return true
}

// HandleDeleteJob executes a scheduled deletion. Messages that are already gone are ignored.
func (m *EphemeralMessenger) HandleDeleteJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(DeleteMessagePayload)
	if !ok || payload.Deleter == nil {
		m.logger.Error("invalid delete job payload", zap.String("job_id", job.ID))
		return nil
	}
	err := payload.Deleter.DeleteMessage(ctx, payload.ChatID, payload.MessageID)
	if err == nil || telegram.IsMessageGone(err) {
		return nil
	}
	if retryable(err) {
		return err
	}
	m.logger.Debug("message deletion rejected", zap.Int64("chat_id", payload.ChatID), zap.Int("message_id", payload.MessageID), zap.Error(err))
	return nil
}
