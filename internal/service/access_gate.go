package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/pkg/telegram"
)

type membershipLookup interface {
	MemberStatus(ctx context.Context, channel string, userID int64) (string, error)
}

// AccessGate decides whether a user may search on a given bot. It holds no state and is
// re-evaluated on every request.
type AccessGate struct {
	logger *zap.Logger
}

// NewAccessGate constructs an access gate.
func NewAccessGate(logger *zap.Logger) *AccessGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessGate{logger: logger}
}

// Check evaluates mandatory subscription first and private-bot ownership second.
// A failed membership lookup denies with DenyMembershipError and stops checking.
func (g *AccessGate) Check(ctx context.Context, members membershipLookup, userID int64, profile models.BotProfile, policy models.AccessPolicy) models.AccessDecision {
	if policy.ForceSubscriptionEnabled {
		var prompts []models.JoinPrompt
		for _, channel := range policy.RequiredChannels {
			status, err := members.MemberStatus(ctx, channel, userID)
			if err != nil {
				g.logger.Warn("membership lookup failed",
					zap.String("channel", channel),
					zap.Int64("user_id", userID),
					zap.Error(err),
				)
				return models.Deny(models.DenyMembershipError)
			}
			if !isMember(status) {
				prompts = append(prompts, JoinPromptFor(channel))
			}
		}
		if len(prompts) > 0 {
			return models.Deny(models.DenyNotSubscribed, prompts...)
		}
	}

	if !profile.Primary && profile.Visibility == models.VisibilityPrivate && userID != profile.OwnerID {
		return models.Deny(models.DenyPrivateBot)
	}

	return models.Allow()
}

// JoinPromptFor builds the join link for a public channel name.
func JoinPromptFor(channel string) models.JoinPrompt {
	name := strings.TrimPrefix(strings.TrimSpace(channel), "@")
	prompt := models.JoinPrompt{Channel: name}
	if name != "" && !strings.HasPrefix(name, "-") {
		prompt.URL = "https://t.me/" + name
	}
	return prompt
}

func isMember(status string) bool {
	switch status {
	case telegram.StatusLeft, telegram.StatusKicked, "":
		return false
	default:
		return true
	}
}
