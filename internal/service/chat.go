package service

import (
	"context"

	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/pkg/retry"
	"github.com/noah-isme/clonebot/pkg/telegram"
)

// Chat is the chat-platform surface of one bot identity.
type Chat interface {
	SendText(ctx context.Context, chatID int64, text string, keyboard telegram.Keyboard) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard telegram.Keyboard) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	MemberStatus(ctx context.Context, channel string, userID int64) (string, error)
}

// Request carries everything a handler needs about one inbound update. It is built per update
// and never shared between bot identities.
type Request struct {
	Chat     Chat
	Profile  models.BotProfile
	UserID   int64
	Username string
	ChatID   int64
}

func retryable(err error) bool {
	class, _ := telegram.Classify(err)
	return class == retry.Retryable
}
