package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Membership statuses returned by MemberStatus.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
	StatusMember        = "member"
	StatusRestricted    = "restricted"
	StatusLeft          = "left"
	StatusKicked        = "kicked"
)

// Options tune how a Bot talks to the Bot API.
type Options struct {
	Endpoint   string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Identity is the getMe view of a bot.
type Identity struct {
	ID       int64
	Username string
	Name     string
}

// Bot wraps one authenticated Bot API session.
type Bot struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

// New authenticates token with getMe and returns a ready Bot.
func New(token string, opts Options) (*Bot, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 75 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, err
	}
	return &Bot{api: api, logger: logger.With(zap.String("bot", api.Self.UserName))}, nil
}

// Verify checks a token with a single getMe round trip without keeping the session.
func Verify(ctx context.Context, token string, opts Options) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	bot, err := New(token, opts)
	if err != nil {
		return Identity{}, err
	}
	return bot.Identity(), nil
}

// Verify checks token using these options.
func (o Options) Verify(ctx context.Context, token string) (Identity, error) {
	return Verify(ctx, token, o)
}

// Identity returns the bot's own user.
func (b *Bot) Identity() Identity {
	self := b.api.Self
	return Identity{ID: self.ID, Username: self.UserName, Name: strings.TrimSpace(self.FirstName + " " + self.LastName)}
}

// SendText posts an HTML message and returns its id.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string, keyboard Keyboard) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup := keyboard.markup(); markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// EditText replaces the text and keyboard of a previously sent message.
func (b *Bot) EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = keyboard.markup()
	if _, err := b.api.Request(edit); err != nil {
		if IsNotModified(err) {
			return nil
		}
		return fmt.Errorf("edit message %d: %w", messageID, err)
	}
	return nil
}

// DeleteMessage removes a message. Callers decide whether IsMessageGone errors matter.
func (b *Bot) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message %d: %w", messageID, err)
	}
	return nil
}

// MemberStatus looks up userID in a public channel given as @name or numeric id.
func (b *Bot) MemberStatus(ctx context.Context, channel string, userID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chat := tgbotapi.ChatConfigWithUser{UserID: userID}
	if id, ok := numericChatID(channel); ok {
		chat.ChatID = id
	} else {
		chat.SuperGroupUsername = "@" + strings.TrimPrefix(channel, "@")
	}
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: chat})
	if err != nil {
		return "", fmt.Errorf("get chat member %s: %w", channel, err)
	}
	return member.Status, nil
}

// SendDocument uploads an in-memory file.
func (b *Bot) SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	if _, err := b.api.Send(doc); err != nil {
		return fmt.Errorf("send document %s: %w", name, err)
	}
	return nil
}

// AnswerCallback acknowledges a button press, optionally with a toast.
func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// Updates starts long polling.
func (b *Bot) Updates(timeout int) tgbotapi.UpdatesChannel {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = timeout
	return b.api.GetUpdatesChan(cfg)
}

// StopUpdates ends long polling and closes the updates channel.
func (b *Bot) StopUpdates() {
	b.api.StopReceivingUpdates()
}

func numericChatID(channel string) (int64, bool) {
	var id int64
	if _, err := fmt.Sscan(channel, &id); err != nil || fmt.Sprint(id) != channel {
		return 0, false
	}
	return id, true
}
