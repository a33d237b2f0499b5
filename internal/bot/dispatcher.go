// Package bot routes Telegram updates for every running bot identity to the shared services.
package bot

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/callback"
	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/internal/service"
	"github.com/noah-isme/clonebot/pkg/config"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
)

const genericFailure = "⚠️ Something went wrong, please try again later."

// Session is the chat surface of one bot identity as seen by the dispatcher.
type Session interface {
	service.Chat
	SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Services bundles the collaborators shared by every bot identity.
type Services struct {
	Search    *service.SearchService
	Links     *service.LinkService
	Clones    *service.CloneService
	Settings  *service.SettingsService
	Users     *service.UserService
	Stats     *service.StatsService
	Export    *service.ExportService
	Auth      *service.AuthService
	Activity  *service.ActivityService
	Metrics   *service.MetricsService
	Messenger *service.EphemeralMessenger
	Gate      *service.AccessGate
}

type scope int

const (
	scopeAny scope = iota
	scopeSearch
	scopeFileStore
	scopeAdmin
	scopePrimaryAdmin
)

// input is one parsed command invocation.
type input struct {
	session   Session
	req       service.Request
	args      string
	messageID int
	private   bool
}

type command struct {
	scope   scope
	summary string
	run     func(ctx context.Context, in input) error
}

// Dispatcher turns updates into service calls. It is stateless between updates; everything an
// update needs travels in its service.Request.
type Dispatcher struct {
	svc      Services
	telegram config.TelegramConfig
	logger   *zap.Logger
	commands map[string]command
	order    []string
}

// NewDispatcher wires the command table.
func NewDispatcher(svc Services, cfg config.Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if svc.Gate == nil {
		svc.Gate = service.NewAccessGate(logger)
	}
	d := &Dispatcher{svc: svc, telegram: cfg.Telegram, logger: logger, commands: map[string]command{}}
	d.registerCommands()
	return d
}

func (d *Dispatcher) register(name string, s scope, summary string, run func(ctx context.Context, in input) error) {
	d.commands[name] = command{scope: s, summary: summary, run: run}
	d.order = append(d.order, name)
}

// Handle processes one update. It never panics and never returns an error: failures are
// logged and the user gets a generic reply.
func (d *Dispatcher) Handle(ctx context.Context, session Session, profile models.BotProfile, update tgbotapi.Update) {
	chatID := updateChatID(update)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic handling update",
				zap.Int("update_id", update.UpdateID),
				zap.String("bot", profile.Username),
				zap.Any("panic", r),
				zap.Stack("stack"))
			if chatID != 0 {
				_, _ = session.SendText(ctx, chatID, genericFailure, nil)
			}
		}
	}()

	switch {
	case update.Message != nil:
		d.svc.Metrics.RecordUpdate(profile.Username, "message")
		d.handleMessage(ctx, session, profile, update.Message)
	case update.CallbackQuery != nil:
		d.svc.Metrics.RecordUpdate(profile.Username, "callback")
		d.handleCallback(ctx, session, profile, update.CallbackQuery)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, session Session, profile models.BotProfile, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	in := input{
		session: session,
		req: service.Request{
			Chat:     session,
			Profile:  profile,
			UserID:   msg.From.ID,
			Username: msg.From.UserName,
			ChatID:   msg.Chat.ID,
		},
		messageID: msg.MessageID,
		private:   msg.Chat.IsPrivate(),
	}

	if !msg.IsCommand() {
		text := strings.TrimSpace(msg.Text)
		if text == "" || in.private || !profile.AllowsSearch() {
			return
		}
		in.args = text
		d.report(ctx, in, d.search(ctx, in))
		return
	}

	name := strings.ToLower(msg.Command())
	in.args = strings.TrimSpace(msg.CommandArguments())
	cmd, ok := d.commands[name]
	if !ok {
		if in.private {
			d.send(ctx, in, "🤔 Unknown command. Send /help for the list of commands.")
		}
		return
	}
	if reason := d.denyScope(cmd.scope, in); reason != "" {
		d.send(ctx, in, reason)
		return
	}
	d.report(ctx, in, cmd.run(ctx, in))
}

func (d *Dispatcher) denyScope(s scope, in input) string {
	profile := in.req.Profile
	switch s {
	case scopeSearch:
		if !profile.AllowsSearch() {
			return "🚫 This bot does not offer search."
		}
	case scopeFileStore:
		if !profile.AllowsFileStore() {
			return "🚫 This bot does not offer file storage."
		}
	case scopeAdmin:
		if !d.telegram.IsAdmin(in.req.UserID) {
			return "⛔ This command is for admins only."
		}
	case scopePrimaryAdmin:
		if !d.telegram.IsAdmin(in.req.UserID) {
			return "⛔ This command is for admins only."
		}
		if !profile.Primary {
			return "🚫 Clones can only be managed from the main bot."
		}
	}
	return ""
}

func (d *Dispatcher) allowed(s scope, in input) bool {
	return d.denyScope(s, in) == ""
}

// admit runs the access gate and replies with the denial when it fails.
func (d *Dispatcher) admit(ctx context.Context, in input) bool {
	policy := d.svc.Settings.Policy(ctx)
	decision := d.svc.Gate.Check(ctx, in.req.Chat, in.req.UserID, in.req.Profile, policy)
	if decision.Allowed {
		return true
	}
	d.svc.Metrics.RecordAccessDenied(decision.Reason)
	text, keyboard := service.DenialMessage(decision)
	if _, err := in.req.Chat.SendText(ctx, in.req.ChatID, text, keyboard); err != nil {
		d.logger.Warn("send denial", zap.Int64("chat_id", in.req.ChatID), zap.Error(err))
	}
	return false
}

// report turns a handler error into a chat reply. Typed client errors are shown as is;
// anything else is logged and replaced with a generic message.
func (d *Dispatcher) report(ctx context.Context, in input, err error) {
	if err == nil {
		return
	}
	appErr := appErrors.FromError(err)
	if appErr.Status >= http.StatusInternalServerError && appErr.Code != appErrors.ErrConfiguration.Code {
		d.logger.Error("handle update",
			zap.String("bot", in.req.Profile.Username),
			zap.Int64("user_id", in.req.UserID),
			zap.Error(err))
		d.send(ctx, in, genericFailure)
		return
	}
	d.send(ctx, in, "⚠️ "+html.EscapeString(appErr.Message))
}

func (d *Dispatcher) send(ctx context.Context, in input, text string) {
	if _, err := in.req.Chat.SendText(ctx, in.req.ChatID, text, nil); err != nil {
		d.logger.Warn("send reply", zap.Int64("chat_id", in.req.ChatID), zap.Error(err))
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, session Session, profile models.BotProfile, query *tgbotapi.CallbackQuery) {
	if query.From == nil {
		return
	}
	req := service.Request{
		Chat:     session,
		Profile:  profile,
		UserID:   query.From.ID,
		Username: query.From.UserName,
		ChatID:   query.From.ID,
	}
	messageID := 0
	if query.Message != nil && query.Message.Chat != nil {
		req.ChatID = query.Message.Chat.ID
		messageID = query.Message.MessageID
	}

	action, err := callback.Parse(query.Data)
	if err != nil {
		d.logger.Debug("rejected callback", zap.String("data", query.Data), zap.Error(err))
		d.answer(ctx, session, query.ID, "Unknown action")
		return
	}

	toast, err := d.runAction(ctx, req, messageID, action)
	if err != nil {
		d.logger.Warn("handle callback", zap.String("action", action.Encode()), zap.Int64("user_id", req.UserID), zap.Error(err))
		toast = "Something went wrong, please try again later."
		if appErr := appErrors.FromError(err); appErr.Status < http.StatusInternalServerError {
			toast = appErr.Message
		}
	}
	d.answer(ctx, session, query.ID, toast)
}

func (d *Dispatcher) runAction(ctx context.Context, req service.Request, messageID int, action callback.Action) (string, error) {
	switch a := action.(type) {
	case callback.Download:
		if !req.Profile.AllowsSearch() {
			return "Search is not available on this bot", nil
		}
		outcome, err := d.svc.Search.HandleDownloadClick(ctx, req, a.Token)
		switch {
		case err != nil:
			return "", err
		case outcome.Expired:
			return "⌛ Link expired", nil
		case outcome.NeedsStart:
			return "Start the bot in private first", nil
		default:
			return "✅ Link sent to your private chat", nil
		}
	case callback.HowTo:
		return "", d.svc.Search.HandleHowTo(ctx, req)
	case callback.ToggleForceSub:
		return d.applySetting(ctx, req, messageID, d.svc.Settings.ToggleForceSub)
	case callback.SetTimer:
		return d.applySetting(ctx, req, messageID, func(ctx context.Context) (models.AccessPolicy, error) {
			return d.svc.Settings.SetDeleteTimer(ctx, a.Value)
		})
	case callback.SetShortener:
		return d.applySetting(ctx, req, messageID, func(ctx context.Context) (models.AccessPolicy, error) {
			return d.svc.Settings.SetShortener(ctx, string(a.Kind))
		})
	default:
		return "", fmt.Errorf("unhandled callback action %T", action)
	}
}

func (d *Dispatcher) applySetting(ctx context.Context, req service.Request, messageID int, apply func(context.Context) (models.AccessPolicy, error)) (string, error) {
	if !d.telegram.IsAdmin(req.UserID) {
		return "⛔ Admins only", nil
	}
	policy, err := apply(ctx)
	if err != nil {
		return "", err
	}
	d.svc.Activity.Recordf(ctx, req, "Changed settings from the menu")
	if messageID != 0 {
		text, keyboard := renderSettings(policy)
		if err := req.Chat.EditText(ctx, req.ChatID, messageID, text, keyboard); err != nil {
			d.logger.Warn("refresh settings menu", zap.Error(err))
		}
	}
	return "✅ Updated", nil
}

func (d *Dispatcher) answer(ctx context.Context, session Session, callbackID, text string) {
	if err := session.AnswerCallback(ctx, callbackID, text); err != nil {
		d.logger.Debug("answer callback", zap.Error(err))
	}
}

func updateChatID(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	}
	return 0
}
