package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/noah-isme/clonebot/internal/callback"
	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/internal/service"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
	"github.com/noah-isme/clonebot/pkg/telegram"
)

var (
	menuTimers     = []string{"0m", "5m", "10m", "30m", "1h"}
	menuShorteners = []models.ShortenerKind{models.ShortenerGPLinks, models.ShortenerTinyURL, models.ShortenerNone}
)

func renderSettings(policy models.AccessPolicy) (string, telegram.Keyboard) {
	var b strings.Builder
	b.WriteString("⚙️ <b>Settings</b>\n\n")
	forceSub := "❌ off"
	if policy.ForceSubscriptionEnabled {
		forceSub = "✅ on"
	}
	fmt.Fprintf(&b, "📢 Force subscription: %s\n", forceSub)
	channels := "none"
	if len(policy.RequiredChannels) > 0 {
		names := make([]string, 0, len(policy.RequiredChannels))
		for _, c := range policy.RequiredChannels {
			names = append(names, "@"+html.EscapeString(c))
		}
		channels = strings.Join(names, ", ")
	}
	fmt.Fprintf(&b, "📋 Required channels: %s\n", channels)
	fmt.Fprintf(&b, "⏱ Delete timer: %s\n", service.HumanizeDeleteTimer(policy.DeleteTimer))
	fmt.Fprintf(&b, "🏷 Caption: %s\n", html.EscapeString(policy.SearchCaption))
	fmt.Fprintf(&b, "🔗 Shortener: %s\n", policy.Shortener)
	fmt.Fprintf(&b, "🗄 DB channel: %s\n", channelLabel(policy.DBChannelID))
	fmt.Fprintf(&b, "📝 Log channel: %s", channelLabel(policy.LogChannelID))

	toggle := "Enable force subscription"
	if policy.ForceSubscriptionEnabled {
		toggle = "Disable force subscription"
	}
	keyboard := telegram.Keyboard{}.Row(telegram.DataButton(toggle, callback.ToggleForceSub{}.Encode()))

	timers := make([]telegram.Button, 0, len(menuTimers))
	for _, t := range menuTimers {
		label := t
		if strings.EqualFold(t, policy.DeleteTimer) {
			label = "• " + t
		}
		timers = append(timers, telegram.DataButton(label, callback.SetTimer{Value: t}.Encode()))
	}
	keyboard = keyboard.Row(timers...)

	shorteners := make([]telegram.Button, 0, len(menuShorteners))
	for _, kind := range menuShorteners {
		label := string(kind)
		if kind == policy.Shortener {
			label = "• " + label
		}
		shorteners = append(shorteners, telegram.DataButton(label, callback.SetShortener{Kind: kind}.Encode()))
	}
	return b.String(), keyboard.Row(shorteners...)
}

func channelLabel(id int64) string {
	if id == 0 {
		return "not set"
	}
	return fmt.Sprintf("<code>%d</code>", id)
}

func (d *Dispatcher) settings(ctx context.Context, in input) error {
	if !d.admit(ctx, in) {
		return nil
	}
	text, keyboard := renderSettings(d.svc.Settings.Policy(ctx))
	_, err := in.req.Chat.SendText(ctx, in.req.ChatID, text, keyboard)
	return err
}

// updated applies a settings mutation and echoes the resulting policy.
func (d *Dispatcher) updated(ctx context.Context, in input, usage string, apply func(ctx context.Context, arg string) (models.AccessPolicy, error)) error {
	if in.args == "" {
		d.send(ctx, in, "Usage: "+html.EscapeString(usage))
		return nil
	}
	policy, err := apply(ctx, in.args)
	if err != nil {
		return err
	}
	d.svc.Activity.Recordf(ctx, in.req, "Changed settings: %s", usage)
	text, _ := renderSettings(policy)
	d.send(ctx, in, "✅ Updated\n\n"+text)
	return nil
}

func (d *Dispatcher) forceSub(ctx context.Context, in input) error {
	return d.updated(ctx, in, "/forcesub <on|off>", func(ctx context.Context, arg string) (models.AccessPolicy, error) {
		switch strings.ToLower(arg) {
		case "on", "enable", "true":
			return d.svc.Settings.SetForceSub(ctx, true)
		case "off", "disable", "false":
			return d.svc.Settings.SetForceSub(ctx, false)
		}
		return models.AccessPolicy{}, appErrors.Clone(appErrors.ErrValidation, "use /forcesub on or /forcesub off")
	})
}

func (d *Dispatcher) addChannel(ctx context.Context, in input) error {
	return d.updated(ctx, in, "/addchannel <@channel>", d.svc.Settings.AddChannel)
}

func (d *Dispatcher) removeChannel(ctx context.Context, in input) error {
	return d.updated(ctx, in, "/delchannel <@channel>", d.svc.Settings.RemoveChannel)
}

func (d *Dispatcher) setTimer(ctx context.Context, in input) error {
	return d.updated(ctx, in, "/settimer <10m|1h|0m>", d.svc.Settings.SetDeleteTimer)
}

func (d *Dispatcher) setCaption(ctx context.Context, in input) error {
	return d.updated(ctx, in, "/setcaption <text>", d.svc.Settings.SetCaption)
}

func (d *Dispatcher) setShortener(ctx context.Context, in input) error {
	return d.updated(ctx, in, "/shortener <GPLinks|TinyURL|None>", d.svc.Settings.SetShortener)
}

func (d *Dispatcher) setDBChannel(ctx context.Context, in input) error {
	return d.updated(ctx, in, "/setdbchannel <-100...>", d.svc.Settings.SetDBChannel)
}

func (d *Dispatcher) setLogChannel(ctx context.Context, in input) error {
	return d.updated(ctx, in, "/setlogchannel <-100...>", d.svc.Settings.SetLogChannel)
}
