package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/dto"
	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/internal/service"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
	"github.com/noah-isme/clonebot/pkg/export"
)

// maxChunk keeps multi-record replies under the 4096 character message limit.
const maxChunk = 3500

func (d *Dispatcher) registerCommands() {
	d.register("start", scopeAny, "Start the bot", d.start)
	d.register("help", scopeAny, "Show this help", d.help)
	d.register("search", scopeSearch, "/search <query> - search files", d.search)

	d.register("upload", scopeFileStore, "/upload <url> - store a file", d.upload)
	d.register("get", scopeFileStore, "/get <id> - show a stored file", d.get)
	d.register("batch", scopeFileStore, "/batch <from> <to> - show a range of files", d.batch)
	d.register("genlink", scopeFileStore, "/genlink <id> - one-time download link", d.genLink)
	d.register("batchgen", scopeFileStore, "/batchgen <from> <to> - links for a range", d.batchGen)

	d.register("clone", scopePrimaryAdmin, "/clone <public|private> <searchbot|filestore> <token>", d.clone)
	d.register("clones", scopePrimaryAdmin, "/clones - list cloned bots", d.listClones)
	d.register("delclone", scopePrimaryAdmin, "/delclone <n> - delete a cloned bot", d.deleteClone)

	d.register("settings", scopeAdmin, "/settings - search settings menu", d.settings)
	d.register("forcesub", scopeAdmin, "/forcesub <on|off>", d.forceSub)
	d.register("addchannel", scopeAdmin, "/addchannel <@channel>", d.addChannel)
	d.register("delchannel", scopeAdmin, "/delchannel <@channel>", d.removeChannel)
	d.register("settimer", scopeAdmin, "/settimer <10m|1h|0m>", d.setTimer)
	d.register("setcaption", scopeAdmin, "/setcaption <text>", d.setCaption)
	d.register("shortener", scopeAdmin, "/shortener <GPLinks|TinyURL|None>", d.setShortener)
	d.register("setdbchannel", scopeAdmin, "/setdbchannel <-100...>", d.setDBChannel)
	d.register("setlogchannel", scopeAdmin, "/setlogchannel <-100...>", d.setLogChannel)
	d.register("stats", scopeAdmin, "/stats - usage counters", d.stats)
	d.register("broadcast", scopeAdmin, "/broadcast <text> - message every user", d.broadcast)
	d.register("export", scopeAdmin, "/export <csv|pdf> - corpus listing", d.export)
	d.register("apitoken", scopeAdmin, "/apitoken - admin API token", d.apiToken)
}

func (d *Dispatcher) start(ctx context.Context, in input) error {
	created, err := d.svc.Users.Touch(ctx, models.BotUser{ID: in.req.UserID, Username: in.req.Username})
	if err != nil {
		d.logger.Warn("record user", zap.Int64("user_id", in.req.UserID), zap.Error(err))
	}
	if created {
		d.svc.Activity.Recordf(ctx, in.req, "Started the bot")
	}

	profile := in.req.Profile
	var text string
	switch {
	case profile.Primary:
		text = "👋 Welcome! Send /search <name> to find files, or /help for everything I can do."
	case profile.Usage == models.UsageFileStore:
		text = "👋 Welcome! I store files and hand out one-time download links. Send /help to get started."
	default:
		text = "👋 Welcome! Add me to a group and type a name to search, or use /search <name> here."
	}
	d.send(ctx, in, text)
	return nil
}

func (d *Dispatcher) help(ctx context.Context, in input) error {
	var b strings.Builder
	b.WriteString("📖 <b>Commands</b>\n")
	for _, name := range d.order {
		cmd := d.commands[name]
		if !d.allowed(cmd.scope, in) {
			continue
		}
		summary := cmd.summary
		if !strings.HasPrefix(summary, "/") {
			summary = "/" + name + " - " + summary
		}
		b.WriteString(html.EscapeString(summary))
		b.WriteString("\n")
	}
	d.send(ctx, in, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (d *Dispatcher) search(ctx context.Context, in input) error {
	_, err := d.svc.Search.HandleQuery(ctx, in.req, in.args)
	return err
}

func (d *Dispatcher) canManageFiles(in input) bool {
	if d.telegram.IsAdmin(in.req.UserID) {
		return true
	}
	profile := in.req.Profile
	return !profile.Primary && profile.OwnerID != 0 && profile.OwnerID == in.req.UserID
}

func (d *Dispatcher) upload(ctx context.Context, in input) error {
	if !d.canManageFiles(in) {
		d.send(ctx, in, "⛔ Only admins or the bot owner can upload files.")
		return nil
	}
	if in.args == "" {
		d.send(ctx, in, "Usage: /upload <url>")
		return nil
	}
	d.send(ctx, in, "⏳ Uploading...")
	record, err := d.svc.Links.Upload(ctx, in.args)
	if err != nil {
		return err
	}
	d.svc.Activity.Recordf(ctx, in.req, "Uploaded file %s", record.ID)
	d.send(ctx, in, "✅ File stored\n\n"+service.FormatFileRecord(*record))
	return nil
}

func (d *Dispatcher) get(ctx context.Context, in input) error {
	if in.args == "" {
		d.send(ctx, in, "Usage: /get <id>")
		return nil
	}
	if !d.admit(ctx, in) {
		return nil
	}
	record, err := d.svc.Links.Get(ctx, in.args)
	if err != nil {
		return err
	}
	d.send(ctx, in, service.FormatFileRecord(*record))
	return nil
}

func (d *Dispatcher) batch(ctx context.Context, in input) error {
	from, to, ok := parseRange(in.args)
	if !ok {
		d.send(ctx, in, "Usage: /batch <from> <to>")
		return nil
	}
	if !d.admit(ctx, in) {
		return nil
	}
	records, err := d.svc.Links.Batch(ctx, from, to)
	if err != nil {
		return err
	}
	blocks := make([]string, 0, len(records))
	for _, record := range records {
		blocks = append(blocks, service.FormatFileRecord(record))
	}
	d.sendChunks(ctx, in, blocks)
	return nil
}

func (d *Dispatcher) genLink(ctx context.Context, in input) error {
	if in.args == "" {
		d.send(ctx, in, "Usage: /genlink <id>")
		return nil
	}
	if !d.admit(ctx, in) {
		return nil
	}
	link, err := d.svc.Links.GenLink(ctx, in.args)
	if err != nil {
		return err
	}
	d.svc.Activity.Recordf(ctx, in.req, "Generated link for file %s", link.FileID)
	d.send(ctx, in, formatLink(link))
	return nil
}

func (d *Dispatcher) batchGen(ctx context.Context, in input) error {
	from, to, ok := parseRange(in.args)
	if !ok {
		d.send(ctx, in, "Usage: /batchgen <from> <to>")
		return nil
	}
	if !d.admit(ctx, in) {
		return nil
	}
	links, err := d.svc.Links.BatchGen(ctx, from, to)
	if err != nil {
		return err
	}
	blocks := make([]string, 0, len(links))
	for _, link := range links {
		blocks = append(blocks, formatLink(link))
	}
	d.svc.Activity.Recordf(ctx, in.req, "Generated links for files %d-%d", from, to)
	d.sendChunks(ctx, in, blocks)
	return nil
}

func (d *Dispatcher) clone(ctx context.Context, in input) error {
	fields := strings.Fields(in.args)
	if len(fields) != 3 {
		d.send(ctx, in, "Usage: /clone <public|private> <searchbot|filestore> <bot token>")
		return nil
	}
	// The command carries a bot token; keep it out of the chat history.
	if err := in.req.Chat.DeleteMessage(ctx, in.req.ChatID, in.messageID); err != nil {
		d.logger.Debug("delete clone command", zap.Error(err))
	}
	bot, err := d.svc.Clones.Create(ctx, dto.CreateCloneRequest{
		OwnerID:    in.req.UserID,
		Visibility: fields[0],
		Usage:      fields[1],
		Token:      fields[2],
	})
	if err != nil {
		return err
	}
	d.svc.Activity.Recordf(ctx, in.req, "Cloned @%s (%s %s)", bot.Username, bot.Visibility, bot.Usage)
	d.send(ctx, in, fmt.Sprintf("✅ Clone @%s is up (%s, %s).", html.EscapeString(bot.Username), bot.Visibility, bot.Usage))
	return nil
}

func (d *Dispatcher) listClones(ctx context.Context, in input) error {
	bots, err := d.svc.Clones.List(ctx)
	if err != nil {
		return err
	}
	if len(bots) == 0 {
		d.send(ctx, in, "No cloned bots yet. Use /clone to create one.")
		return nil
	}
	var b strings.Builder
	b.WriteString("🤖 <b>Cloned bots</b>\n")
	for i, bot := range bots {
		state := "🔴 stopped"
		if d.svc.Clones.Running(bot.ID) {
			state = "🟢 running"
		}
		fmt.Fprintf(&b, "\n%d. @%s - %s, %s, owner <code>%d</code> %s",
			i+1, html.EscapeString(bot.Username), bot.Visibility, bot.Usage, bot.OwnerID, state)
	}
	d.send(ctx, in, b.String())
	return nil
}

func (d *Dispatcher) deleteClone(ctx context.Context, in input) error {
	index, err := strconv.Atoi(in.args)
	if err != nil {
		d.send(ctx, in, "Usage: /delclone <number from /clones>")
		return nil
	}
	bot, err := d.svc.Clones.Delete(ctx, index)
	if err != nil {
		return err
	}
	d.svc.Activity.Recordf(ctx, in.req, "Deleted clone @%s", bot.Username)
	d.send(ctx, in, fmt.Sprintf("🗑 Clone @%s deleted.", html.EscapeString(bot.Username)))
	return nil
}

func (d *Dispatcher) stats(ctx context.Context, in input) error {
	stats := d.svc.Stats.Stats(ctx)
	d.send(ctx, in, fmt.Sprintf("📊 <b>Stats</b>\n\n👤 Users: %d\n📁 Files: %d\n🤖 Clones: %d\n🎟 Pending links: %d",
		stats.Users, stats.Files, stats.Clones, stats.PendingTokens))
	return nil
}

func (d *Dispatcher) broadcast(ctx context.Context, in input) error {
	queued, err := d.svc.Users.Broadcast(ctx, in.req.Chat, in.args)
	if err != nil {
		return err
	}
	d.svc.Activity.Recordf(ctx, in.req, "Broadcast to %d users", queued)
	d.send(ctx, in, fmt.Sprintf("📣 Broadcast queued for %d users.", queued))
	return nil
}

func (d *Dispatcher) export(ctx context.Context, in input) error {
	raw := in.args
	if raw == "" {
		raw = string(export.FormatCSV)
	}
	format, err := export.ParseFormat(raw)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "Usage: /export <csv|pdf>")
	}
	result, err := d.svc.Export.Generate(ctx, format)
	if err != nil {
		return err
	}
	caption := fmt.Sprintf("📦 %d files", result.Rows)
	return in.session.SendDocument(ctx, in.req.ChatID, result.Filename, result.Data, caption)
}

func (d *Dispatcher) apiToken(ctx context.Context, in input) error {
	token, expiresAt, err := d.svc.Auth.IssueAdminToken(in.req.UserID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("🔑 Admin API token (expires %s):\n\n<code>%s</code>",
		expiresAt.UTC().Format(time.RFC1123), html.EscapeString(token))
	id, err := in.req.Chat.SendText(ctx, in.req.UserID, text, nil)
	if err != nil {
		return err
	}
	d.svc.Messenger.ScheduleDeletion(in.req.Chat, in.req.UserID, id, d.svc.Settings.Policy(ctx).DeleteTimer)
	if !in.private {
		d.send(ctx, in, "🔑 Token sent to your private chat.")
	}
	return nil
}

func (d *Dispatcher) sendChunks(ctx context.Context, in input, blocks []string) {
	var b strings.Builder
	for _, block := range blocks {
		if b.Len() > 0 && b.Len()+len(block)+2 > maxChunk {
			d.send(ctx, in, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block)
	}
	if b.Len() > 0 {
		d.send(ctx, in, b.String())
	}
}

func formatLink(link dto.GeneratedLink) string {
	return fmt.Sprintf("🆔 %s - %s\n🔗 %s", html.EscapeString(link.FileID), html.EscapeString(link.Filename), html.EscapeString(link.Link))
}

func parseRange(args string) (int, int, bool) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return 0, 0, false
	}
	from, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, false
	}
	to, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, false
	}
	return from, to, true
}
