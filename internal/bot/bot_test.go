package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/internal/repository"
	"github.com/noah-isme/clonebot/internal/service"
	"github.com/noah-isme/clonebot/pkg/config"
	"github.com/noah-isme/clonebot/pkg/jobs"
	"github.com/noah-isme/clonebot/pkg/secret"
	"github.com/noah-isme/clonebot/pkg/storage"
	"github.com/noah-isme/clonebot/pkg/telegram"
)

const (
	adminID  int64 = 42
	userID   int64 = 7
	groupID  int64 = -1001
	cloneTok       = "123456:ABCdef_ghi"
)

type sentMessage struct {
	chatID   int64
	text     string
	keyboard telegram.Keyboard
}

type sessionStub struct {
	mu        sync.Mutex
	identity  telegram.Identity
	sent      []sentMessage
	edits     []sentMessage
	documents []string
	answers   []string
	deleted   []int
	nextID    int
	updates   chan tgbotapi.Update
	stopped   bool
}

func newSession(username string) *sessionStub {
	return &sessionStub{identity: telegram.Identity{Username: username}, updates: make(chan tgbotapi.Update, 4)}
}

func (s *sessionStub) SendText(_ context.Context, chatID int64, text string, keyboard telegram.Keyboard) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.sent = append(s.sent, sentMessage{chatID: chatID, text: text, keyboard: keyboard})
	return s.nextID, nil
}

func (s *sessionStub) EditText(_ context.Context, chatID int64, _ int, text string, keyboard telegram.Keyboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, sentMessage{chatID: chatID, text: text, keyboard: keyboard})
	return nil
}

func (s *sessionStub) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, messageID)
	return nil
}

func (s *sessionStub) MemberStatus(context.Context, string, int64) (string, error) {
	return telegram.StatusMember, nil
}

func (s *sessionStub) SendDocument(_ context.Context, _ int64, name string, _ []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents = append(s.documents, name)
	return nil
}

func (s *sessionStub) AnswerCallback(_ context.Context, _ string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, text)
	return nil
}

func (s *sessionStub) Identity() telegram.Identity { return s.identity }

func (s *sessionStub) Updates(int) tgbotapi.UpdatesChannel { return s.updates }

func (s *sessionStub) StopUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *sessionStub) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

func (s *sessionStub) last() sentMessage {
	msgs := s.messages()
	if len(msgs) == 0 {
		return sentMessage{}
	}
	return msgs[len(msgs)-1]
}

type queueStub struct {
	jobs []jobs.Job
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type verifierStub struct{}

func (verifierStub) Verify(context.Context, string) (telegram.Identity, error) {
	return telegram.Identity{ID: 123456, Username: "clone_bot"}, nil
}

type fixture struct {
	dispatcher *Dispatcher
	manager    *Manager
	services   Services
	queue      *queueStub
	vault      *service.TokenVault
}

func testConfig() config.Config {
	return config.Config{
		Telegram: config.TelegramConfig{AdminIDs: []int64{adminID}},
		Search: config.SearchConfig{
			Limit:            5,
			DefaultCaption:   "🔍 Search Result",
			DefaultShortener: "None",
		},
		Clone: config.CloneConfig{VerifyAttempts: 1},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewJSONFileStore(t.TempDir())
	require.NoError(t, err)
	cfg := testConfig()
	ctx := context.Background()

	corpus := service.NewCorpusService(repository.NewFileRepository(store), nil)
	require.NoError(t, corpus.ReplaceAll(ctx, []models.FileRecord{
		{ID: "1", Filename: "Avengers Endgame 2019", Size: "2 GB", DownloadTarget: "https://files.example/1"},
		{ID: "2", Filename: "Avengers Infinity War", Size: "1.8 GB", DownloadTarget: "https://files.example/2"},
		{ID: "3", Filename: "Iron Man", Size: "900 MB", DownloadTarget: "https://files.example/3"},
	}))

	settings := service.NewSettingsService(repository.NewSettingsRepository(store), nil, nil, cfg)
	vault := service.NewTokenVault(repository.NewMemoryTokenRepository(100, time.Hour), nil, nil)
	messenger := service.NewEphemeralMessenger(nil, nil)
	queue := &queueStub{}
	users := service.NewUserService(repository.NewUserRepository(store), queue, nil)
	clones := service.NewCloneService(repository.NewBotRepository(store), verifierStub{}, secret.NewBox("test"), nil, nil, cfg)

	svc := Services{
		Search: service.NewSearchService(service.SearchServiceDeps{
			Settings:  settings,
			Corpus:    corpus,
			Tokens:    vault,
			Messenger: messenger,
		}, nil, cfg),
		Links: service.NewLinkService(service.LinkServiceDeps{
			Corpus:   corpus,
			Tokens:   vault,
			Settings: settings,
			Uploader: service.NewUploadClient(cfg.Upload, nil),
		}, nil, nil, cfg),
		Clones:    clones,
		Settings:  settings,
		Users:     users,
		Stats:     service.NewStatsService(users, corpus, clones, vault),
		Export:    service.NewExportService(corpus, nil),
		Auth:      service.NewAuthService(cfg.Telegram, nil, service.AuthConfig{AccessTokenSecret: "s", AccessTokenExpiry: time.Hour, Issuer: "clonebot"}),
		Messenger: messenger,
	}
	dispatcher := NewDispatcher(svc, cfg, nil)
	manager := NewManager(dispatcher, telegram.Options{}, 1, nil, nil)
	manager.connect = func(string) (Poller, error) { return newSession("clone_bot"), nil }
	clones.SetRunner(manager)
	t.Cleanup(manager.Shutdown)

	return &fixture{dispatcher: dispatcher, manager: manager, services: svc, queue: queue, vault: vault}
}

func primary() models.BotProfile {
	return PrimaryProfile(telegram.Identity{Username: "main_bot"})
}

func textUpdate(chatID, from int64, chatType, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 99,
		From:      &tgbotapi.User{ID: from, UserName: "alice"},
		Chat:      &tgbotapi.Chat{ID: chatID, Type: chatType},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}}
	}
	return tgbotapi.Update{UpdateID: 1, Message: msg}
}

func callbackUpdate(chatID, from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: 2, CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{MessageID: 5, Chat: &tgbotapi.Chat{ID: chatID, Type: "supergroup"}},
		Data:    data,
	}}
}

func TestGroupTextSearchAndDownload(t *testing.T) {
	f := newFixture(t)
	session := newSession("main_bot")
	ctx := context.Background()

	f.dispatcher.Handle(ctx, session, primary(), textUpdate(groupID, userID, "supergroup", "avengers"))
	results := session.messages()
	require.Len(t, results, 2)
	assert.Contains(t, results[0].text, "Avengers Endgame 2019")
	assert.Contains(t, results[1].text, "Avengers Infinity War")
	data := results[0].keyboard[0][0].Data
	require.True(t, strings.HasPrefix(data, "dl:"))

	f.dispatcher.Handle(ctx, session, primary(), callbackUpdate(groupID, userID, data))
	delivery := session.last()
	assert.Equal(t, userID, delivery.chatID)
	assert.Equal(t, "https://files.example/1", delivery.keyboard[0][0].URL)
	assert.Equal(t, []string{"✅ Link sent to your private chat"}, session.answers)

	f.dispatcher.Handle(ctx, session, primary(), callbackUpdate(groupID, userID, data))
	assert.Equal(t, "⌛ Link expired", session.answers[1])
}

func TestPrivateTextIsNotASearch(t *testing.T) {
	f := newFixture(t)
	session := newSession("main_bot")
	f.dispatcher.Handle(context.Background(), session, primary(), textUpdate(userID, userID, "private", "avengers"))
	assert.Empty(t, session.messages())
}

func TestUnknownCallbackRejected(t *testing.T) {
	f := newFixture(t)
	session := newSession("main_bot")
	f.dispatcher.Handle(context.Background(), session, primary(), callbackUpdate(groupID, userID, "admin:drop-all"))
	assert.Equal(t, []string{"Unknown action"}, session.answers)
	assert.Empty(t, session.messages())
}

func TestCommandScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fileStore := models.BotProfile{ID: "c1", Username: "files_bot", Usage: models.UsageFileStore, Visibility: models.VisibilityPublic, OwnerID: 9}

	cases := []struct {
		name    string
		profile models.BotProfile
		from    int64
		text    string
		want    string
	}{
		{"admin command from user", primary(), userID, "/stats", "admins only"},
		{"clone from a clone", fileStore, adminID, "/clones", "main bot"},
		{"search on file store", fileStore, userID, "/search avengers", "does not offer search"},
		{"upload by stranger", fileStore, userID, "/upload https://x.example/a.mkv", "Only admins or the bot owner"},
		{"upload without target", fileStore, 9, "/upload https://x.example/a.mkv", "not configured"},
		{"stats for admin", primary(), adminID, "/stats", "Files: 3"},
		{"unknown command", primary(), userID, "/nope", "Unknown command"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session := newSession(tc.profile.Username)
			f.dispatcher.Handle(ctx, session, tc.profile, textUpdate(userID, tc.from, "private", tc.text))
			assert.Contains(t, session.last().text, tc.want)
		})
	}
}

func TestPrivateCloneIsOwnerOnly(t *testing.T) {
	f := newFixture(t)
	profile := models.BotProfile{ID: "c2", Username: "mine_bot", Usage: models.UsageFileStore, Visibility: models.VisibilityPrivate, OwnerID: 9}

	session := newSession("mine_bot")
	f.dispatcher.Handle(context.Background(), session, profile, textUpdate(userID, userID, "private", "/get 1"))
	assert.Contains(t, session.last().text, "private")

	session = newSession("mine_bot")
	f.dispatcher.Handle(context.Background(), session, profile, textUpdate(9, 9, "private", "/get 1"))
	assert.Contains(t, session.last().text, "Avengers Endgame 2019")
}

func TestSettingsMenuAndCallbacks(t *testing.T) {
	f := newFixture(t)
	session := newSession("main_bot")
	ctx := context.Background()

	f.dispatcher.Handle(ctx, session, primary(), textUpdate(adminID, adminID, "private", "/settings"))
	menu := session.last()
	assert.Contains(t, menu.text, "Force subscription: ❌ off")
	require.Len(t, menu.keyboard, 3)

	f.dispatcher.Handle(ctx, session, primary(), callbackUpdate(adminID, adminID, menu.keyboard[0][0].Data))
	require.Len(t, session.edits, 1)
	assert.Contains(t, session.edits[0].text, "Force subscription: ✅ on")
	assert.True(t, f.services.Settings.Policy(ctx).ForceSubscriptionEnabled)

	f.dispatcher.Handle(ctx, session, primary(), callbackUpdate(userID, userID, "timer:10m"))
	assert.Equal(t, "⛔ Admins only", session.answers[len(session.answers)-1])
	assert.Equal(t, "0m", f.services.Settings.Policy(ctx).DeleteTimer)

	f.dispatcher.Handle(ctx, session, primary(), textUpdate(adminID, adminID, "private", "/settimer 2h"))
	assert.Contains(t, session.last().text, "Delete timer: 2 hours")

	f.dispatcher.Handle(ctx, session, primary(), textUpdate(adminID, adminID, "private", "/settimer soon"))
	assert.True(t, strings.HasPrefix(session.last().text, "⚠️"))
}

func TestCloneLifecycle(t *testing.T) {
	f := newFixture(t)
	session := newSession("main_bot")
	ctx := context.Background()

	f.dispatcher.Handle(ctx, session, primary(), textUpdate(adminID, adminID, "private", "/clone private filestore "+cloneTok))
	assert.Contains(t, session.last().text, "Clone @clone_bot is up")
	assert.Equal(t, []int{99}, session.deleted)

	bots, err := f.services.Clones.List(ctx)
	require.NoError(t, err)
	require.Len(t, bots, 1)
	assert.NotContains(t, bots[0].SealedToken, cloneTok)
	assert.True(t, f.manager.Running(bots[0].ID))

	f.dispatcher.Handle(ctx, session, primary(), textUpdate(adminID, adminID, "private", "/clones"))
	assert.Contains(t, session.last().text, "🟢 running")

	f.dispatcher.Handle(ctx, session, primary(), textUpdate(adminID, adminID, "private", "/delclone 1"))
	assert.Contains(t, session.last().text, "deleted")
	assert.False(t, f.manager.Running(bots[0].ID))
}

func TestExportAndBroadcast(t *testing.T) {
	f := newFixture(t)
	session := newSession("main_bot")
	ctx := context.Background()

	f.dispatcher.Handle(ctx, session, primary(), textUpdate(userID, userID, "private", "/start"))
	f.dispatcher.Handle(ctx, session, primary(), textUpdate(adminID, adminID, "private", "/export pdf"))
	require.Len(t, session.documents, 1)
	assert.True(t, strings.HasSuffix(session.documents[0], ".pdf"))

	f.dispatcher.Handle(ctx, session, primary(), textUpdate(adminID, adminID, "private", "/broadcast hello"))
	assert.Contains(t, session.last().text, "queued for 1 users")
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, service.JobBroadcastMessage, f.queue.jobs[0].Type)
}

func TestPanicIsRecovered(t *testing.T) {
	cfg := testConfig()
	d := NewDispatcher(Services{}, cfg, nil)
	session := newSession("main_bot")
	assert.NotPanics(t, func() {
		d.Handle(context.Background(), session, primary(), textUpdate(groupID, userID, "group", "avengers"))
	})
	assert.Equal(t, genericFailure, session.last().text)
}

func TestManagerDispatchesAndStops(t *testing.T) {
	f := newFixture(t)
	session := newSession("main_bot")
	require.NoError(t, f.manager.Attach(primary(), session))
	assert.Error(t, f.manager.Attach(primary(), session))

	session.updates <- textUpdate(userID, userID, "private", "/help")
	require.Eventually(t, func() bool { return len(session.messages()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, session.last().text, "/search")
	assert.NotContains(t, session.last().text, "/broadcast")

	assert.True(t, f.manager.Stop(PrimaryID))
	assert.False(t, f.manager.Running(PrimaryID))
	assert.False(t, f.manager.Stop(PrimaryID))
	session.mu.Lock()
	assert.True(t, session.stopped)
	session.mu.Unlock()
}
