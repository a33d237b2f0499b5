package bot

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/internal/service"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
	"github.com/noah-isme/clonebot/pkg/telegram"
)

// PrimaryID is the profile id of the bot configured with TELEGRAM_TOKEN.
const PrimaryID = "primary"

// Poller is a Session that can long-poll for updates.
type Poller interface {
	Session
	Identity() telegram.Identity
	Updates(timeout int) tgbotapi.UpdatesChannel
	StopUpdates()
}

type restorer interface {
	Restore(ctx context.Context) (int, error)
}

type instance struct {
	profile models.BotProfile
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager runs one polling loop per bot identity, all sharing a Dispatcher.
type Manager struct {
	dispatcher  *Dispatcher
	metrics     *service.MetricsService
	logger      *zap.Logger
	pollTimeout int
	connect     func(token string) (Poller, error)

	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[string]*instance
}

// NewManager builds a Manager that connects bots with opts.
func NewManager(dispatcher *Dispatcher, opts telegram.Options, pollTimeout int, metrics *service.MetricsService, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		dispatcher:  dispatcher,
		metrics:     metrics,
		logger:      logger,
		pollTimeout: pollTimeout,
		connect: func(token string) (Poller, error) {
			bot, err := telegram.New(token, opts)
			if err != nil {
				return nil, err
			}
			return bot, nil
		},
		base:    base,
		cancel:  cancel,
		running: map[string]*instance{},
	}
}

// PrimaryProfile describes the admin-capable bot.
func PrimaryProfile(identity telegram.Identity) models.BotProfile {
	return models.BotProfile{
		ID:         PrimaryID,
		Username:   identity.Username,
		Primary:    true,
		Visibility: models.VisibilityPublic,
	}
}

// Start connects token and polls it under profile. Loops outlive ctx; they end on Stop or
// Shutdown.
func (m *Manager) Start(ctx context.Context, profile models.BotProfile, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Running(profile.ID) {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("bot %s is already running", profile.ID))
	}
	poller, err := m.connect(token)
	if err != nil {
		return fmt.Errorf("connect bot %s: %w", profile.ID, err)
	}
	return m.Attach(profile, poller)
}

// Attach polls an already connected bot under profile.
func (m *Manager) Attach(profile models.BotProfile, poller Poller) error {
	if profile.Username == "" {
		profile.Username = poller.Identity().Username
	}

	m.mu.Lock()
	if _, exists := m.running[profile.ID]; exists {
		m.mu.Unlock()
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("bot %s is already running", profile.ID))
	}
	if m.base.Err() != nil {
		m.mu.Unlock()
		return fmt.Errorf("bot manager is shut down")
	}
	ctx, cancel := context.WithCancel(m.base)
	inst := &instance{profile: profile, cancel: cancel, done: make(chan struct{})}
	m.running[profile.ID] = inst
	count := len(m.running)
	m.mu.Unlock()

	m.metrics.SetRunningBots(count)
	go m.poll(ctx, inst, poller)
	m.logger.Info("bot started", zap.String("bot", profile.Username), zap.String("id", profile.ID), zap.Bool("primary", profile.Primary))
	return nil
}

// poll handles updates one at a time so a bot never processes two updates concurrently.
func (m *Manager) poll(ctx context.Context, inst *instance, poller Poller) {
	defer close(inst.done)
	defer poller.StopUpdates()

	updates := poller.Updates(m.pollTimeout)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				m.logger.Warn("update channel closed", zap.String("bot", inst.profile.Username))
				m.forget(inst.profile.ID, inst)
				return
			}
			m.dispatcher.Handle(ctx, poller, inst.profile, update)
		}
	}
}

// Stop ends the loop of bot id and reports whether it was running.
func (m *Manager) Stop(id string) bool {
	m.mu.Lock()
	inst, ok := m.running[id]
	if ok {
		delete(m.running, id)
	}
	count := len(m.running)
	m.mu.Unlock()
	if !ok {
		return false
	}
	inst.cancel()
	<-inst.done
	m.metrics.SetRunningBots(count)
	m.logger.Info("bot stopped", zap.String("bot", inst.profile.Username), zap.String("id", id))
	return true
}

func (m *Manager) forget(id string, inst *instance) {
	m.mu.Lock()
	if m.running[id] == inst {
		delete(m.running, id)
	}
	count := len(m.running)
	m.mu.Unlock()
	m.metrics.SetRunningBots(count)
}

// Running reports whether bot id is polling.
func (m *Manager) Running(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[id]
	return ok
}

// Profiles lists the profiles of every running bot.
func (m *Manager) Profiles() []models.BotProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.BotProfile, 0, len(m.running))
	for _, inst := range m.running {
		out = append(out, inst.profile)
	}
	return out
}

// StartAll attaches the primary bot and restores every persisted clone.
func (m *Manager) StartAll(ctx context.Context, primary Poller, clones restorer) error {
	if err := m.Attach(PrimaryProfile(primary.Identity()), primary); err != nil {
		return err
	}
	restored, err := clones.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore clones: %w", err)
	}
	m.logger.Info("clones restored", zap.Int("count", restored))
	return nil
}

// Shutdown stops every loop and waits for in-flight updates to finish.
func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	instances := make([]*instance, 0, len(m.running))
	for id, inst := range m.running {
		instances = append(instances, inst)
		delete(m.running, id)
	}
	m.mu.Unlock()
	for _, inst := range instances {
		<-inst.done
	}
	m.metrics.SetRunningBots(0)
}
