package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/clonebot/api/swagger"
	"github.com/noah-isme/clonebot/internal/bot"
	"github.com/noah-isme/clonebot/internal/handler"
	"github.com/noah-isme/clonebot/internal/middleware"
	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/internal/repository"
	"github.com/noah-isme/clonebot/internal/service"
	"github.com/noah-isme/clonebot/pkg/cache"
	"github.com/noah-isme/clonebot/pkg/config"
	"github.com/noah-isme/clonebot/pkg/database"
	"github.com/noah-isme/clonebot/pkg/jobs"
	"github.com/noah-isme/clonebot/pkg/logger"
	corsmiddleware "github.com/noah-isme/clonebot/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/clonebot/pkg/middleware/requestid"
	"github.com/noah-isme/clonebot/pkg/secret"
	"github.com/noah-isme/clonebot/pkg/storage"
	"github.com/noah-isme/clonebot/pkg/telegram"
)

// @title Clonebot API
// @version 1.0.0
// @description Search, file store and clone management API for the Telegram bot platform.
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("clonebot stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.Check{}

	store, closeStore, err := openStore(ctx, cfg, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	tokenRepo, closeTokens, err := openTokenRepository(ctx, cfg, logr, checks)
	if err != nil {
		return err
	}
	defer closeTokens()

	opts := telegram.Options{Logger: logr}
	primary, err := telegram.New(cfg.Telegram.Token, opts)
	if err != nil {
		return fmt.Errorf("connect primary bot: %w", err)
	}

	mux := jobs.NewMux()
	queue := jobs.NewQueue("clonebot", mux.Process, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.Retries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr,
	})

	validate := validator.New()
	metrics := service.NewMetricsService()
	httpClient := &http.Client{}

	fileRepo := repository.NewFileRepository(store)
	settingsRepo := repository.NewSettingsRepository(store)
	userRepo := repository.NewUserRepository(store)
	botRepo := repository.NewBotRepository(store)

	corpus := service.NewCorpusService(fileRepo, logr)
	settings := service.NewSettingsService(settingsRepo, validate, logr, *cfg)
	vault := service.NewTokenVault(tokenRepo, metrics, logr)
	gate := service.NewAccessGate(logr)
	messenger := service.NewEphemeralMessenger(queue, logr)
	shortener := service.NewShortener(cfg.Shortener, httpClient, logr)
	activity := service.NewActivityService(settings, primary, queue, logr)
	users := service.NewUserService(userRepo, queue, logr)
	clones := service.NewCloneService(botRepo, opts, secret.NewBox(cfg.Clone.TokenSecret), validate, logr, *cfg)
	auth := service.NewAuthService(cfg.Telegram, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	search := service.NewSearchService(service.SearchServiceDeps{
		Settings:  settings,
		Gate:      gate,
		Corpus:    corpus,
		Tokens:    vault,
		Messenger: messenger,
		Shortener: shortener,
		Activity:  activity,
		Metrics:   metrics,
	}, logr, *cfg)
	links := service.NewLinkService(service.LinkServiceDeps{
		Corpus:    corpus,
		Tokens:    vault,
		Settings:  settings,
		Uploader:  service.NewUploadClient(cfg.Upload, httpClient),
		Shortener: shortener,
		Poster:    primary,
	}, validate, logr, *cfg)
	stats := service.NewStatsService(users, corpus, clones, vault)
	exports := service.NewExportService(corpus, logr)

	mux.Handle(service.JobDeleteMessage, messenger.HandleDeleteJob)
	mux.Handle(service.JobActivityLog, activity.HandleJob)
	mux.Handle(service.JobBroadcastMessage, users.HandleBroadcastJob)
	queue.Start(ctx)
	defer queue.Stop()

	dispatcher := bot.NewDispatcher(bot.Services{
		Search:    search,
		Links:     links,
		Clones:    clones,
		Settings:  settings,
		Users:     users,
		Stats:     stats,
		Export:    exports,
		Auth:      auth,
		Activity:  activity,
		Metrics:   metrics,
		Messenger: messenger,
		Gate:      gate,
	}, *cfg, logr)
	manager := bot.NewManager(dispatcher, opts, cfg.Telegram.PollTimeout, metrics, logr)
	clones.SetRunner(manager)
	if err := manager.StartAll(ctx, primary, clones); err != nil {
		manager.Shutdown()
		return err
	}
	defer manager.Shutdown()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.Register(r, cfg.APIPrefix, handler.Handlers{
		Redirect: handler.NewRedirectHandler(vault, logr),
		Search:   handler.NewSearchHandler(search),
		Files:    handler.NewFileHandler(corpus, links),
		Settings: handler.NewSettingsHandler(settings),
		Bots:     handler.NewBotHandler(clones, manager),
		Stats:    handler.NewStatsHandler(stats, exports),
		Metrics:  handler.NewMetricsHandler(metrics, checks),
	}, auth)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "bot", primary.Identity().Username)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http server shutdown", zap.Error(err))
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, checks map[string]handler.Check) (storage.Store, func(), error) {
	if cfg.Store.Backend == config.StoreBackendPostgres {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := storage.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate store: %w", err)
		}
		checks["postgres"] = db.PingContext
		return store, func() { _ = db.Close() }, nil
	}

	store, err := storage.NewJSONFileStore(cfg.Store.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open file store: %w", err)
	}
	return store, func() {}, nil
}

type tokenRepository interface {
	Put(ctx context.Context, token models.RedemptionToken) (bool, error)
	Take(ctx context.Context, token string) (*models.RedemptionToken, error)
	Count(ctx context.Context) (int, error)
}

func openTokenRepository(ctx context.Context, cfg *config.Config, logr *zap.Logger, checks map[string]handler.Check) (tokenRepository, func(), error) {
	if cfg.Tokens.Backend == config.TokenBackendRedis {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return repository.NewRedisTokenRepository(client, cfg.Tokens.TTL, logr), closeRedis(client), nil
	}
	return repository.NewMemoryTokenRepository(cfg.Tokens.MemoryCapacity, cfg.Tokens.TTL), func() {}, nil
}

func closeRedis(client *redis.Client) func() {
	return func() { _ = client.Close() }
}
