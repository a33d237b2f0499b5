package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store backends.
const (
	StoreBackendFile     = "file"
	StoreBackendPostgres = "postgres"
)

// Token vault backends.
const (
	TokenBackendMemory = "memory"
	TokenBackendRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Telegram  TelegramConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Tokens    TokenConfig
	Search    SearchConfig
	Shortener ShortenerConfig
	Upload    UploadConfig
	Clone     CloneConfig
	Jobs      JobsConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
}

// TelegramConfig holds the primary bot identity and the admin roster.
type TelegramConfig struct {
	Token            string
	AdminIDs         []int64
	LogChannelID     int64
	DBChannelID      int64
	PublicBaseURL    string
	HowToDownloadURL string
	PollTimeout      int
}

// StoreConfig selects the record store used for files, settings, users and clones.
type StoreConfig struct {
	Backend string
	Dir     string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TokenConfig tunes redemption token storage.
type TokenConfig struct {
	Backend        string
	TTL            time.Duration
	MemoryCapacity int
}

// SearchConfig holds search defaults applied when no admin override exists.
type SearchConfig struct {
	Limit                   int
	DefaultCaption          string
	DefaultForceSubChannels []string
	DefaultShortener        string
}

// ShortenerConfig configures the URL shortener providers.
type ShortenerConfig struct {
	APIKey     string
	GPLinksURL string
	TinyURLURL string
	Timeout    time.Duration
}

// UploadConfig configures the external upload target.
type UploadConfig struct {
	APIKey  string
	APIURL  string
	Timeout time.Duration
}

// CloneConfig controls cloned bot verification and token sealing.
type CloneConfig struct {
	TokenSecret    string
	VerifyAttempts int
	VerifyBase     time.Duration
	VerifyMax      time.Duration
}

// JobsConfig tunes the background worker queue.
type JobsConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ErrInvalidConfig marks configuration problems that must abort startup.
var ErrInvalidConfig = errors.New("invalid configuration")

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	adminIDs, err := parseIDs(v.GetString("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("%w: ADMIN_IDS: %v", ErrInvalidConfig, err)
	}

	cfg.Telegram = TelegramConfig{
		Token:            strings.TrimSpace(v.GetString("TELEGRAM_TOKEN")),
		AdminIDs:         adminIDs,
		LogChannelID:     v.GetInt64("LOG_CHANNEL_ID"),
		DBChannelID:      v.GetInt64("DB_CHANNEL_ID"),
		PublicBaseURL:    strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		HowToDownloadURL: v.GetString("HOW_TO_DOWNLOAD_URL"),
		PollTimeout:      v.GetInt("TELEGRAM_POLL_TIMEOUT"),
	}

	cfg.Store = StoreConfig{
		Backend: strings.ToLower(v.GetString("STORE_BACKEND")),
		Dir:     v.GetString("STORE_DIR"),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Tokens = TokenConfig{
		Backend:        strings.ToLower(v.GetString("TOKEN_BACKEND")),
		TTL:            parseDuration(v.GetString("TOKEN_TTL"), 24*time.Hour),
		MemoryCapacity: v.GetInt("TOKEN_MEMORY_CAPACITY"),
	}

	cfg.Search = SearchConfig{
		Limit:                   v.GetInt("SEARCH_LIMIT"),
		DefaultCaption:          v.GetString("DEFAULT_SEARCH_CAPTION"),
		DefaultForceSubChannels: splitAndTrim(v.GetString("FORCESUB_DEFAULT_CHANNELS")),
		DefaultShortener:        v.GetString("DEFAULT_SHORTENER"),
	}

	cfg.Shortener = ShortenerConfig{
		APIKey:     v.GetString("SHORTENER_API_KEY"),
		GPLinksURL: v.GetString("SHORTENER_GPLINKS_URL"),
		TinyURLURL: v.GetString("SHORTENER_TINYURL_URL"),
		Timeout:    parseDuration(v.GetString("SHORTENER_TIMEOUT"), 5*time.Second),
	}

	cfg.Upload = UploadConfig{
		APIKey:  v.GetString("UPLOAD_API_KEY"),
		APIURL:  v.GetString("UPLOAD_API_URL"),
		Timeout: parseDuration(v.GetString("UPLOAD_TIMEOUT"), 30*time.Second),
	}

	cfg.Clone = CloneConfig{
		TokenSecret:    v.GetString("BOT_TOKEN_SECRET"),
		VerifyAttempts: v.GetInt("CLONE_VERIFY_ATTEMPTS"),
		VerifyBase:     parseDuration(v.GetString("CLONE_VERIFY_BASE_DELAY"), 2*time.Second),
		VerifyMax:      parseDuration(v.GetString("CLONE_VERIFY_MAX_DELAY"), 30*time.Second),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("JOBS_WORKERS"),
		Retries:    v.GetInt("JOBS_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JOBS_RETRY_DELAY"), time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

// Validate reports settings without which the bot platform cannot start.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("%w: TELEGRAM_TOKEN is required", ErrInvalidConfig)
	}
	if len(c.Telegram.AdminIDs) == 0 {
		return fmt.Errorf("%w: ADMIN_IDS is required", ErrInvalidConfig)
	}
	switch c.Store.Backend {
	case StoreBackendFile, StoreBackendPostgres:
	default:
		return fmt.Errorf("%w: unsupported STORE_BACKEND %q", ErrInvalidConfig, c.Store.Backend)
	}
	switch c.Tokens.Backend {
	case TokenBackendMemory, TokenBackendRedis:
	default:
		return fmt.Errorf("%w: unsupported TOKEN_BACKEND %q", ErrInvalidConfig, c.Tokens.Backend)
	}
	return nil
}

// IsAdmin reports whether the given Telegram user id is listed in ADMIN_IDS.
func (c TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 10000)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("TELEGRAM_TOKEN", "")
	v.SetDefault("ADMIN_IDS", "")
	v.SetDefault("LOG_CHANNEL_ID", 0)
	v.SetDefault("DB_CHANNEL_ID", 0)
	v.SetDefault("PUBLIC_BASE_URL", "")
	v.SetDefault("HOW_TO_DOWNLOAD_URL", "")
	v.SetDefault("TELEGRAM_POLL_TIMEOUT", 60)

	v.SetDefault("STORE_BACKEND", StoreBackendFile)
	v.SetDefault("STORE_DIR", "./data")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "clonebot")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("TOKEN_BACKEND", TokenBackendMemory)
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("TOKEN_MEMORY_CAPACITY", 100000)

	v.SetDefault("SEARCH_LIMIT", 5)
	v.SetDefault("DEFAULT_SEARCH_CAPTION", "🔍 Search Result")
	v.SetDefault("FORCESUB_DEFAULT_CHANNELS", "")
	v.SetDefault("DEFAULT_SHORTENER", "GPLinks")

	v.SetDefault("SHORTENER_API_KEY", "")
	v.SetDefault("SHORTENER_GPLINKS_URL", "https://gplinks.co/api")
	v.SetDefault("SHORTENER_TINYURL_URL", "https://tinyurl.com/api-create.php")
	v.SetDefault("SHORTENER_TIMEOUT", "5s")

	v.SetDefault("UPLOAD_API_KEY", "")
	v.SetDefault("UPLOAD_API_URL", "https://gdtot.com/api/upload")
	v.SetDefault("UPLOAD_TIMEOUT", "30s")

	v.SetDefault("BOT_TOKEN_SECRET", "dev_bot_token_secret")
	v.SetDefault("CLONE_VERIFY_ATTEMPTS", 3)
	v.SetDefault("CLONE_VERIFY_BASE_DELAY", "2s")
	v.SetDefault("CLONE_VERIFY_MAX_DELAY", "30s")

	v.SetDefault("JOBS_WORKERS", 4)
	v.SetDefault("JOBS_RETRIES", 3)
	v.SetDefault("JOBS_RETRY_DELAY", "1s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "clonebot")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if raw == "0" {
		return 0
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func parseIDs(raw string) ([]int64, error) {
	parts := splitAndTrim(raw)
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
