package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/pkg/config"
)

const maxShortenerBody = 64 << 10

// Shortener rewrites delivered links through the configured provider. It never fails: any
// provider problem passes the original URL through.
type Shortener struct {
	cfg    config.ShortenerConfig
	client *http.Client
	logger *zap.Logger
}

// NewShortener constructs a shortener. A nil client gets one bounded by cfg.Timeout.
func NewShortener(cfg config.ShortenerConfig, client *http.Client, logger *zap.Logger) *Shortener {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shortener{cfg: cfg, client: client, logger: logger}
}

// Shorten returns the short form of rawURL for kind, or rawURL itself.
func (s *Shortener) Shorten(ctx context.Context, rawURL string, kind models.ShortenerKind) string {
	var (
		short string
		err   error
	)
	switch kind {
	case models.ShortenerGPLinks:
		if s.cfg.APIKey == "" {
			return rawURL
		}
		short, err = s.gplinks(ctx, rawURL)
	case models.ShortenerTinyURL:
		short, err = s.tinyurl(ctx, rawURL)
	default:
		return rawURL
	}
	if err != nil || short == "" {
		s.logger.Warn("shortener failed, using raw url", zap.String("shortener", string(kind)), zap.Error(err))
		return rawURL
	}
	return short
}

type gplinksResponse struct {
	Status       string `json:"status"`
	ShortenedURL string `json:"shortenedUrl"`
	Message      string `json:"message"`
}

func (s *Shortener) gplinks(ctx context.Context, rawURL string) (string, error) {
	body, err := s.get(ctx, s.cfg.GPLinksURL, url.Values{"api": {s.cfg.APIKey}, "url": {rawURL}})
	if err != nil {
		return "", err
	}
	var resp gplinksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode gplinks response: %w", err)
	}
	if resp.Status != "success" {
		return "", fmt.Errorf("gplinks: %s", resp.Message)
	}
	return resp.ShortenedURL, nil
}

func (s *Shortener) tinyurl(ctx context.Context, rawURL string) (string, error) {
	body, err := s.get(ctx, s.cfg.TinyURLURL, url.Values{"url": {rawURL}})
	if err != nil {
		return "", err
	}
	short := strings.TrimSpace(string(body))
	if !strings.HasPrefix(short, "http") {
		return "", fmt.Errorf("tinyurl: unexpected response %q", short)
	}
	return short, nil
}

func (s *Shortener) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxShortenerBody))
}
