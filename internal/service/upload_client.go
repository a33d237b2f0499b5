package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/noah-isme/clonebot/pkg/config"
)

const maxUploadBody = 64 << 10

// ErrUploadNotConfigured is returned when no upload API key is set.
var ErrUploadNotConfigured = errors.New("upload api key is not configured")

// UploadClient hands a source URL to the external upload target and returns its download link.
type UploadClient struct {
	cfg    config.UploadConfig
	client *http.Client
}

// NewUploadClient constructs an upload client. A nil client gets one bounded by cfg.Timeout.
func NewUploadClient(cfg config.UploadConfig, client *http.Client) *UploadClient {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &UploadClient{cfg: cfg, client: client}
}

// Configured reports whether uploads can be attempted.
func (u *UploadClient) Configured() bool {
	return u != nil && u.cfg.APIKey != ""
}

type uploadResponse struct {
	Status       string `json:"status"`
	DownloadLink string `json:"download_link"`
	Message      string `json:"message"`
}

// Upload submits sourceURL and returns the hosted download link.
func (u *UploadClient) Upload(ctx context.Context, sourceURL string) (string, error) {
	if !u.Configured() {
		return "", ErrUploadNotConfigured
	}
	query := url.Values{"api_key": {u.cfg.APIKey}, "url": {sourceURL}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.cfg.APIURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadBody))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	var out uploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode upload response (status %d): %w", resp.StatusCode, err)
	}
	if out.Status != "success" || out.DownloadLink == "" {
		return "", fmt.Errorf("upload rejected: %s", out.Message)
	}
	return out.DownloadLink, nil
}
