package telegram

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/noah-isme/clonebot/pkg/retry"
)

// APIError extracts the Bot API error carried by err, if any.
func APIError(err error) (tgbotapi.Error, bool) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val, true
	}
	return tgbotapi.Error{}, false
}

// IsMessageGone reports a delete or edit against a message that no longer exists.
func IsMessageGone(err error) bool {
	apiErr, ok := APIError(err)
	if !ok || apiErr.Code != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "message to delete not found") ||
		strings.Contains(msg, "message to edit not found") ||
		strings.Contains(msg, "message can't be deleted")
}

// IsNotModified reports an edit that left the message unchanged.
func IsNotModified(err error) bool {
	apiErr, ok := APIError(err)
	return ok && strings.Contains(strings.ToLower(apiErr.Message), "message is not modified")
}

// IsUnauthorized reports a revoked or malformed bot token.
func IsUnauthorized(err error) bool {
	apiErr, ok := APIError(err)
	return ok && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusNotFound)
}

// IsBlocked reports a user that blocked the bot or never started it.
func IsBlocked(err error) bool {
	apiErr, ok := APIError(err)
	return ok && apiErr.Code == http.StatusForbidden
}

// Classify maps Bot API failures onto the retry policy: network faults, 5xx and 429 are
// retryable (429 carries its RetryAfter), everything else is terminal.
func Classify(err error) (retry.Class, time.Duration) {
	if apiErr, ok := APIError(err); ok {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return retry.Retryable, time.Duration(apiErr.RetryAfter) * time.Second
		case apiErr.Code >= http.StatusInternalServerError:
			return retry.Retryable, 0
		default:
			return retry.Terminal, 0
		}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return retry.Retryable, 0
	}
	return retry.Terminal, 0
}
