package models

import "strings"

// Limits applied to admin settings.
const (
	MaxRequiredChannels = 3
	MaxCaptionLength    = 100
)

// ShortenerKind names the URL shortener applied to delivered links.
type ShortenerKind string

const (
	ShortenerGPLinks ShortenerKind = "GPLinks"
	ShortenerTinyURL ShortenerKind = "TinyURL"
	ShortenerNone    ShortenerKind = "None"
)

// ParseShortenerKind matches name case-insensitively against the known shorteners.
func ParseShortenerKind(name string) (ShortenerKind, bool) {
	for _, kind := range []ShortenerKind{ShortenerGPLinks, ShortenerTinyURL, ShortenerNone} {
		if strings.EqualFold(string(kind), strings.TrimSpace(name)) {
			return kind, true
		}
	}
	return "", false
}

// AccessPolicy is the process-wide, admin-owned search and delivery configuration.
type AccessPolicy struct {
	ForceSubscriptionEnabled bool          `json:"force_subscription_enabled"`
	RequiredChannels         []string      `json:"required_channels"`
	DeleteTimer              string        `json:"delete_timer"`
	SearchCaption            string        `json:"search_caption"`
	Shortener                ShortenerKind `json:"shortener"`
	DBChannelID              int64         `json:"db_channel_id,omitempty"`
	LogChannelID             int64         `json:"log_channel_id,omitempty"`
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (p AccessPolicy) Clone() AccessPolicy {
	out := p
	out.RequiredChannels = append([]string(nil), p.RequiredChannels...)
	return out
}
