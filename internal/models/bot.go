package models

import "time"

// Visibility controls who may use a cloned bot.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Usage selects the command set a cloned bot exposes.
type Usage string

const (
	UsageSearchBot Usage = "searchbot"
	UsageFileStore Usage = "filestore"
)

// BotProfile identifies the bot instance an update arrived on.
type BotProfile struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Primary    bool       `json:"primary"`
	Visibility Visibility `json:"visibility"`
	Usage      Usage      `json:"usage"`
	OwnerID    int64      `json:"owner_id"`
}

// AllowsSearch reports whether search commands are served by this bot.
func (p BotProfile) AllowsSearch() bool {
	return p.Primary || p.Usage == UsageSearchBot
}

// AllowsFileStore reports whether upload and link commands are served by this bot.
func (p BotProfile) AllowsFileStore() bool {
	return p.Primary || p.Usage == UsageFileStore
}

// ClonedBot is the persisted registry entry for a secondary bot identity.
type ClonedBot struct {
	ID          string     `json:"id"`
	BotID       int64      `json:"bot_id"`
	Username    string     `json:"username"`
	OwnerID     int64      `json:"owner_id"`
	SealedToken string     `json:"sealed_token"`
	Visibility  Visibility `json:"visibility"`
	Usage       Usage      `json:"usage"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Profile derives the runtime profile of the clone.
func (c ClonedBot) Profile() BotProfile {
	return BotProfile{
		ID:         c.ID,
		Username:   c.Username,
		Visibility: c.Visibility,
		Usage:      c.Usage,
		OwnerID:    c.OwnerID,
	}
}
