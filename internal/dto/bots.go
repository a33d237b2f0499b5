package dto

import "time"

// CreateCloneRequest registers a new cloned bot.
type CreateCloneRequest struct {
	OwnerID    int64  `validate:"required"`
	Token      string `validate:"required,max=128"`
	Visibility string `validate:"required,oneof=public private"`
	Usage      string `validate:"required,oneof=searchbot filestore"`
}

// BotItem is the admin API view of a bot identity. Tokens are never returned.
type BotItem struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Primary    bool      `json:"primary"`
	OwnerID    int64     `json:"owner_id,omitempty"`
	Visibility string    `json:"visibility,omitempty"`
	Usage      string    `json:"usage,omitempty"`
	Running    bool      `json:"running"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}
