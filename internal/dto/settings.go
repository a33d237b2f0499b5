package dto

// UpdateSettingsRequest replaces the editable parts of the access policy via the admin API.
type UpdateSettingsRequest struct {
	ForceSubscriptionEnabled bool     `json:"force_subscription_enabled"`
	RequiredChannels         []string `json:"required_channels" validate:"max=3,dive,required,max=64"`
	DeleteTimer              string   `json:"delete_timer" validate:"required,max=8"`
	SearchCaption            string   `json:"search_caption" validate:"required,max=100"`
	Shortener                string   `json:"shortener" validate:"required,oneof=GPLinks TinyURL None"`
}
