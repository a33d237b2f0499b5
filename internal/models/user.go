package models

import "time"

// BotUser is a Telegram user that has contacted any bot identity.
type BotUser struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
}

// Stats summarises platform usage.
type Stats struct {
	Users         int `json:"users"`
	Files         int `json:"files"`
	Clones        int `json:"clones"`
	PendingTokens int `json:"pending_tokens"`
}

// MetricsSnapshot is a point-in-time view of process counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	Searches                 uint64    `json:"searches"`
	TokensIssued             uint64    `json:"tokens_issued"`
	TokensRedeemed           uint64    `json:"tokens_redeemed"`
	TokensNotFound           uint64    `json:"tokens_not_found"`
	Updates                  uint64    `json:"updates"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
