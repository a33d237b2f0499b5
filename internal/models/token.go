package models

import "time"

// RedemptionToken is a single-use right to learn a download target.
type RedemptionToken struct {
	Token     string    `json:"token"`
	Target    string    `json:"target"`
	IssuedFor string    `json:"issued_for,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}
