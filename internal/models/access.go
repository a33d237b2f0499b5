package models

// DenyReason explains why AccessGate refused a request.
type DenyReason string

const (
	DenyNotSubscribed   DenyReason = "not-subscribed"
	DenyMembershipError DenyReason = "membership-check-error"
	DenyPrivateBot      DenyReason = "private-bot"
)

// JoinPrompt asks the user to join one required channel.
type JoinPrompt struct {
	Channel string `json:"channel"`
	URL     string `json:"url"`
}

// AccessDecision is the typed outcome of an access check.
type AccessDecision struct {
	Allowed bool         `json:"allowed"`
	Reason  DenyReason   `json:"reason,omitempty"`
	Prompts []JoinPrompt `json:"prompts,omitempty"`
}

// Allow is the positive decision.
func Allow() AccessDecision {
	return AccessDecision{Allowed: true}
}

// Deny builds a negative decision.
func Deny(reason DenyReason, prompts ...JoinPrompt) AccessDecision {
	return AccessDecision{Reason: reason, Prompts: prompts}
}
