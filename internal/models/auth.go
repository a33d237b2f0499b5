package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the roles accepted by the admin API.
type UserRole string

const (
	RoleAdmin UserRole = "ADMIN"
)

// JWTClaims represents the payload of admin API tokens minted by /apitoken.
type JWTClaims struct {
	TelegramID int64    `json:"telegram_id"`
	Role       UserRole `json:"role"`
	jwt.RegisteredClaims
}
