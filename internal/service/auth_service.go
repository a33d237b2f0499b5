package service

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/pkg/config"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
)

// AuthConfig defines configuration for admin API tokens.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// AuthService mints and validates admin API tokens. Tokens are handed out by the /apitoken
// bot command, so the Telegram admin roster is the only identity source.
type AuthService struct {
	telegram config.TelegramConfig
	logger   *zap.Logger
	config   AuthConfig
	now      func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(telegram config.TelegramConfig, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{telegram: telegram, logger: logger, config: config, now: time.Now}
}

// IssueAdminToken returns a signed token for an admin and its expiry.
func (s *AuthService) IssueAdminToken(telegramID int64) (string, time.Time, error) {
	if !s.telegram.IsAdmin(telegramID) {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrForbidden, "only admins can request API tokens")
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	subject := strconv.FormatInt(telegramID, 10)
	claims := &models.JWTClaims{
		TelegramID: telegramID,
		Role:       models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	s.logger.Info("admin api token issued", zap.Int64("telegram_id", telegramID), zap.Time("expires_at", expiresAt))
	return signed, expiresAt, nil
}

// ValidateToken parses and validates an access token returning the claims. Tokens of users
// removed from ADMIN_IDS stop working immediately.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, jwt.WithIssuer(s.config.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if !s.telegram.IsAdmin(claims.TelegramID) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token owner is no longer an admin")
	}

	return claims, nil
}
