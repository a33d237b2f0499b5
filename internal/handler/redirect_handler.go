package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/models"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
	"github.com/noah-isme/clonebot/pkg/response"
)

type tokenRedeemer interface {
	Redeem(ctx context.Context, token string) (*models.RedemptionToken, error)
}

// RedirectHandler resolves single-use download links.
type RedirectHandler struct {
	tokens tokenRedeemer
	logger *zap.Logger
}

// NewRedirectHandler builds a RedirectHandler.
func NewRedirectHandler(tokens tokenRedeemer, logger *zap.Logger) *RedirectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{tokens: tokens, logger: logger}
}

// Redirect godoc
// @Summary Redeem a download link
// @Tags Links
// @Param token path string true "Redemption token"
// @Success 302
// @Failure 404 {object} response.Envelope
// @Router /redirect/{token} [get]
func (h *RedirectHandler) Redirect(c *gin.Context) {
	c.Header("Referrer-Policy", "no-referrer")
	redeemed, err := h.tokens.Redeem(c.Request.Context(), c.Param("token"))
	if err != nil {
		if !errors.Is(err, appErrors.ErrTokenNotFound) {
			h.logger.Error("redeem token", zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, redeemed.Target)
}
