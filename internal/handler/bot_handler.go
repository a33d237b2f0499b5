package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clonebot/internal/dto"
	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/pkg/response"
)

type cloneLister interface {
	List(ctx context.Context) ([]models.ClonedBot, error)
	Running(id string) bool
}

type profileLister interface {
	Profiles() []models.BotProfile
}

// BotHandler lists bot identities.
type BotHandler struct {
	clones  cloneLister
	runtime profileLister
}

// NewBotHandler builds a BotHandler.
func NewBotHandler(clones cloneLister, runtime profileLister) *BotHandler {
	return &BotHandler{clones: clones, runtime: runtime}
}

// List godoc
// @Summary List the primary bot and its clones
// @Tags Bots
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /bots [get]
func (h *BotHandler) List(c *gin.Context) {
	clones, err := h.clones.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]dto.BotItem, 0, len(clones)+1)
	for _, p := range h.runtime.Profiles() {
		if p.Primary {
			items = append(items, dto.BotItem{ID: p.ID, Username: p.Username, Primary: true, Running: true})
		}
	}
	for _, bot := range clones {
		items = append(items, dto.BotItem{
			ID:         bot.ID,
			Username:   bot.Username,
			OwnerID:    bot.OwnerID,
			Visibility: string(bot.Visibility),
			Usage:      string(bot.Usage),
			Running:    h.clones.Running(bot.ID),
			CreatedAt:  bot.CreatedAt,
		})
	}
	response.JSON(c, http.StatusOK, items, nil)
}
