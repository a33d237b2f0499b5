package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clonebot/internal/dto"
	"github.com/noah-isme/clonebot/internal/models"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
	"github.com/noah-isme/clonebot/pkg/response"
)

type searcher interface {
	Search(ctx context.Context, query string, limit int) []models.SearchResult
}

// SearchHandler exposes ranked corpus search without download targets.
type SearchHandler struct {
	search searcher
}

// NewSearchHandler builds a SearchHandler.
func NewSearchHandler(search searcher) *SearchHandler {
	return &SearchHandler{search: search}
}

// Search godoc
// @Summary Search files by name
// @Tags Search
// @Produce json
// @Param q query string true "Query"
// @Param limit query int false "Maximum results"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /search [get]
func (h *SearchHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "query parameter q is required"))
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	results := h.search.Search(c.Request.Context(), query, limit)
	items := make([]dto.SearchResultItem, 0, len(results))
	for _, r := range results {
		items = append(items, dto.SearchResultItem{
			ID:       r.File.ID,
			Filename: r.File.Filename,
			Size:     r.File.Size,
			Score:    r.Score,
			Rank:     r.Rank,
		})
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"query": query, "count": len(items)})
}
