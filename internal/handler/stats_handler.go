package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/internal/service"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
	"github.com/noah-isme/clonebot/pkg/export"
	"github.com/noah-isme/clonebot/pkg/response"
)

type statsReader interface {
	Stats(ctx context.Context) models.Stats
}

type exporter interface {
	Generate(ctx context.Context, format export.Format) (*service.ExportResult, error)
}

// StatsHandler exposes usage counters and corpus exports.
type StatsHandler struct {
	stats    statsReader
	exporter exporter
}

// NewStatsHandler builds a StatsHandler.
func NewStatsHandler(stats statsReader, exporter exporter) *StatsHandler {
	return &StatsHandler{stats: stats, exporter: exporter}
}

// Stats godoc
// @Summary Usage counters
// @Tags Stats
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /stats [get]
func (h *StatsHandler) Stats(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.stats.Stats(c.Request.Context()), nil)
}

// Export godoc
// @Summary Download the corpus as CSV or PDF
// @Tags Stats
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /export [get]
func (h *StatsHandler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", string(export.FormatCSV)))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "format must be csv or pdf"))
		return
	}
	result, err := h.exporter.Generate(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}
