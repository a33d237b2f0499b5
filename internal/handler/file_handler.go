package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clonebot/internal/dto"
	"github.com/noah-isme/clonebot/internal/models"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
	"github.com/noah-isme/clonebot/pkg/response"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type corpusReader interface {
	AllFiles(ctx context.Context) []models.FileRecord
	Find(ctx context.Context, id string) (*models.FileRecord, error)
}

type fileUploader interface {
	Upload(ctx context.Context, sourceURL string) (*models.FileRecord, error)
}

// FileHandler exposes corpus administration.
type FileHandler struct {
	corpus   corpusReader
	uploader fileUploader
}

// NewFileHandler builds a FileHandler.
func NewFileHandler(corpus corpusReader, uploader fileUploader) *FileHandler {
	return &FileHandler{corpus: corpus, uploader: uploader}
}

// List godoc
// @Summary List stored files
// @Tags Files
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /files [get]
func (h *FileHandler) List(c *gin.Context) {
	page, size, err := pagination(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	files := h.corpus.AllFiles(c.Request.Context())
	start := len(files)
	if page-1 <= len(files)/size {
		start = min((page-1)*size, len(files))
	}
	end := start + size
	if end > len(files) {
		end = len(files)
	}
	response.JSON(c, http.StatusOK, files[start:end], &models.Pagination{Page: page, PageSize: size, TotalCount: len(files)})
}

// Get godoc
// @Summary Get a stored file
// @Tags Files
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /files/{id} [get]
func (h *FileHandler) Get(c *gin.Context) {
	file, err := h.corpus.Find(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// Create godoc
// @Summary Ingest a file through the upload target
// @Tags Files
// @Accept json
// @Produce json
// @Param payload body dto.CreateFileRequest true "Source URL"
// @Success 201 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Security BearerAuth
// @Router /files [post]
func (h *FileHandler) Create(c *gin.Context) {
	var req dto.CreateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid file payload"))
		return
	}
	file, err := h.uploader.Upload(c.Request.Context(), req.SourceURL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, file)
}

func pagination(c *gin.Context) (int, int, error) {
	page, size := 1, defaultPageSize
	if raw := c.Query("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, appErrors.Clone(appErrors.ErrValidation, "page must be a positive integer")
		}
		page = v
	}
	if raw := c.Query("page_size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return 0, 0, appErrors.Clone(appErrors.ErrValidation, "page_size must be a positive integer")
		}
		if v > maxPageSize {
			v = maxPageSize
		}
		size = v
	}
	return page, size, nil
}
