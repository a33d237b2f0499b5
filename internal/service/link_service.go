package service

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/dto"
	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/pkg/config"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
)

// MaxBatchSpan bounds /batch and /batchgen ranges.
const MaxBatchSpan = 50

type uploader interface {
	Configured() bool
	Upload(ctx context.Context, sourceURL string) (string, error)
}

type linkShortener interface {
	Shorten(ctx context.Context, rawURL string, kind models.ShortenerKind) string
}

type tokenIssuer interface {
	Issue(ctx context.Context, target, issuedFor string) (string, error)
}

// LinkService implements the file-store commands: ingest, lookup and link generation.
type LinkService struct {
	corpus    *CorpusService
	tokens    tokenIssuer
	settings  policyReader
	uploader  uploader
	shortener linkShortener
	poster    textSender
	validator *validator.Validate
	logger    *zap.Logger
	baseURL   string
	now       func() time.Time
}

// LinkServiceDeps groups the collaborators of LinkService.
type LinkServiceDeps struct {
	Corpus    *CorpusService
	Tokens    tokenIssuer
	Settings  policyReader
	Uploader  uploader
	Shortener linkShortener
	// Poster mirrors ingested records into the database channel. Optional.
	Poster textSender
}

// NewLinkService constructs a LinkService.
func NewLinkService(deps LinkServiceDeps, validate *validator.Validate, logger *zap.Logger, cfg config.Config) *LinkService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkService{
		corpus:    deps.Corpus,
		tokens:    deps.Tokens,
		settings:  deps.Settings,
		uploader:  deps.Uploader,
		shortener: deps.Shortener,
		poster:    deps.Poster,
		validator: validate,
		logger:    logger,
		baseURL:   cfg.Telegram.PublicBaseURL,
		now:       time.Now,
	}
}

// Upload pushes sourceURL to the upload target and records the result in the corpus.
// Missing upload credentials or database channel abort before anything is written.
func (s *LinkService) Upload(ctx context.Context, sourceURL string) (*models.FileRecord, error) {
	req := dto.CreateFileRequest{SourceURL: strings.TrimSpace(sourceURL)}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "a valid file URL is required")
	}
	if s.uploader == nil || !s.uploader.Configured() {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "UPLOAD_API_KEY is not configured")
	}
	policy := s.settings.Policy(ctx)
	if policy.DBChannelID == 0 {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "database channel is not configured, use /setdbchannel")
	}

	target, err := s.uploader.Upload(ctx, req.SourceURL)
	if err != nil {
		s.logger.Warn("upload failed", zap.String("source_url", req.SourceURL), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to upload the file")
	}

	uploadedAt := s.now().UTC()
	record, err := s.corpus.Append(ctx, models.FileRecord{
		Filename:       FilenameFromURL(req.SourceURL),
		Size:           models.UnknownSize,
		DownloadTarget: target,
		UploadedAt:     &uploadedAt,
	})
	if err != nil {
		return nil, err
	}

	if s.poster != nil {
		if _, err := s.poster.SendText(ctx, policy.DBChannelID, FormatFileRecord(*record), nil); err != nil {
			s.logger.Warn("mirror record to database channel", zap.String("file_id", record.ID), zap.Error(err))
		}
	}
	return record, nil
}

// Get returns the record with id.
func (s *LinkService) Get(ctx context.Context, id string) (*models.FileRecord, error) {
	return s.corpus.Find(ctx, strings.TrimSpace(id))
}

// Batch returns records whose numeric id lies in [from, to].
func (s *LinkService) Batch(ctx context.Context, from, to int) ([]models.FileRecord, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	var out []models.FileRecord
	for _, file := range s.corpus.AllFiles(ctx) {
		id, err := strconv.Atoi(file.ID)
		if err != nil {
			continue
		}
		if id >= from && id <= to {
			out = append(out, file)
		}
	}
	if len(out) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no files found between IDs %d and %d", from, to))
	}
	return out, nil
}

// GenLink mints a single-use redirect link for file id.
func (s *LinkService) GenLink(ctx context.Context, id string) (dto.GeneratedLink, error) {
	if s.baseURL == "" {
		return dto.GeneratedLink{}, appErrors.Clone(appErrors.ErrConfiguration, "PUBLIC_BASE_URL is not configured")
	}
	file, err := s.Get(ctx, id)
	if err != nil {
		return dto.GeneratedLink{}, err
	}
	return s.link(ctx, *file, s.settings.Policy(ctx).Shortener)
}

// BatchGen mints redirect links for every record in [from, to].
func (s *LinkService) BatchGen(ctx context.Context, from, to int) ([]dto.GeneratedLink, error) {
	if s.baseURL == "" {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "PUBLIC_BASE_URL is not configured")
	}
	files, err := s.Batch(ctx, from, to)
	if err != nil {
		return nil, err
	}
	kind := s.settings.Policy(ctx).Shortener
	links := make([]dto.GeneratedLink, 0, len(files))
	for _, file := range files {
		link, err := s.link(ctx, file, kind)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

func (s *LinkService) link(ctx context.Context, file models.FileRecord, kind models.ShortenerKind) (dto.GeneratedLink, error) {
	token, err := s.tokens.Issue(ctx, file.DownloadTarget, file.ID)
	if err != nil {
		return dto.GeneratedLink{}, err
	}
	link := RedirectURL(s.baseURL, token)
	if s.shortener != nil {
		link = s.shortener.Shorten(ctx, link, kind)
	}
	return dto.GeneratedLink{FileID: file.ID, Filename: file.Filename, Link: link}, nil
}

// RedirectURL builds the public redemption URL for token.
func RedirectURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/redirect/" + token
}

// FilenameFromURL returns the last path segment of rawURL.
func FilenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "file"
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

// FormatFileRecord renders a record for chat replies.
func FormatFileRecord(file models.FileRecord) string {
	size := file.Size
	if size == "" {
		size = models.UnknownSize
	}
	return fmt.Sprintf("🆔 <b>ID</b>: %s\n📄 <b>Name</b>: %s\n📏 <b>Size</b>: %s\n🔗 <b>Download Link</b>: %s",
		html.EscapeString(file.ID), html.EscapeString(file.Filename), html.EscapeString(size), html.EscapeString(file.DownloadTarget))
}

func validateRange(from, to int) error {
	if from < 1 || to < from {
		return appErrors.Clone(appErrors.ErrValidation, "range must satisfy 1 <= start <= end")
	}
	if to-from+1 > MaxBatchSpan {
		return appErrors.Clone(appErrors.ErrLimitReached, fmt.Sprintf("at most %d files per batch", MaxBatchSpan))
	}
	return nil
}
