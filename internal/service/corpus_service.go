package service

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/internal/models"
	appErrors "github.com/noah-isme/clonebot/pkg/errors"
)

type fileRepository interface {
	All(ctx context.Context) ([]models.FileRecord, error)
	Append(ctx context.Context, file models.FileRecord) error
	ReplaceAll(ctx context.Context, files []models.FileRecord) error
}

// CorpusService is the read-mostly accessor over stored file records.
type CorpusService struct {
	repo   fileRepository
	logger *zap.Logger
	mu     sync.Mutex
}

// NewCorpusService constructs a corpus service.
func NewCorpusService(repo fileRepository, logger *zap.Logger) *CorpusService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorpusService{repo: repo, logger: logger}
}

// AllFiles returns every record. Store failures are logged and yield an empty corpus.
func (s *CorpusService) AllFiles(ctx context.Context) []models.FileRecord {
	files, err := s.repo.All(ctx)
	if err != nil {
		s.logger.Error("corpus unavailable, serving empty result", zap.Error(err))
		return []models.FileRecord{}
	}
	return files
}

// Find returns the record with id.
func (s *CorpusService) Find(ctx context.Context, id string) (*models.FileRecord, error) {
	files, err := s.repo.All(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read files")
	}
	for i := range files {
		if files[i].ID == id {
			return &files[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
}

// Append ingests file. Records without an id get the next sequential id.
func (s *CorpusService) Append(ctx context.Context, file models.FileRecord) (*models.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if file.ID == "" {
		files, err := s.repo.All(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read files")
		}
		file.ID = strconv.Itoa(len(files) + 1)
	}
	if err := s.repo.Append(ctx, file); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	return &file, nil
}

// ReplaceAll swaps the corpus.
func (s *CorpusService) ReplaceAll(ctx context.Context, files []models.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.ReplaceAll(ctx, files); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace files")
	}
	return nil
}

// Count returns the corpus size, or 0 when the store is unavailable.
func (s *CorpusService) Count(ctx context.Context) int {
	return len(s.AllFiles(ctx))
}
