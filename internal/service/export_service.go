package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clonebot/pkg/export"
)

// ExportResult is a rendered corpus listing.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// ExportService renders the corpus as CSV or PDF for admins.
type ExportService struct {
	corpus *CorpusService
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(corpus *CorpusService, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{corpus: corpus, logger: logger, now: time.Now}
}

var corpusColumns = []export.Column{
	{Key: "id", Title: "ID", Weight: 1},
	{Key: "filename", Title: "Filename", Weight: 6},
	{Key: "size", Title: "Size", Weight: 2},
	{Key: "uploaded_at", Title: "Uploaded", Weight: 3},
}

// Generate renders every corpus record in format.
func (s *ExportService) Generate(ctx context.Context, format export.Format) (*ExportResult, error) {
	files := s.corpus.AllFiles(ctx)
	rows := make([]map[string]string, 0, len(files))
	for _, file := range files {
		uploaded := ""
		if file.UploadedAt != nil {
			uploaded = file.UploadedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, map[string]string{
			"id":          file.ID,
			"filename":    file.Filename,
			"size":        displaySize(file),
			"uploaded_at": uploaded,
		})
	}

	now := s.now().UTC()
	data, err := export.Render(format, export.Table{
		Title:   fmt.Sprintf("Corpus export %s", now.Format("2006-01-02 15:04 MST")),
		Columns: corpusColumns,
		Rows:    rows,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("corpus exported", zap.String("format", string(format)), zap.Int("rows", len(rows)))
	return &ExportResult{
		Filename:    fmt.Sprintf("corpus-%s.%s", now.Format("20060102-150405"), format),
		ContentType: format.ContentType(),
		Data:        data,
		Rows:        len(rows),
	}, nil
}
