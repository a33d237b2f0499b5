package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/pkg/export"
)

func TestExportServiceCSV(t *testing.T) {
	uploaded := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	files := []models.FileRecord{
		{ID: "1", Filename: "Avengers Endgame", Size: "2 GB", DownloadTarget: "https://secret/1", UploadedAt: &uploaded},
		{ID: "2", Filename: "Iron Man"},
	}
	svc := NewExportService(NewCorpusService(&fileRepoStub{files: files}, nil), nil)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC) }

	result, err := svc.Generate(context.Background(), export.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "corpus-20240601-083000.csv", result.Filename)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, 2, result.Rows)

	lines := strings.Split(strings.TrimSpace(string(result.Data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,filename,size,uploaded_at", lines[0])
	assert.Equal(t, "1,Avengers Endgame,2 GB,2024-05-01T10:00:00Z", lines[1])
	assert.Equal(t, "2,Iron Man,Unknown size,", lines[2])
	assert.NotContains(t, string(result.Data), "https://secret/1")
}

func TestExportServicePDF(t *testing.T) {
	svc := NewExportService(NewCorpusService(&fileRepoStub{files: avengersCorpus()}, nil), nil)
	result, err := svc.Generate(context.Background(), export.FormatPDF)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(result.Data, []byte("%PDF-")))
}
