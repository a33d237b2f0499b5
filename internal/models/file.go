package models

import "time"

// LargeFileThreshold is the size above which delivery messages carry a large-file note.
const LargeFileThreshold int64 = 2 << 30

// UnknownSize is shown when the upload target does not report a size.
const UnknownSize = "Unknown size"

// FileRecord is one indexable, downloadable artifact. Filename is the only search key.
type FileRecord struct {
	ID             string     `json:"id"`
	Filename       string     `json:"filename"`
	Size           string     `json:"size"`
	SizeBytes      int64      `json:"size_bytes,omitempty"`
	DownloadTarget string     `json:"download_target"`
	UploadedAt     *time.Time `json:"uploaded_at,omitempty"`
}

// IsLarge reports whether the record exceeds LargeFileThreshold.
func (f FileRecord) IsLarge() bool {
	return f.SizeBytes > LargeFileThreshold
}

// SearchResult is a transient scored reference into the corpus.
type SearchResult struct {
	File  FileRecord `json:"file"`
	Score float64    `json:"score"`
	Rank  int        `json:"rank"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
