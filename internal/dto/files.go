package dto

// CreateFileRequest ingests a file by source URL through the upload target.
type CreateFileRequest struct {
	SourceURL string `json:"source_url" validate:"required,url,max=2048"`
}

// SearchResultItem is the public view of a ranked result. Download targets are never exposed.
type SearchResultItem struct {
	ID       string  `json:"id"`
	Filename string  `json:"filename"`
	Size     string  `json:"size"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
}

// GeneratedLink pairs a file with a single-use redirect link.
type GeneratedLink struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Link     string `json:"link"`
}
