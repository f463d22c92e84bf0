// package services defines the extraction and download collaborators
package services

import (
	"context"

	"github.com/desertthunder/leadsync/internal/models"
)

// Extractor yields the candidate records visible in one collection pass.
//
// Candidates may be incomplete or repeat earlier passes; deduplication and validation belong to the caller.
type Extractor interface {
	Extract(ctx context.Context) ([]models.UserRecord, error)
}

// ExtractorFunc adapts a function to [Extractor].
type ExtractorFunc func(ctx context.Context) ([]models.UserRecord, error)

func (f ExtractorFunc) Extract(ctx context.Context) ([]models.UserRecord, error) { return f(ctx) }

// DownloadRequest names the content to store and the file name to store it under.
type DownloadRequest struct {
	URL      string
	Filename string
}

// Downloader persists exported files.
type Downloader interface {
	// Download stores the content behind req.URL and returns a download id.
	Download(ctx context.Context, req DownloadRequest) (string, error)
}
