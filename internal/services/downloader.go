package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/leadsync/internal/shared"
)

// FileDownloader stores downloads under a directory.
type FileDownloader struct {
	dir    string
	client *http.Client
}

// NewFileDownloader creates a [FileDownloader] writing into dir. The client defaults to [http.DefaultClient].
func NewFileDownloader(dir string, client *http.Client) *FileDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &FileDownloader{dir: dir, client: client}
}

// Dir returns the download directory.
func (d *FileDownloader) Dir() string { return d.dir }

// Download resolves req.URL and writes its content to a new file in the download directory.
func (d *FileDownloader) Download(ctx context.Context, req DownloadRequest) (string, error) {
	content, err := d.fetch(ctx, req.URL)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	id := shared.GenerateID()
	name := filepath.Base(filepath.Clean("/" + req.Filename))
	if name == "/" || name == "." {
		name = id + ".txt"
	}

	path := uniquePath(filepath.Join(d.dir, name))
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write download: %w", err)
	}
	return id, nil
}

func (d *FileDownloader) fetch(ctx context.Context, raw string) ([]byte, error) {
	switch {
	case strings.HasPrefix(raw, "data:"):
		return decodeDataURL(raw)
	case strings.HasPrefix(raw, "file://"):
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", u.Path, err)
		}
		return data, nil
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %s returned %d", shared.ErrServiceUnavailable, raw, resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return body, nil
	default:
		return nil, fmt.Errorf("%w: unsupported download url", shared.ErrInvalidInput)
	}
}

// decodeDataURL decodes "data:[<mediatype>][;base64],<data>".
func decodeDataURL(raw string) ([]byte, error) {
	header, payload, found := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !found {
		return nil, fmt.Errorf("%w: data url without payload", shared.ErrInvalidInput)
	}

	if strings.HasSuffix(header, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		return data, nil
	}

	text, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return []byte(text), nil
}

// DataURL builds a base64 data: URL for content.
func DataURL(mediaType string, content []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(content)
}

// uniquePath returns path, or path with " (n)" before the extension when path already exists.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
