package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/shared"
)

// FileExtractor reads candidates from a file that is re-read on every pass.
type FileExtractor struct {
	path string
	now  func() time.Time
}

// NewFileExtractor creates a [FileExtractor] for path.
func NewFileExtractor(path string) *FileExtractor {
	return &FileExtractor{path: path, now: time.Now}
}

// Extract parses the file as a JSON array of records or, failing that, as one record per line.
//
// Records without an id get one derived from their profile link; records without a timestamp are stamped with the
// current time.
func (e *FileExtractor) Extract(ctx context.Context) ([]models.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read candidates: %v", shared.ErrServiceUnavailable, err)
	}

	records, err := decodeCandidates(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrInvalidInput, e.path, err)
	}

	stamp := e.now().UnixMilli()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = models.UserIDFromLink(records[i].UserLink)
		}
		if records[i].Timestamp == 0 {
			records[i].Timestamp = stamp
		}
	}
	return records, nil
}

func decodeCandidates(data []byte) ([]models.UserRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []models.UserRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var records []models.UserRecord
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var r models.UserRecord
		if err := json.Unmarshal(text, &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, r)
	}
	return records, scanner.Err()
}
