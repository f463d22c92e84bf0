package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/leadsync/internal/formatter"
	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/shared"
	tu "github.com/desertthunder/leadsync/internal/testing"
)

type mockSource struct {
	snaps map[models.Version]models.Snapshot
	errs  map[models.Version]error
}

func (m *mockSource) GetSavedData(_ context.Context, v models.Version) (models.Snapshot, error) {
	if err := m.errs[v]; err != nil {
		return models.Snapshot{}, err
	}
	return m.snaps[v].Clone(), nil
}

func snapshotOf(records []models.UserRecord) models.Snapshot {
	snap, _ := models.Merge(models.EmptySnapshot(), models.Snapshot{SavedUserList: records})
	return snap
}

func drain(ch chan ProgressUpdate) func() []ProgressUpdate {
	done := make(chan []ProgressUpdate)
	go func() {
		var got []ProgressUpdate
		for u := range ch {
			got = append(got, u)
		}
		done <- got
	}()
	return func() []ProgressUpdate {
		close(ch)
		return <-done
	}
}

func TestBulkExport(t *testing.T) {
	src := &mockSource{snaps: map[models.Version]models.Snapshot{
		models.VersionBasic: snapshotOf(tu.Records(3)),
		models.VersionPro:   snapshotOf(tu.Records(1)),
	}}

	tests := []struct {
		name        string
		versions    []models.Version
		formats     []formatter.Format
		wantJobs    int
		wantFiles   []string
		wantRecords map[models.Version]int
	}{
		{
			name:      "defaults to every namespace as txt",
			wantJobs:  2,
			wantFiles: []string{"basic.txt", "pro.txt"},
		},
		{
			name:      "several formats for one namespace",
			versions:  []models.Version{models.VersionBasic},
			formats:   []formatter.Format{formatter.FormatTXT, formatter.FormatNumberedTXT, formatter.FormatCSV, formatter.FormatJSON},
			wantJobs:  4,
			wantFiles: []string{"basic.txt", "basic_numbered.txt", "basic.csv", "basic.json"},
		},
		{
			name:      "csv for every namespace",
			formats:   []formatter.Format{formatter.FormatCSV},
			wantJobs:  2,
			wantFiles: []string{"basic.csv", "pro.csv"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			progress := make(chan ProgressUpdate, 100)
			collect := drain(progress)

			result, err := NewExportEngine(src).BulkExport(context.Background(), progress, BulkExportOpts{
				Versions:   tt.versions,
				Formats:    tt.formats,
				OutputDir:  dir,
				NumWorkers: 2,
				RateLimit:  100,
			})
			updates := collect()

			if err != nil {
				t.Fatalf("BulkExport() error = %v", err)
			}
			if result.TotalJobs != tt.wantJobs || result.Successful != tt.wantJobs || result.Failed != 0 {
				t.Errorf("unexpected counts: total=%d ok=%d failed=%d", result.TotalJobs, result.Successful, result.Failed)
			}
			for _, name := range tt.wantFiles {
				tu.AssertFileExists(t, filepath.Join(dir, name))
			}

			var manifest BulkExportResult
			if err := json.Unmarshal([]byte(tu.MustReadFile(t, result.ManifestPath)), &manifest); err != nil {
				t.Fatalf("failed to parse manifest: %v", err)
			}
			if manifest.TotalJobs != tt.wantJobs || len(manifest.Results) != tt.wantJobs {
				t.Errorf("manifest has %d/%d jobs, want %d", manifest.TotalJobs, len(manifest.Results), tt.wantJobs)
			}

			exports := 0
			for _, u := range updates {
				if u.Phase == ExportSnapshot {
					exports++
				}
			}
			if exports != tt.wantJobs {
				t.Errorf("expected %d export updates, got %d", tt.wantJobs, exports)
			}
		})
	}
}

func TestBulkExportRecordCounts(t *testing.T) {
	src := &mockSource{snaps: map[models.Version]models.Snapshot{
		models.VersionBasic: snapshotOf(tu.Records(3)),
		models.VersionPro:   models.EmptySnapshot(),
	}}

	result, err := NewExportEngine(src).BulkExport(context.Background(), nil, BulkExportOpts{OutputDir: t.TempDir(), RateLimit: 100})
	if err != nil {
		t.Fatalf("BulkExport() error = %v", err)
	}

	for _, res := range result.Results {
		want := 3
		if res.Version == models.VersionPro {
			want = 0
		}
		if res.Records != want {
			t.Errorf("%s: expected %d records, got %d", res.Version, want, res.Records)
		}
	}
}

func TestBulkExportFailures(t *testing.T) {
	t.Run("fetch failure marks every format failed", func(t *testing.T) {
		src := &mockSource{
			snaps: map[models.Version]models.Snapshot{models.VersionBasic: snapshotOf(tu.Records(1))},
			errs:  map[models.Version]error{models.VersionPro: shared.ErrMessageChannel},
		}

		result, err := NewExportEngine(src).BulkExport(context.Background(), nil, BulkExportOpts{
			Formats:   []formatter.Format{formatter.FormatTXT, formatter.FormatCSV},
			OutputDir: t.TempDir(),
			RateLimit: 100,
		})
		if err != nil {
			t.Fatalf("BulkExport() error = %v", err)
		}
		if result.Successful != 2 || result.Failed != 2 {
			t.Errorf("expected 2 ok and 2 failed, got %d/%d", result.Successful, result.Failed)
		}
		for _, res := range result.Results {
			if res.Version == models.VersionPro && !strings.Contains(res.Error, "failed to fetch snapshot") {
				t.Errorf("unexpected error %q", res.Error)
			}
		}
	})

	t.Run("nil source", func(t *testing.T) {
		_, err := NewExportEngine(nil).BulkExport(context.Background(), nil, BulkExportOpts{OutputDir: t.TempDir()})
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("output directory cannot be created", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(file, nil, 0644); err != nil {
			t.Fatal(err)
		}
		_, err := NewExportEngine(&mockSource{}).BulkExport(context.Background(), nil, BulkExportOpts{OutputDir: filepath.Join(file, "sub")})
		if err == nil || !strings.Contains(err.Error(), "failed to create output directory") {
			t.Errorf("expected directory error, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		src := &mockSource{snaps: map[models.Version]models.Snapshot{}}
		result, err := NewExportEngine(src).BulkExport(ctx, nil, BulkExportOpts{OutputDir: t.TempDir()})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if result == nil || result.ManifestPath != "" {
			t.Errorf("expected partial result without manifest, got %+v", result)
		}
	})
}

func TestProgress(t *testing.T) {
	t.Run("SendProgress never blocks", func(t *testing.T) {
		ch := make(chan ProgressUpdate, 1)
		SendProgress(ch, ExtractUpdate(1))
		SendProgress(ch, ExtractUpdate(2))
		SendProgress(nil, ExtractUpdate(3))

		if got := <-ch; got.Step != 1 {
			t.Errorf("expected first update kept, got step %d", got.Step)
		}
	})

	t.Run("Percent", func(t *testing.T) {
		tests := []struct {
			step, total, want int
		}{
			{0, 0, 0},
			{1, 4, 25},
			{4, 4, 100},
			{9, 4, 100},
		}
		for _, tt := range tests {
			if got := (ProgressUpdate{Step: tt.step, Total: tt.total}).Percent(); got != tt.want {
				t.Errorf("Percent(%d/%d) = %d, want %d", tt.step, tt.total, got, tt.want)
			}
		}
	})

	t.Run("phase names", func(t *testing.T) {
		for p, want := range map[Phase]string{Load: "load", Submit: "submit", Verify: "verify", ExportSnapshot: "export_snapshot", Phase(99): ""} {
			if p.String() != want {
				t.Errorf("Phase(%d).String() = %q, want %q", p, p.String(), want)
			}
		}
	})

	t.Run("SubmitUpdate falls back to id", func(t *testing.T) {
		u := SubmitUpdate(1, 2, models.UserRecord{ID: "u9"})
		if !strings.Contains(u.Message, "u9") {
			t.Errorf("expected id in message, got %q", u.Message)
		}
	})
}
