package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/leadsync/internal/formatter"
	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/shared"
	"golang.org/x/time/rate"
)

// Source reads namespace snapshots.
type Source interface {
	GetSavedData(ctx context.Context, v models.Version) (models.Snapshot, error)
}

// BulkExportOpts contains configuration for bulk exports.
type BulkExportOpts struct {
	Versions   []models.Version   // Namespaces to export (default: all)
	Formats    []formatter.Format // Formats per namespace (default: txt)
	OutputDir  string             // Base output directory (default: leadsync_export_{epoch})
	NumWorkers int                // Concurrent workers (default: 4)
	RateLimit  float64            // Snapshot reads per second (default: 5)
	CSV        formatter.CSVOptions
}

// ExportJob is one namespace rendered in one format.
type ExportJob struct {
	Version  models.Version
	Format   formatter.Format
	Snapshot models.Snapshot
}

// ExportResult describes one finished job.
type ExportResult struct {
	Version models.Version   `json:"version"`
	Format  formatter.Format `json:"format"`
	Records int              `json:"records"`
	File    string           `json:"file,omitempty"`
	Success bool             `json:"success"`
	Error   string           `json:"error,omitempty"`
}

// BulkExportResult summarizes a bulk export and is written as its manifest.
type BulkExportResult struct {
	ExportedAt      time.Time      `json:"exported_at"`
	TotalJobs       int            `json:"total_jobs"`
	Successful      int            `json:"successful"`
	Failed          int            `json:"failed"`
	OutputDirectory string         `json:"output_directory"`
	ManifestPath    string         `json:"-"`
	Results         []ExportResult `json:"results"`
}

// ExportEngine exports snapshots read from a [Source].
type ExportEngine struct {
	src Source
	now func() time.Time
}

// NewExportEngine creates an [ExportEngine] reading from src.
func NewExportEngine(src Source) *ExportEngine {
	return &ExportEngine{src: src, now: time.Now}
}

// BulkExport exports every (namespace, format) pair concurrently with rate limiting and progress tracking.
//
// Each namespace is read once; its formats become separate jobs for the worker pool.
func (e *ExportEngine) BulkExport(ctx context.Context, prog chan<- ProgressUpdate, opts BulkExportOpts) (*BulkExportResult, error) {
	if e.src == nil {
		return nil, fmt.Errorf("%w: snapshot source not initialized", shared.ErrServiceUnavailable)
	}

	if len(opts.Versions) == 0 {
		opts.Versions = models.Versions
	}
	if len(opts.Formats) == 0 {
		opts.Formats = []formatter.Format{formatter.FormatTXT}
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("leadsync_export_%d", e.now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	total := len(opts.Versions) * len(opts.Formats)
	result := &BulkExportResult{
		ExportedAt:      e.now(),
		TotalJobs:       total,
		OutputDirectory: opts.OutputDir,
		Results:         make([]ExportResult, 0, total),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan ExportJob, total)
	results := make(chan ExportResult, total)

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go e.exportWorker(ctx, &wg, jobs, results, opts)
	}

	go func() {
		defer close(jobs)
		for i, v := range opts.Versions {
			if ctx.Err() != nil {
				return
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}

			SendProgress(prog, fetchSnapshotUpdate(i+1, len(opts.Versions), v))
			snap, err := e.src.GetSavedData(ctx, v)
			if err != nil {
				for _, f := range opts.Formats {
					results <- ExportResult{
						Version: v,
						Format:  f,
						Error:   fmt.Sprintf("failed to fetch snapshot: %v", err),
					}
				}
				continue
			}

			for _, f := range opts.Formats {
				jobs <- ExportJob{Version: v, Format: f, Snapshot: snap}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		if res.Success {
			result.Successful++
			SendProgress(prog, exportCompletedUpdate(completed, total, res))
		} else {
			result.Failed++
			SendProgress(prog, exportFailedUpdate(completed, total, res))
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

// exportWorker is a worker goroutine that exports snapshots from the jobs channel.
func (e *ExportEngine) exportWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	jobs <-chan ExportJob,
	results chan<- ExportResult,
	opts BulkExportOpts,
) {
	defer wg.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			continue
		}
		results <- e.exportSingle(job, opts)
	}
}

// exportSingle writes one job to {dir}/{version}{ext}, or {version}_numbered.txt for the numbered layout.
func (e *ExportEngine) exportSingle(j ExportJob, opts BulkExportOpts) ExportResult {
	result := ExportResult{
		Version: j.Version,
		Format:  j.Format,
		Records: j.Snapshot.Len(),
	}

	name := string(j.Version)
	if j.Format == formatter.FormatNumberedTXT {
		name += "_numbered"
	}
	path := filepath.Join(opts.OutputDir, name+j.Format.Ext())

	file, err := formatter.WriteExport(j.Snapshot.SavedUserList, formatter.Options{Format: j.Format, CSV: opts.CSV}, path)
	if err != nil {
		result.Error = fmt.Sprintf("%s export failed: %v", j.Format, err)
		return result
	}
	result.File = file
	result.Success = true
	return result
}
