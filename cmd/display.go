package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/leadsync/internal/display"
	"github.com/desertthunder/leadsync/internal/formatter"
	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/shared"
	"github.com/desertthunder/leadsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Stats prints the counts of one namespace.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
	client, peers, err := r.connectDisplay(ctx, cmd)
	if err != nil {
		return err
	}
	defer peers.Close()

	st, err := client.Refresh(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"version":    st.Version,
			"label":      st.Version.Label(),
			"total":      st.Stats.Total,
			"withPhone":  st.Stats.WithPhone,
			"withWechat": st.Stats.WithWechat,
		}, cmd.Bool("pretty"))
	}
	return r.writePlain("%s: 共 %d 条 | 手机号 %d | 微信 %d\n",
		st.Version.Label(), st.Stats.Total, st.Stats.WithPhone, st.Stats.WithWechat)
}

// filterFromFlags builds a [display.Filter] from the filter flags.
func filterFromFlags(cmd *cli.Command) (display.Filter, error) {
	field, err := display.ParseSortField(cmd.String("sort"))
	if err != nil {
		return display.Filter{}, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	order := display.Asc
	if cmd.Bool("desc") {
		order = display.Desc
	}
	f := display.Filter{
		Username:  cmd.String("username"),
		DouyinID:  cmd.String("douyin-id"),
		Phone:     cmd.String("phone"),
		Wechat:    cmd.String("wechat"),
		PhoneOnly: cmd.Bool("phone-only"),
		Expr:      cmd.String("expr"),
		Fuzzy:     cmd.String("fuzzy"),
		Sort:      field,
		Order:     order,
	}
	if _, err := f.Compile(); err != nil {
		return display.Filter{}, fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return f, nil
}

// Export writes one namespace through the broker's downloader, or locally with --output.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	filter, err := filterFromFlags(cmd)
	if err != nil {
		return err
	}
	csvOpts := formatter.CSVOptions{
		Headers:   cmd.Bool("headers"),
		Timestamp: cmd.Bool("timestamp"),
		Location:  r.config.Export.Location(),
	}

	client, peers, err := r.connectDisplay(ctx, cmd)
	if err != nil {
		return err
	}
	defer peers.Close()

	if path := cmd.String("output"); path != "" {
		st, err := client.Refresh(ctx)
		if err != nil {
			return err
		}
		users, err := display.Apply(st.Snapshot.SavedUserList, filter)
		if err != nil {
			return err
		}
		written, err := formatter.WriteExport(users, formatter.Options{Format: format, CSV: csvOpts}, path)
		if err != nil {
			return err
		}
		r.logger.Info("export written", "version", st.Version, "records", len(users), "path", written)
		return r.writePlain("Exported %d records to %s\n", len(users), written)
	}

	id, err := client.Export(ctx, display.ExportOptions{
		Format:   format,
		CSV:      csvOpts,
		Filter:   filter,
		Filename: cmd.String("filename"),
	})
	if err != nil {
		return err
	}
	return r.writePlain("Download stored (id %s)\n", id)
}

// Clear removes one namespace after confirmation.
func (r *Runner) Clear(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") {
		return fmt.Errorf("%w: pass --yes to confirm clearing", shared.ErrMissingArgument)
	}

	client, peers, err := r.connectDisplay(ctx, cmd)
	if err != nil {
		return err
	}
	defer peers.Close()

	before, err := client.Refresh(ctx)
	if err != nil {
		return err
	}
	after, err := client.Clear(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("Cleared %s: %d → %d records\n", after.Version.Label(), before.Stats.Total, after.Stats.Total)
}

// BulkExport exports several namespaces and formats into one directory with a manifest.
func (r *Runner) BulkExport(ctx context.Context, cmd *cli.Command) error {
	opts := tasks.BulkExportOpts{
		OutputDir:  cmd.String("output-dir"),
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float("rate"),
		CSV: formatter.CSVOptions{
			Headers:   cmd.Bool("headers"),
			Timestamp: cmd.Bool("timestamp"),
			Location:  r.config.Export.Location(),
		},
	}
	for _, s := range cmd.StringSlice("namespaces") {
		v, err := models.ParseVersion(s)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		opts.Versions = append(opts.Versions, v)
	}
	for _, s := range cmd.StringSlice("formats") {
		f, err := formatter.ParseFormat(s)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		opts.Formats = append(opts.Formats, f)
	}

	client, peers, err := r.connectDisplay(ctx, cmd)
	if err != nil {
		return err
	}
	defer peers.Close()

	progress := make(chan tasks.ProgressUpdate, 32)
	drainCtx, stopDrain := context.WithCancel(ctx)
	defer stopDrain()
	go func() {
		for {
			select {
			case <-drainCtx.Done():
				return
			case u := <-progress:
				r.logger.Info(u.Message, "phase", u.Phase, "step", u.Step, "total", u.Total)
			}
		}
	}()

	start := time.Now()
	result, err := tasks.NewExportEngine(client).BulkExport(ctx, progress, opts)
	if err != nil {
		return fmt.Errorf("bulk export failed: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	r.writePlainHeader("Bulk export")
	for _, res := range result.Results {
		if res.Success {
			r.writePlain("✓ %-6s %-9s %4d records  %s\n", res.Version, res.Format, res.Records, res.File)
		} else {
			r.writePlain("✗ %-6s %-9s %s\n", res.Version, res.Format, res.Error)
		}
	}
	r.writePlain("\n%d/%d succeeded in %s\nManifest: %s\n",
		result.Successful, result.TotalJobs, time.Since(start).Round(time.Millisecond), result.ManifestPath)
	return nil
}
