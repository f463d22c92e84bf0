package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/leadsync/internal/formatter"
	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/protocol"
	"github.com/desertthunder/leadsync/internal/services"
	"github.com/desertthunder/leadsync/internal/shared"
	"github.com/desertthunder/leadsync/internal/tasks"
)

// Collect runs one collection pass over the extractor's candidates.
//
// Only one pass runs at a time; a second call fails with [shared.ErrAlreadyCollecting]. The pass ends early when
// [Agent.Stop] is called, when the namespace is switched, or when ctx ends while a submission is being retried.
func (a *Agent) Collect(ctx context.Context) (CollectResult, error) {
	a.mu.Lock()
	if a.collecting {
		a.mu.Unlock()
		return CollectResult{}, shared.ErrAlreadyCollecting
	}
	a.collecting = true
	v := a.version
	a.mu.Unlock()
	a.stop.Store(false)

	defer func() {
		a.mu.Lock()
		a.collecting = false
		a.mu.Unlock()
	}()

	res := CollectResult{Version: v}
	a.logger.Info("collection started", "version", v, "label", v.Label())

	tasks.SendProgress(a.opts.Progress, tasks.LoadUpdate(v))
	if err := a.Load(ctx); err != nil {
		a.logger.Warn("collecting on a possibly stale snapshot", "error", err)
	}

	candidates, err := a.extractor.Extract(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to extract candidates: %w", err)
	}
	res.Found = len(candidates)
	tasks.SendProgress(a.opts.Progress, tasks.ExtractUpdate(len(candidates)))

	for i, c := range candidates {
		if a.stop.Load() {
			res.Stopped = true
			break
		}

		if err := c.Validate(); err != nil {
			res.Invalid++
			a.logger.Warn("candidate rejected", "error", fmt.Errorf("%w: %w", shared.ErrExtractionFieldMissing, err))
			continue
		}

		a.mu.Lock()
		if a.version != v {
			a.mu.Unlock()
			res.Stopped = true
			break
		}
		if a.local.Has(c.ID) {
			a.mu.Unlock()
			res.Seen++
			continue
		}
		a.local, _ = models.Merge(a.local, models.Snapshot{SavedUserList: []models.UserRecord{c}})
		snap := a.local.Clone()
		a.mu.Unlock()

		res.Added++
		a.logger.Debug("record found", "id", c.ID, "username", c.Username, "douyin_id", c.DouyinID)

		if err := a.submit(ctx, v, snap); err != nil {
			res.Total = a.Snapshot().Len()
			return res, err
		}

		percent := (i + 1) * 100 / len(candidates)
		tasks.SendProgress(a.opts.Progress, tasks.SubmitUpdate(i+1, len(candidates), c))
		a.notifyProgress(ctx, v, percent)
	}

	if !res.Stopped {
		a.notifyProgress(ctx, v, 100)
	}

	st := a.Stats()
	res.Total = st.Total
	a.logger.Info("collection finished",
		"version", v, "found", res.Found, "added", res.Added, "total", st.Total,
		"phone", st.WithPhone, "wechat", st.WithWechat, "stopped", res.Stopped)
	return res, nil
}

// submit saves snap and reads it back, retrying with a fixed delay until the broker holds a non-empty namespace.
func (a *Agent) submit(ctx context.Context, v models.Version, snap models.Snapshot) error {
	for attempt := 1; ; attempt++ {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := a.save(ctx, v, snap)
		if err == nil {
			stored, ferr := a.fetch(ctx, v)
			switch {
			case ferr != nil:
				err = ferr
			case stored.Len() == 0:
				err = fmt.Errorf("%w: broker snapshot of %s is empty after save", shared.ErrVerification, v)
			default:
				tasks.SendProgress(a.opts.Progress, tasks.VerifyUpdate(attempt, attempt, stored.Len()))
				return nil
			}
		}

		a.logger.Warn("submission failed, retrying", "version", v, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("submission abandoned: %w", errors.Join(err, ctx.Err()))
		case <-time.After(a.opts.RetryDelay):
		}
	}
}

// ExportTXT renders the working snapshot as a text export and hands it to the broker for download.
func (a *Agent) ExportTXT(ctx context.Context) (string, error) {
	users := a.Snapshot().SavedUserList

	data, err := formatter.Export(users, formatter.Options{Format: formatter.FormatTXT})
	if err != nil {
		return "", err
	}

	caller, err := a.currentCaller()
	if err != nil {
		return "", err
	}

	url := services.DataURL(formatter.FormatTXT.MediaType(), data)
	resp, err := caller.Call(ctx, protocol.NewDownload(url, formatter.Filename(formatter.FormatTXT, a.now())))
	if err != nil {
		return "", fmt.Errorf("%w: downloadTXT: %w", shared.ErrMessageChannel, err)
	}
	if err := resp.Err(); err != nil {
		return "", err
	}
	a.logger.Info("export stored", "records", len(users), "download_id", resp.DownloadID)
	return resp.DownloadID, nil
}
