package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/repositories"
	"github.com/desertthunder/leadsync/internal/shared"
)

// errStaleFlush marks a flush overtaken by a clear.
var errStaleFlush = errors.New("namespace cleared during flush")

// schedule queues a durable write of v for the write worker. Repeated calls before the worker runs coalesce.
func (b *Broker) schedule(v models.Version) {
	b.queueMu.Lock()
	b.queued[v] = true
	b.queueMu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Broker) drainQueue() []models.Version {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	var out []models.Version
	for _, v := range models.Versions {
		if b.queued[v] {
			out = append(out, v)
			delete(b.queued, v)
		}
	}
	return out
}

func (b *Broker) writeWorker(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
			for _, v := range b.drainQueue() {
				b.attempt(ctx, v)
			}
		}
	}
}

// attempt makes one flush attempt for v. A failure is rescheduled after [Options.RetryDelay] so one failing
// namespace never holds up the others.
func (b *Broker) attempt(ctx context.Context, v models.Version) {
	p, err := b.lookup(v)
	if err != nil {
		return
	}
	if err := b.flushOnce(ctx, p); err != nil {
		if ctx.Err() != nil {
			return
		}
		b.recordRetry(p, 1, err)
		b.retryLater(ctx, v)
	}
}

// retryLater schedules v again after [Options.RetryDelay]. At most one retry per namespace is pending.
func (b *Broker) retryLater(ctx context.Context, v models.Version) {
	b.queueMu.Lock()
	if b.retrying[v] {
		b.queueMu.Unlock()
		return
	}
	b.retrying[v] = true
	b.queueMu.Unlock()

	time.AfterFunc(b.opts.RetryDelay, func() {
		b.queueMu.Lock()
		delete(b.retrying, v)
		b.queueMu.Unlock()
		if ctx.Err() == nil {
			b.schedule(v)
		}
	})
}

func (b *Broker) recordRetry(p *Partition, attempt int, err error) {
	reason := "write"
	if errors.Is(err, shared.ErrVerification) {
		reason = "verify"
	}
	b.metrics.FlushRetries.WithLabelValues(string(p.version), reason).Inc()
	b.logger.Warn("flush failed, retrying", "version", p.version, "attempt", attempt, "reason", reason, "error", err)
}

func (b *Broker) flushLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range b.registry.All() {
				if p.Snapshot().Len() == 0 && !p.RemovePending() {
					continue
				}
				b.schedule(p.version)
			}
		}
	}
}

func (b *Broker) watchLoop(events <-chan repositories.ChangeEvent) {
	defer b.wg.Done()
	savedKeys := make(map[string]models.Version, len(models.Versions))
	for _, v := range models.Versions {
		savedKeys[v.Keys().Saved] = v
	}

	for ev := range events {
		v, ok := savedKeys[ev.Key]
		if !ok {
			b.logger.Debug("storage key changed", "key", ev.Key, "count", ev.Count)
			continue
		}
		if ev.Count < 0 {
			b.logger.Info("stored namespace removed", "version", v)
			continue
		}
		b.logger.Info("stored namespace updated", "version", v, "records", ev.Count)
	}
}

// Flush writes the current cache of v and verifies it, retrying every [Options.RetryDelay] until it succeeds or ctx
// ends. Each retry writes whatever the cache holds at that moment.
func (b *Broker) Flush(ctx context.Context, v models.Version) error {
	p, err := b.lookup(v)
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err := b.flushOnce(ctx, p)
		if err == nil {
			return nil
		}
		b.recordRetry(p, attempt, err)

		select {
		case <-ctx.Done():
			return err
		case <-time.After(b.opts.RetryDelay):
		}
	}
}

// flushOnce makes a single write-and-verify attempt. An empty cache is never written; it only completes a pending
// removal. A successful write also completes one, since it replaces both durable keys.
func (b *Broker) flushOnce(ctx context.Context, p *Partition) (err error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := b.ensureLoaded(ctx, p); err != nil {
		b.metrics.Flushes.WithLabelValues(string(p.version), "error").Inc()
		return fmt.Errorf("%w: load before flush: %v", shared.ErrStorageWrite, err)
	}

	p.mu.Lock()
	snap := p.snap.Clone()
	gen := p.gen
	removing := p.removing
	p.dirty = false
	p.mu.Unlock()

	if snap.Len() == 0 {
		if removing {
			return b.removeOnce(ctx, p, gen)
		}
		return nil
	}

	defer func() {
		switch {
		case err == nil:
			b.metrics.Flushes.WithLabelValues(string(p.version), "ok").Inc()
		case errors.Is(err, errStaleFlush):
			err = nil
		default:
			b.metrics.Flushes.WithLabelValues(string(p.version), "error").Inc()
			p.mu.Lock()
			if p.gen == gen {
				p.dirty = true
			}
			p.mu.Unlock()
		}
	}()

	if err := b.store.Set(ctx, p.version, snap); err != nil {
		return err
	}

	got, err := b.store.Get(ctx, p.version)
	if err != nil {
		return fmt.Errorf("%w: %w: read back: %v", shared.ErrStorageWrite, shared.ErrVerification, err)
	}
	if p.Generation() != gen {
		return errStaleFlush
	}
	if got == nil || got.Len() == 0 {
		return fmt.Errorf("%w: %w: %s read back empty after writing %d records",
			shared.ErrStorageWrite, shared.ErrVerification, p.version, snap.Len())
	}

	p.mu.Lock()
	if p.gen == gen {
		p.removing = false
	}
	p.mu.Unlock()

	b.logger.Debug("namespace flushed", "version", p.version, "records", snap.Len())
	return nil
}

// removeOnce deletes the durable keys of p. The caller holds p.writeMu.
func (b *Broker) removeOnce(ctx context.Context, p *Partition, gen uint64) error {
	if err := b.store.Remove(ctx, p.version); err != nil {
		b.metrics.Flushes.WithLabelValues(string(p.version), "error").Inc()
		return fmt.Errorf("%w: remove %s: %w", shared.ErrStorageWrite, p.version, err)
	}

	p.mu.Lock()
	if p.gen == gen {
		p.removing = false
	}
	p.mu.Unlock()
	b.logger.Debug("namespace removed", "version", p.version)
	return nil
}
