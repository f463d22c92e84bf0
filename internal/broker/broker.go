package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/repositories"
	"github.com/desertthunder/leadsync/internal/services"
	"github.com/desertthunder/leadsync/internal/shared"
)

// MergePolicy decides how a submitted snapshot combines with the cached one.
type MergePolicy string

const (
	// MergeUnion keeps every cached record and appends unseen submitted ones.
	MergeUnion MergePolicy = "union"
	// MergeReplace overwrites the cache with the submission. A stale submitter can drop records.
	MergeReplace MergePolicy = "replace"
)

// ParseMergePolicy maps a config value onto a [MergePolicy]; empty selects [MergeUnion].
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(s) {
	case "", MergeUnion:
		return MergeUnion, nil
	case MergeReplace:
		return MergeReplace, nil
	default:
		return "", fmt.Errorf("%w: merge policy %q", shared.ErrInvalidConfig, s)
	}
}

// Options configures a [Broker].
type Options struct {
	FlushInterval time.Duration
	RetryDelay    time.Duration
	MergePolicy   MergePolicy
	Downloader    services.Downloader // serves downloadTXT; optional
	Logger        *log.Logger
	Metrics       *Metrics
}

// OptionsFromConfig builds [Options] from the [broker] config section.
func OptionsFromConfig(cfg shared.BrokerConfig) (Options, error) {
	policy, err := ParseMergePolicy(cfg.MergePolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		FlushInterval: cfg.FlushInterval.Duration,
		RetryDelay:    cfg.RetryDelay.Duration,
		MergePolicy:   policy,
	}, nil
}

const (
	defaultFlushInterval = 30 * time.Second
	defaultRetryDelay    = time.Second
)

// Progress is a collection progress notification relayed to subscribers.
type Progress struct {
	Version models.Version
	Percent int
}

// Broker is the synchronization broker.
type Broker struct {
	store    repositories.RecordStore
	registry *Registry
	opts     Options
	logger   *log.Logger
	metrics  *Metrics

	queueMu  sync.Mutex
	queued   map[models.Version]bool
	retrying map[models.Version]bool
	wake     chan struct{}

	subMu  sync.Mutex
	subs   map[int]chan Progress
	nextID int

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	runCtx  context.Context
	wg      sync.WaitGroup
	started bool
}

// New creates a broker over store. Call [Broker.Start] before serving requests.
func New(store repositories.RecordStore, opts Options) *Broker {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.MergePolicy == "" {
		opts.MergePolicy = MergeUnion
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}

	return &Broker{
		store:    store,
		registry: NewRegistry(),
		opts:     opts,
		logger:   shared.WithLogger(opts.Logger, "component", "broker"),
		metrics:  opts.Metrics,
		queued:   make(map[models.Version]bool),
		retrying: make(map[models.Version]bool),
		wake:     make(chan struct{}, 1),
		subs:     make(map[int]chan Progress),
		runCtx:   context.Background(),
	}
}

// Registry exposes the namespace partitions.
func (b *Broker) Registry() *Registry { return b.registry }

// Start loads every namespace from the store and starts the write worker, the flush timer and, when the store
// supports it, the change watcher. A namespace that fails to load is retried lazily on first use.
func (b *Broker) Start(ctx context.Context) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	if b.started {
		return nil
	}

	for _, p := range b.registry.All() {
		if err := b.ensureLoaded(ctx, p); err != nil {
			b.logger.Warn("initial load failed", "version", p.version, "error", err)
			continue
		}
		b.logger.Info("namespace loaded", "version", p.version, "records", p.Snapshot().Len())
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.runCtx = runCtx
	b.cancel = cancel
	b.started = true

	b.wg.Add(2)
	go b.writeWorker(runCtx)
	go b.flushLoop(runCtx)

	if w, ok := b.store.(repositories.Watcher); ok {
		events, err := w.Watch(runCtx)
		if err != nil {
			b.logger.Warn("storage watch unavailable", "error", err)
		} else if events != nil {
			b.wg.Add(1)
			go b.watchLoop(events)
		}
	}
	return nil
}

// Close stops the background loops and makes one flush attempt for every dirty namespace and every pending removal.
func (b *Broker) Close(ctx context.Context) error {
	b.lifeMu.Lock()
	if b.started {
		b.cancel()
		b.started = false
	}
	b.lifeMu.Unlock()
	b.wg.Wait()

	var errs []error
	for _, p := range b.registry.All() {
		if !p.Dirty() && !p.RemovePending() {
			continue
		}
		if err := b.flushOnce(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("final flush of %s: %w", p.version, err))
		}
	}

	b.subMu.Lock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
	b.subMu.Unlock()

	return errors.Join(errs...)
}

// lifeCtx is the context of the background loops, or Background before [Broker.Start].
func (b *Broker) lifeCtx() context.Context {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	return b.runCtx
}

func (b *Broker) lookup(v models.Version) (*Partition, error) {
	p, err := b.registry.Lookup(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}
	return p, nil
}

// ensureLoaded reads the store into p once. The stored snapshot is the base; cached records not yet durable are
// merged after it.
func (b *Broker) ensureLoaded(ctx context.Context, p *Partition) error {
	if p.Loaded() {
		return nil
	}
	stored, err := b.store.Get(ctx, p.version)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return nil
	}
	if stored != nil {
		merged, added := models.Merge(*stored, p.snap)
		if added > 0 {
			p.dirty = true
		}
		p.snap = merged
	}
	p.loaded = true
	b.metrics.Records.WithLabelValues(string(p.version)).Set(float64(p.snap.Len()))
	return nil
}

// SaveData applies snap to the cached namespace and schedules a durable write.
func (b *Broker) SaveData(ctx context.Context, v models.Version, snap models.Snapshot) error {
	p, err := b.lookup(v)
	if err != nil {
		return err
	}
	if err := b.ensureLoaded(ctx, p); err != nil {
		b.logger.Warn("saving into a namespace that failed to load", "version", p.version, "error", err)
	}

	p.mu.Lock()
	added := 0
	switch b.opts.MergePolicy {
	case MergeReplace:
		p.snap = snap.Clone()
		added = p.snap.Len()
	default:
		p.snap, added = models.Merge(p.snap, snap)
	}
	p.dirty = true
	total := p.snap.Len()
	p.mu.Unlock()

	b.metrics.Records.WithLabelValues(string(p.version)).Set(float64(total))
	b.logger.Debug("snapshot saved", "version", p.version, "added", added, "records", total)
	b.schedule(p.version)
	return nil
}

// GetSavedData returns a copy of the cached namespace, reading the store first if it was never loaded.
func (b *Broker) GetSavedData(ctx context.Context, v models.Version) (models.Snapshot, error) {
	p, err := b.lookup(v)
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := b.ensureLoaded(ctx, p); err != nil {
		return models.Snapshot{}, fmt.Errorf("load %s: %w", p.version, err)
	}
	return p.Snapshot(), nil
}

// Reload reads the namespace from the store and merges the cache after it, so records present in the store are
// never lost from memory. While a clear's removal is pending the stored keys are stale and only the cache is returned.
func (b *Broker) Reload(ctx context.Context, v models.Version) (models.Snapshot, error) {
	p, err := b.lookup(v)
	if err != nil {
		return models.Snapshot{}, err
	}
	stored, err := b.store.Get(ctx, p.version)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("reload %s: %w", p.version, err)
	}

	p.mu.Lock()
	if stored != nil && !p.removing {
		merged, added := models.Merge(*stored, p.snap)
		if added > 0 {
			p.dirty = true
		}
		p.snap = merged
	}
	p.loaded = true
	out := p.snap.Clone()
	p.mu.Unlock()

	b.metrics.Records.WithLabelValues(string(p.version)).Set(float64(out.Len()))
	return out, nil
}

// ClearData empties the namespace in memory and removes its durable keys. When the removal fails the error is
// returned and the write worker keeps retrying it every [Options.RetryDelay] until the keys are gone.
func (b *Broker) ClearData(ctx context.Context, v models.Version) error {
	p, err := b.lookup(v)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.snap = models.EmptySnapshot()
	p.gen++
	p.dirty = false
	p.loaded = true
	p.removing = true
	gen := p.gen
	p.mu.Unlock()

	b.queueMu.Lock()
	delete(b.queued, p.version)
	b.queueMu.Unlock()

	p.writeMu.Lock()
	err = b.removeOnce(ctx, p, gen)
	p.writeMu.Unlock()

	b.metrics.Records.WithLabelValues(string(p.version)).Set(0)
	if err != nil {
		b.recordRetry(p, 1, err)
		b.retryLater(b.lifeCtx(), p.version)
		return fmt.Errorf("clear %s: %w", p.version, err)
	}
	b.logger.Info("namespace cleared", "version", p.version)
	return nil
}

// Subscribe registers for progress notifications. Slow subscribers miss updates rather than block the broker.
// The returned func unsubscribes.
func (b *Broker) Subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 16)

	b.subMu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.subMu.Unlock()

	return ch, func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		if c, ok := b.subs[id]; ok {
			close(c)
			delete(b.subs, id)
		}
	}
}

func (b *Broker) publish(p Progress) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

func (b *Broker) download(ctx context.Context, req services.DownloadRequest) (string, error) {
	if b.opts.Downloader == nil {
		return "", fmt.Errorf("%w: no downloader configured", shared.ErrNotImplemented)
	}
	return b.opts.Downloader.Download(ctx, req)
}
