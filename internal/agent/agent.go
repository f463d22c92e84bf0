package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/protocol"
	"github.com/desertthunder/leadsync/internal/repositories"
	"github.com/desertthunder/leadsync/internal/services"
	"github.com/desertthunder/leadsync/internal/shared"
	"github.com/desertthunder/leadsync/internal/tasks"
	"github.com/desertthunder/leadsync/internal/transport"
	"golang.org/x/time/rate"
)

const (
	defaultPollInterval     = 5 * time.Second
	defaultLivenessInterval = time.Second
	defaultRetryDelay       = time.Second
)

// ReconnectFunc opens a fresh channel to the broker after the previous one was invalidated.
type ReconnectFunc func(ctx context.Context) (transport.Caller, error)

// Options configures an [Agent].
type Options struct {
	Version          models.Version
	PollInterval     time.Duration
	LivenessInterval time.Duration
	RetryDelay       time.Duration
	SubmitRate       float64                     // submissions per second; zero means unlimited
	Fallback         repositories.RecordStore    // read directly when the broker is unreachable; optional
	Reconnect        ReconnectFunc               // optional
	Progress         chan<- tasks.ProgressUpdate // optional
	Logger           *log.Logger
}

// OptionsFromConfig builds [Options] from the [agent] config section.
func OptionsFromConfig(cfg shared.AgentConfig) (Options, error) {
	v, err := models.ParseVersion(cfg.Version)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	return Options{
		Version:          v,
		PollInterval:     cfg.PollInterval.Duration,
		LivenessInterval: cfg.LivenessInterval.Duration,
		RetryDelay:       cfg.RetryDelay.Duration,
		SubmitRate:       cfg.SubmitRate,
	}, nil
}

// CollectResult summarizes one collection pass.
type CollectResult struct {
	Version models.Version
	Found   int  // candidates returned by the extractor
	Added   int  // new records submitted
	Seen    int  // candidates skipped as duplicates
	Invalid int  // candidates without any identifying field
	Total   int  // records in the working copy afterwards
	Stopped bool // the pass ended on the stop flag
}

// Agent is a collection agent for one namespace at a time.
type Agent struct {
	id        string
	extractor services.Extractor
	opts      Options
	logger    *log.Logger
	limiter   *rate.Limiter
	now       func() time.Time

	mu         sync.Mutex
	caller     transport.Caller
	version    models.Version
	local      models.Snapshot
	collecting bool

	stop atomic.Bool
}

// New creates an agent that talks to the broker through caller, which may be set later with [Agent.SetCaller].
func New(caller transport.Caller, extractor services.Extractor, opts Options) *Agent {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.LivenessInterval <= 0 {
		opts.LivenessInterval = defaultLivenessInterval
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	var limiter *rate.Limiter
	if opts.SubmitRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.SubmitRate), 1)
	}

	id := shared.GenerateID()
	return &Agent{
		id:        id,
		extractor: extractor,
		opts:      opts,
		logger:    shared.WithLogger(opts.Logger, "component", "agent", "agent", id[:8]),
		limiter:   limiter,
		now:       time.Now,
		caller:    caller,
		version:   opts.Version.OrDefault(),
		local:     models.EmptySnapshot(),
	}
}

// ID returns the agent's unique id.
func (a *Agent) ID() string { return a.id }

// SetCaller replaces the channel to the broker.
func (a *Agent) SetCaller(c transport.Caller) {
	a.mu.Lock()
	a.caller = c
	a.mu.Unlock()
}

func (a *Agent) currentCaller() (transport.Caller, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.caller == nil {
		return nil, fmt.Errorf("%w: agent is not attached", shared.ErrContextInvalidated)
	}
	return a.caller, nil
}

// Version returns the namespace the agent collects into.
func (a *Agent) Version() models.Version {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version
}

// Snapshot returns a copy of the working snapshot.
func (a *Agent) Snapshot() models.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.local.Clone()
}

// Collecting reports whether a pass is running.
func (a *Agent) Collecting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.collecting
}

// Stats counts the records of the working snapshot.
func (a *Agent) Stats() models.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.local.Stats()
}

// Attach loads the namespace snapshot for the first time.
func (a *Agent) Attach(ctx context.Context) error {
	if err := a.Load(ctx); err != nil {
		return err
	}
	st := a.Stats()
	a.logger.Info("attached", "version", a.Version(), "records", st.Total, "phone", st.WithPhone)
	return nil
}

// Load replaces the working snapshot with the broker's.
//
// When the broker cannot be reached and a fallback store is configured, the store is read directly instead.
// On failure the working snapshot is left as it was.
func (a *Agent) Load(ctx context.Context) error {
	v := a.Version()
	snap, err := a.fetch(ctx, v)
	if err != nil {
		if a.opts.Fallback == nil {
			return err
		}
		stored, ferr := a.opts.Fallback.Get(ctx, v)
		if ferr != nil {
			return errors.Join(err, ferr)
		}
		a.logger.Warn("broker unreachable, loaded from store", "version", v, "error", err)
		snap = models.EmptySnapshot()
		if stored != nil {
			snap = stored.Clone()
		}
	}

	a.mu.Lock()
	if a.version == v {
		a.local = snap
	}
	a.mu.Unlock()
	return nil
}

// Stop asks a running pass to end before its next candidate.
func (a *Agent) Stop() string {
	a.stop.Store(true)
	return protocol.StatusStopped
}

// SetVersion switches the namespace and reloads the working snapshot.
func (a *Agent) SetVersion(ctx context.Context, v models.Version) error {
	if !v.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownVersion, v)
	}
	a.mu.Lock()
	if a.version != v {
		a.version = v
		a.local = models.EmptySnapshot()
	}
	a.mu.Unlock()

	a.logger.Info("version switched", "version", v, "label", v.Label())
	return a.Load(ctx)
}

// Reset empties the working snapshot of v if it is the current namespace.
func (a *Agent) Reset(v models.Version) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.version == v.OrDefault() {
		a.local = models.EmptySnapshot()
	}
}

// Replace overwrites the working snapshot.
func (a *Agent) Replace(snap models.Snapshot) {
	a.mu.Lock()
	a.local = snap.Clone()
	a.mu.Unlock()
}

// fetch reads the broker's snapshot of v.
func (a *Agent) fetch(ctx context.Context, v models.Version) (models.Snapshot, error) {
	caller, err := a.currentCaller()
	if err != nil {
		return models.Snapshot{}, err
	}
	resp, err := caller.Call(ctx, protocol.NewGetSavedData(v))
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: getSavedData: %w", shared.ErrMessageChannel, err)
	}
	if err := resp.Err(); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: getSavedData: %v", shared.ErrMessageChannel, err)
	}
	return resp.Snapshot(), nil
}

func (a *Agent) save(ctx context.Context, v models.Version, snap models.Snapshot) error {
	caller, err := a.currentCaller()
	if err != nil {
		return err
	}
	resp, err := caller.Call(ctx, protocol.NewSaveData(v, snap))
	if err != nil {
		return fmt.Errorf("%w: saveData: %w", shared.ErrMessageChannel, err)
	}
	if err := resp.Err(); err != nil {
		return fmt.Errorf("%w: saveData: %v", shared.ErrStorageWrite, err)
	}
	return nil
}

// notifyProgress tells the broker how far the pass is; failures only cost a progress update.
func (a *Agent) notifyProgress(ctx context.Context, v models.Version, percent int) {
	caller, err := a.currentCaller()
	if err != nil {
		return
	}
	if err := caller.Notify(ctx, protocol.NewUpdateProgress(v, percent)); err != nil {
		a.logger.Debug("progress notification dropped", "error", err)
	}
}
