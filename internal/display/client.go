package display

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/leadsync/internal/formatter"
	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/protocol"
	"github.com/desertthunder/leadsync/internal/services"
	"github.com/desertthunder/leadsync/internal/shared"
	"github.com/desertthunder/leadsync/internal/transport"
)

const (
	defaultPollInterval     = 2 * time.Second
	defaultLivenessInterval = time.Second
)

// ReconnectFunc opens a fresh channel to the broker after the previous one was invalidated.
type ReconnectFunc func(ctx context.Context) (transport.Caller, error)

// Options configures a [Client].
type Options struct {
	Version          models.Version
	PollInterval     time.Duration
	LivenessInterval time.Duration
	Location         *time.Location // export timestamps; defaults to the local zone
	Reconnect        ReconnectFunc
	Logger           *log.Logger
}

// OptionsFromConfig builds [Options] from the [display] and [export] config sections.
func OptionsFromConfig(cfg *shared.Config) Options {
	return Options{
		Version:      models.Version(cfg.DisplayVersion()).OrDefault(),
		PollInterval: cfg.Display.PollInterval.Duration,
		Location:     cfg.Export.Location(),
	}
}

// State is what a display shows: the last snapshot read and how fresh it is.
type State struct {
	Version   models.Version
	Snapshot  models.Snapshot
	Stats     models.Stats
	Stale     bool  // the last read failed; Snapshot is from an earlier one
	Err       error // cause of staleness
	Progress  int   // last collection progress reported by the agent, 0..100
	UpdatedAt time.Time
}

// ExportOptions selects what [Client.Export] writes.
type ExportOptions struct {
	Format   formatter.Format
	CSV      formatter.CSVOptions
	Filter   Filter
	Filename string // defaults to [formatter.Filename]
}

// Client is a pull-only display of one namespace.
type Client struct {
	opts   Options
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	caller   transport.Caller
	state    State
	focus    chan struct{}
	progress chan int
}

// NewClient creates a display client that reads through caller, which may be set later with [Client.SetCaller].
func NewClient(caller transport.Caller, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.LivenessInterval <= 0 {
		opts.LivenessInterval = defaultLivenessInterval
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	v := opts.Version.OrDefault()
	return &Client{
		opts:     opts,
		logger:   shared.WithLogger(opts.Logger, "component", "display"),
		now:      time.Now,
		caller:   caller,
		state:    State{Version: v, Snapshot: models.EmptySnapshot()},
		focus:    make(chan struct{}, 1),
		progress: make(chan int, 16),
	}
}

// SetCaller replaces the channel to the broker.
func (c *Client) SetCaller(caller transport.Caller) {
	c.mu.Lock()
	c.caller = caller
	c.mu.Unlock()
}

func (c *Client) currentCaller() (transport.Caller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.caller == nil {
		return nil, fmt.Errorf("%w: display is not attached", shared.ErrContextInvalidated)
	}
	return c.caller, nil
}

// Version returns the namespace shown.
func (c *Client) Version() models.Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Version
}

// State returns a copy of the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.Snapshot = st.Snapshot.Clone()
	return st
}

// Snapshot returns a copy of the last snapshot read.
func (c *Client) Snapshot() models.Snapshot {
	return c.State().Snapshot
}

// Stats counts the records of the last snapshot read.
func (c *Client) Stats() models.Stats {
	return c.State().Stats
}

// Progress delivers collection progress pushed by the broker.
func (c *Client) Progress() <-chan int { return c.progress }

// Focus requests an immediate refresh from [Client.Run], as when the display regains visibility.
func (c *Client) Focus() {
	select {
	case c.focus <- struct{}{}:
	default:
	}
}

// Refresh reads the namespace snapshot from the broker.
//
// On failure the previous snapshot is kept and the state is marked stale.
func (c *Client) Refresh(ctx context.Context) (State, error) {
	v := c.Version()
	snap, err := c.read(ctx, v)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Version != v {
		// switched while reading; the reply belongs to the old namespace
		return c.stateLocked(), nil
	}
	if err != nil {
		c.state.Stale = true
		c.state.Err = err
		c.logger.Warn("refresh failed, dataset may be stale", "version", v, "error", err)
		return c.stateLocked(), err
	}
	c.state.Snapshot = snap
	c.state.Stats = snap.Stats()
	c.state.Stale = false
	c.state.Err = nil
	c.state.UpdatedAt = c.now()
	return c.stateLocked(), nil
}

func (c *Client) stateLocked() State {
	st := c.state
	st.Snapshot = st.Snapshot.Clone()
	return st
}

func (c *Client) read(ctx context.Context, v models.Version) (models.Snapshot, error) {
	caller, err := c.currentCaller()
	if err != nil {
		return models.Snapshot{}, err
	}
	resp, err := caller.Call(ctx, protocol.NewGetSavedData(v))
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %w", shared.ErrMessageChannel, err)
	}
	if err := resp.Err(); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %w", shared.ErrStorageRead, err)
	}
	return resp.Snapshot(), nil
}

// GetSavedData reads the snapshot of any namespace without changing the one displayed.
func (c *Client) GetSavedData(ctx context.Context, v models.Version) (models.Snapshot, error) {
	return c.read(ctx, v)
}

// SetVersion switches the displayed namespace, asks the agent to follow and refreshes.
//
// The agent may be absent; that is logged and does not fail the switch.
func (c *Client) SetVersion(ctx context.Context, v models.Version) (State, error) {
	if !v.Valid() {
		return c.State(), fmt.Errorf("%w: unknown version %q", shared.ErrInvalidArgument, v)
	}
	c.mu.Lock()
	if c.state.Version != v {
		c.state = State{Version: v, Snapshot: models.EmptySnapshot()}
	}
	c.mu.Unlock()

	if resp, err := c.call(ctx, protocol.NewSetVersion(v)); err != nil {
		c.logger.Debug("agent did not follow version switch", "version", v, "error", err)
	} else if err := resp.Err(); err != nil {
		c.logger.Debug("agent did not follow version switch", "version", v, "error", err)
	}
	return c.Refresh(ctx)
}

func (c *Client) call(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	caller, err := c.currentCaller()
	if err != nil {
		return protocol.Response{}, err
	}
	resp, err := caller.Call(ctx, req)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%w: %w", shared.ErrMessageChannel, err)
	}
	return resp, nil
}

// Clear removes the namespace from the broker, then re-reads it. The clear reply alone is not trusted.
func (c *Client) Clear(ctx context.Context) (State, error) {
	v := c.Version()
	resp, err := c.call(ctx, protocol.NewClearData(v))
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		c.logger.Error("clear failed", "version", v, "error", err)
		st, _ := c.Refresh(ctx)
		return st, fmt.Errorf("failed to clear %s: %w", v, err)
	}
	c.logger.Info("cleared", "version", v)
	return c.Refresh(ctx)
}

// Collect asks the attached agent to run a pass in the displayed namespace, then refreshes.
func (c *Client) Collect(ctx context.Context) (State, error) {
	return c.command(ctx, protocol.NewCollect(c.Version()))
}

// Stop raises the agent's stop flag, then refreshes.
func (c *Client) Stop(ctx context.Context) (State, error) {
	return c.command(ctx, protocol.NewStop())
}

func (c *Client) command(ctx context.Context, req protocol.Request) (State, error) {
	resp, err := c.call(ctx, req)
	if err == nil {
		err = resp.Err()
	}
	st, rerr := c.Refresh(ctx)
	if err != nil {
		return st, fmt.Errorf("%s failed: %w", req.Action, err)
	}
	return st, rerr
}

// Export refreshes, filters and formats the namespace and hands the file to the broker's downloader.
// It returns the download id.
func (c *Client) Export(ctx context.Context, opts ExportOptions) (string, error) {
	st, err := c.Refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to refresh before export: %w", err)
	}
	users, err := Apply(st.Snapshot.SavedUserList, opts.Filter)
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", fmt.Errorf("%w: nothing to export", shared.ErrInvalidInput)
	}

	if opts.Format == "" {
		opts.Format = formatter.FormatTXT
	}
	if opts.CSV.Location == nil {
		opts.CSV.Location = c.opts.Location
	}
	data, err := formatter.Export(users, formatter.Options{Format: opts.Format, CSV: opts.CSV})
	if err != nil {
		return "", err
	}
	name := opts.Filename
	if name == "" {
		name = formatter.Filename(opts.Format, c.now().In(c.opts.Location))
	}

	resp, err := c.call(ctx, protocol.NewDownload(services.DataURL(opts.Format.MediaType(), data), name))
	if err != nil {
		return "", err
	}
	if err := resp.Err(); err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	c.logger.Info("exported", "version", st.Version, "format", opts.Format, "records", len(users), "file", name)
	return resp.DownloadID, nil
}

// Handle serves requests pushed to the display: progress notifications and liveness pings.
func (c *Client) Handle(_ context.Context, req protocol.Request) protocol.Response {
	cmd, err := req.Command()
	if err != nil {
		return protocol.Fail(err)
	}
	switch cmd := cmd.(type) {
	case protocol.UpdateProgress:
		c.mu.Lock()
		if cmd.Version == c.state.Version {
			c.state.Progress = cmd.Progress
		}
		c.mu.Unlock()
		select {
		case c.progress <- cmd.Progress:
		default:
		}
		return protocol.OK()
	case protocol.Ping:
		return protocol.OK()
	default:
		return protocol.Fail(fmt.Errorf("%w: %s is not served by a display", shared.ErrUnknownAction, cmd.Action()))
	}
}

// Run refreshes every PollInterval and on [Client.Focus] until ctx ends, calling onUpdate with each new state.
//
// The broker channel is probed every LivenessInterval; after a failed probe the configured reconnect function
// supplies a new channel and the display re-reads its own state.
func (c *Client) Run(ctx context.Context, onUpdate func(State)) error {
	emit := func(st State) {
		if onUpdate != nil {
			onUpdate(st)
		}
	}
	st, _ := c.Refresh(ctx)
	emit(st)

	poll := time.NewTicker(c.opts.PollInterval)
	defer poll.Stop()
	live := time.NewTicker(c.opts.LivenessInterval)
	defer live.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
		case <-c.focus:
		case <-live.C:
			err := c.probe(ctx)
			if err == nil {
				continue
			}
			c.logger.Error("context invalidated", "error", err)
			if err := c.recover(ctx); err != nil {
				c.logger.Warn("recovery failed", "error", err)
				continue
			}
		}
		st, _ := c.Refresh(ctx)
		emit(st)
	}
}

func (c *Client) probe(ctx context.Context) error {
	caller, err := c.currentCaller()
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, max(c.opts.LivenessInterval, time.Second))
	defer cancel()
	if err := caller.Ping(pctx); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrContextInvalidated, err)
	}
	return nil
}

func (c *Client) recover(ctx context.Context) error {
	if c.opts.Reconnect == nil {
		return nil
	}
	caller, err := c.opts.Reconnect(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconnect: %w", err)
	}
	c.SetCaller(caller)
	c.logger.Info("reconnected")
	return nil
}
