package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/leadsync/internal/display"
	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/shared"
	"github.com/desertthunder/leadsync/internal/transport"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, agentCommand, collectCommand, watchCommand,
		statsCommand, exportCommand, bulkExportCommand, clearCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the file named by --config and applies the log level.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" && path != r.configPath {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return ctx, err
		}
		r.config = config
		r.configPath = path
	}

	level := r.config.Log.Level
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}
	lvl, err := shared.ParseLevel(level)
	if err != nil {
		return ctx, err
	}
	shared.SetLogLevel(r.logger, lvl)
	return ctx, nil
}

// SetLogger replaces the logger, e.g. to keep log lines out of the TUI.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// endpoint returns the broker websocket URL from --url or the [server] section.
func (r *Runner) endpoint(cmd *cli.Command) string {
	if u := cmd.String("url"); u != "" {
		return u
	}
	return r.config.Server.WebsocketURL()
}

// namespace reads --namespace, defaulting to fallback.
func (r *Runner) namespace(cmd *cli.Command, fallback string) (models.Version, error) {
	s := cmd.String("namespace")
	if s == "" {
		s = fallback
	}
	v, err := models.ParseVersion(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return v, nil
}

// peerSet tracks the websocket peers opened for one command so they can all be closed.
type peerSet struct {
	mu    sync.Mutex
	peers []*transport.Peer
}

func (s *peerSet) add(p *transport.Peer) {
	s.mu.Lock()
	s.peers = append(s.peers, p)
	s.mu.Unlock()
}

func (s *peerSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.peers {
		_ = p.Close()
	}
	s.peers = nil
}

// connectDisplay dials the broker as a display and returns an attached client.
func (r *Runner) connectDisplay(ctx context.Context, cmd *cli.Command) (*display.Client, *peerSet, error) {
	v, err := r.namespace(cmd, r.config.DisplayVersion())
	if err != nil {
		return nil, nil, err
	}

	url := r.endpoint(cmd)
	peers := &peerSet{}
	var client *display.Client
	dial := func(ctx context.Context) (transport.Caller, error) {
		p, err := transport.Dial(ctx, url, transport.RoleDisplay, client, r.logger)
		if err != nil {
			return nil, err
		}
		peers.add(p)
		return p, nil
	}

	opts := display.OptionsFromConfig(r.config)
	opts.Version = v
	opts.Reconnect = dial
	opts.Logger = r.logger
	client = display.NewClient(nil, opts)

	caller, err := dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	client.SetCaller(caller)
	return client, peers, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	rule := strings.Repeat("═", 39)
	r.writePlain("%s\n%v\n%s\n", rule, title, rule)
}
