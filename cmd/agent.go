package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/leadsync/internal/agent"
	"github.com/desertthunder/leadsync/internal/repositories"
	"github.com/desertthunder/leadsync/internal/services"
	"github.com/desertthunder/leadsync/internal/tasks"
	"github.com/desertthunder/leadsync/internal/transport"
	"github.com/urfave/cli/v3"
)

// connectAgent dials the broker as an agent reading candidates from --source.
func (r *Runner) connectAgent(ctx context.Context, cmd *cli.Command, opts agent.Options) (*agent.Agent, *peerSet, error) {
	v, err := r.namespace(cmd, r.config.Agent.Version)
	if err != nil {
		return nil, nil, err
	}
	opts.Version = v
	opts.Logger = r.logger

	url := r.endpoint(cmd)
	peers := &peerSet{}
	var a *agent.Agent
	dial := func(ctx context.Context) (transport.Caller, error) {
		p, err := transport.Dial(ctx, url, transport.RoleAgent, a, r.logger)
		if err != nil {
			return nil, err
		}
		peers.add(p)
		return p, nil
	}
	opts.Reconnect = dial

	a = agent.New(nil, services.NewFileExtractor(cmd.String("source")), opts)
	caller, err := dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	a.SetCaller(caller)
	return a, peers, nil
}

// Agent serves collect, stop and version requests until interrupted.
func (r *Runner) Agent(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := agent.OptionsFromConfig(r.config.Agent)
	if err != nil {
		return err
	}
	if cmd.Bool("direct") {
		store, err := repositories.Open(r.config.Storage)
		if err != nil {
			return fmt.Errorf("failed to open record store: %w", err)
		}
		defer store.Close()
		opts.Fallback = store
	}

	a, peers, err := r.connectAgent(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer peers.Close()

	r.logger.Info("agent running", "id", a.ID(), "version", a.Version(), "source", cmd.String("source"))
	return a.Run(ctx)
}

// Collect runs one pass and prints its summary.
func (r *Runner) Collect(ctx context.Context, cmd *cli.Command) error {
	opts, err := agent.OptionsFromConfig(r.config.Agent)
	if err != nil {
		return err
	}
	progress := make(chan tasks.ProgressUpdate, 32)
	opts.Progress = progress

	a, peers, err := r.connectAgent(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer peers.Close()

	drainCtx, stopDrain := context.WithCancel(ctx)
	defer stopDrain()
	go func() {
		for {
			select {
			case <-drainCtx.Done():
				return
			case u := <-progress:
				r.logger.Debug("progress", "phase", u.Phase, "step", u.Step, "total", u.Total, "message", u.Message)
			}
		}
	}()

	if err := a.Attach(ctx); err != nil {
		r.logger.Warn("attach failed, dataset may be stale", "error", err)
	}
	result, err := a.Collect(ctx)
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}
	r.writePlainHeader(fmt.Sprintf("Collection %s (%s)", result.Version.Label(), result.Version))
	r.writePlain("Found:   %d\nAdded:   %d\nSeen:    %d\nInvalid: %d\nTotal:   %d\n",
		result.Found, result.Added, result.Seen, result.Invalid, result.Total)
	if result.Stopped {
		r.writePlain("Stopped before the end of the candidate list\n")
	}
	return nil
}
