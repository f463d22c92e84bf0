package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/leadsync/internal/shared"
)

// Run attaches and then keeps the working snapshot fresh until ctx ends.
//
// The snapshot is reloaded every PollInterval while no pass is running. The broker channel is probed every
// LivenessInterval; a failed probe triggers [Agent.Recover].
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Attach(ctx); err != nil {
		a.logger.Warn("attach failed, dataset may be stale", "error", err)
	}

	poll := time.NewTicker(a.opts.PollInterval)
	defer poll.Stop()
	live := time.NewTicker(a.opts.LivenessInterval)
	defer live.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			if a.Collecting() {
				continue
			}
			if err := a.Load(ctx); err != nil {
				a.logger.Warn("refresh failed, dataset may be stale", "error", err)
			}
		case <-live.C:
			if err := a.probe(ctx); err != nil {
				a.logger.Error("context invalidated", "error", err)
				if err := a.Recover(ctx); err != nil {
					a.logger.Warn("recovery failed", "error", err)
				}
			}
		}
	}
}

func (a *Agent) probe(ctx context.Context) error {
	caller, err := a.currentCaller()
	if err != nil {
		return err
	}
	pctx, cancel := context.WithTimeout(ctx, max(a.opts.LivenessInterval, time.Second))
	defer cancel()
	if err := caller.Ping(pctx); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrContextInvalidated, err)
	}
	return nil
}

// Recover rebuilds the agent's own state after its channel to the broker was invalidated.
//
// A configured reconnect function supplies the new channel; the working snapshot is then reloaded from it.
func (a *Agent) Recover(ctx context.Context) error {
	if a.opts.Reconnect != nil {
		caller, err := a.opts.Reconnect(ctx)
		if err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
		a.SetCaller(caller)
		a.logger.Info("reconnected")
	}
	return a.Load(ctx)
}
