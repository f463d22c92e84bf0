package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/leadsync/internal/display"
	"github.com/desertthunder/leadsync/internal/shared"
	"github.com/desertthunder/leadsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// Watch launches the interactive terminal display.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, logFile, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer logFile.Close()
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	client, peers, err := r.connectDisplay(ctx, cmd)
	if err != nil {
		return err
	}
	defer peers.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(ctx, client, -1)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))

	// the client polls, probes liveness and reconnects; the model only renders what it reads
	go func() {
		_ = client.Run(ctx, func(st display.State) { p.Send(ui.StateUpdated(st)) })
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
