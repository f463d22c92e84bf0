package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/leadsync/internal/broker"
	"github.com/desertthunder/leadsync/internal/repositories"
	"github.com/desertthunder/leadsync/internal/server"
	"github.com/desertthunder/leadsync/internal/services"
	"github.com/desertthunder/leadsync/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
)

// Serve runs the broker until interrupted. Dirty namespaces get a final flush on the way out.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) (err error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := repositories.Open(r.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer func() { err = errors.Join(err, store.Close()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts, err := broker.OptionsFromConfig(r.config.Broker)
	if err != nil {
		return err
	}
	downloads := cmd.String("downloads")
	if downloads == "" {
		downloads = r.config.Export.Dir
	}
	opts.Downloader = services.NewFileDownloader(downloads, r.httpClient)
	opts.Logger = r.logger
	opts.Metrics = broker.NewMetrics(reg)

	b := broker.New(store, opts)
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(context.Background()); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	srvOpts := server.Options{Snapshots: b, Progress: b, Mux: transport.NewMux(b), Gatherer: reg, Logger: r.logger}
	srv := server.ServerFromConfig(r.config.Server, srvOpts)
	if addr := cmd.String("addr"); addr != "" {
		srv = server.New(addr, srvOpts)
	}

	r.logger.Info("broker ready", "store", r.config.Storage.DSN, "downloads", downloads, "merge_policy", opts.MergePolicy)
	return srv.ListenAndServe(ctx)
}
