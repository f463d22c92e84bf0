package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/leadsync/internal/models"
	"github.com/desertthunder/leadsync/internal/repositories"
	"github.com/desertthunder/leadsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup writes the config file when missing, then opens the record store once so SQLite migrations are applied.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("path")

	if _, err := os.Stat(configPath); err == nil {
		r.logger.Info("using existing config file", "path", configPath)
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		return err
	}
	r.config = config
	r.configPath = configPath

	r.logger.Info("initializing record store", "dsn", config.Storage.DSN)
	store, err := repositories.Open(config.Storage)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer store.Close()

	r.writePlainHeader("leadsync setup complete")
	r.writePlain("Config: %s\nStore:  %s\n", configPath, config.Storage.DSN)
	for _, v := range models.Versions {
		snap, err := store.Get(ctx, v)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", v, err)
		}
		n := 0
		if snap != nil {
			n = snap.Len()
		}
		r.writePlain("%s (%s): %d records\n", v.Label(), v, n)
	}
	return nil
}
