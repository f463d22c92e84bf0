// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error)",
		},
	}
}

func urlFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "url",
		Usage: "Broker websocket URL (default: derived from [server])",
	}
}

func namespaceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "namespace",
		Aliases: []string{"n"},
		Usage:   "Namespace to work on (basic or pro)",
	}
}

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
}

// setupCommand creates the config file and initializes the record store.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml and initialize the record store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Where to write the config file",
				Value: "config.toml",
			},
		},
		Action: r.Setup,
	}
}

// serveCommand runs the synchronization broker.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"broker"},
		Usage:   "Run the synchronization broker with its websocket hub and HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: [server] host:port)",
			},
			&cli.StringFlag{
				Name:  "downloads",
				Usage: "Directory for downloadTXT files (default: [export] dir)",
			},
		},
		Action: r.Serve,
	}
}

// agentCommand runs a long-lived collection agent.
func agentCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "agent",
		Usage: "Attach a collection agent to the broker and serve collect requests",
		Flags: []cli.Flag{
			urlFlag(),
			namespaceFlag(),
			&cli.StringFlag{
				Name:     "source",
				Aliases:  []string{"s"},
				Usage:    "JSON or JSONL file of candidate records",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "direct",
				Usage: "Read the record store directly when the broker is unreachable",
			},
		},
		Action: r.Agent,
	}
}

// collectCommand runs a single collection pass.
func collectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "Run one collection pass from a candidate file and exit",
		Flags: append([]cli.Flag{
			urlFlag(),
			namespaceFlag(),
			&cli.StringFlag{
				Name:     "source",
				Aliases:  []string{"s"},
				Usage:    "JSON or JSONL file of candidate records",
				Required: true,
			},
		}, jsonFlags()...),
		Action: r.Collect,
	}
}

// watchCommand launches the terminal display.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"tui", "ui"},
		Usage:   "Launch the interactive terminal display",
		Flags: []cli.Flag{
			urlFlag(),
			namespaceFlag(),
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the display runs",
				Value: "./tmp/leadsync-tui.log",
			},
		},
		Action: r.Watch,
	}
}

// statsCommand prints namespace counts.
func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "stats",
		Usage:  "Print record, phone and wechat counts for a namespace",
		Flags:  append([]cli.Flag{urlFlag(), namespaceFlag()}, jsonFlags()...),
		Action: r.Stats,
	}
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "username", Usage: "Keep records whose username contains this text"},
		&cli.StringFlag{Name: "douyin-id", Usage: "Keep records whose douyin id contains this text"},
		&cli.StringFlag{Name: "phone", Usage: "Keep records whose phone contains this text"},
		&cli.StringFlag{Name: "wechat", Usage: "Keep records whose wechat contains this text"},
		&cli.BoolFlag{Name: "phone-only", Usage: "Keep only records with a phone number"},
		&cli.StringFlag{Name: "expr", Usage: `Boolean filter expression, e.g. 'fansCount > 10000 && wechat != ""'`},
		&cli.StringFlag{Name: "fuzzy", Usage: "Fuzzy username search; results ranked by match"},
		&cli.StringFlag{Name: "sort", Usage: "Sort by timestamp, username, douyinId, fans or likes"},
		&cli.BoolFlag{Name: "desc", Usage: "Sort descending"},
	}
}

// exportCommand exports one namespace.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export a namespace as TXT, numbered TXT, CSV or JSON",
		Flags: append([]cli.Flag{
			urlFlag(),
			namespaceFlag(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "txt, numbered, csv or json",
				Value:   "txt",
			},
			&cli.StringFlag{
				Name:  "filename",
				Usage: "File name handed to the broker's downloader",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the export to this local path instead of through the broker",
			},
			&cli.BoolFlag{
				Name:  "headers",
				Usage: "Include the CSV header row",
				Value: true,
			},
			&cli.BoolFlag{
				Name:  "timestamp",
				Usage: "Append the collection time column to CSV rows",
			},
		}, filterFlags()...),
		Action: r.Export,
	}
}

// bulkExportCommand exports every namespace in several formats.
func bulkExportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "bulk-export",
		Usage: "Export several namespaces and formats concurrently with a manifest",
		Flags: []cli.Flag{
			urlFlag(),
			&cli.StringSliceFlag{
				Name:  "namespaces",
				Usage: "Namespaces to export (default: all)",
			},
			&cli.StringSliceFlag{
				Name:  "formats",
				Usage: "Formats to write (default: txt)",
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: leadsync_export_{timestamp})",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Number of concurrent workers (max 10)",
				Value: 4,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Snapshot reads per second",
				Value: 5.0,
			},
			&cli.BoolFlag{
				Name:  "headers",
				Usage: "Include the CSV header row",
				Value: true,
			},
			&cli.BoolFlag{
				Name:  "timestamp",
				Usage: "Append the collection time column to CSV rows",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the result as JSON",
			},
		},
		Action: r.BulkExport,
	}
}

// clearCommand removes a namespace.
func clearCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Remove every record of a namespace",
		Flags: []cli.Flag{
			urlFlag(),
			namespaceFlag(),
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Confirm clearing without prompting",
			},
		},
		Action: r.Clear,
	}
}
