// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "notebase",
		Usage: "Storage, search and background jobs for notebooks, sources and notes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"NOTEBASE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Override the storage engine (sqlite, graph)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply pending schema migrations",
				Action: migrateCommand,
			},
			{
				Name:   "worker",
				Usage:  "Run the command queue worker until interrupted",
				Action: workerCommand,
			},
			{
				Name:  "search",
				Usage: "Search sources and notes",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
					&cli.BoolFlag{
						Name:  "sources",
						Usage: "Include sources and insights",
						Value: true,
					},
					&cli.BoolFlag{
						Name:  "notes",
						Usage: "Include notes",
						Value: true,
					},
				},
				Subcommands: []*cli.Command{
					{
						Name:      "text",
						Usage:     "Full-text search",
						ArgsUsage: "<query>",
						Action:    searchTextCommand,
					},
					{
						Name:      "vector",
						Usage:     "Embed the query and rank stored embeddings by cosine similarity",
						ArgsUsage: "<query>",
						Action:    searchVectorCommand,
						Flags: []cli.Flag{
							&cli.Float64Flag{
								Name:  "min-similarity",
								Usage: "Drop hits below this similarity",
								Value: 0.2,
							},
						},
					},
				},
			},
			{
				Name:  "job",
				Usage: "Inspect and submit background jobs",
				Subcommands: []*cli.Command{
					{
						Name:      "status",
						Usage:     "Show the state of a job",
						ArgsUsage: "<job-id>",
						Action:    jobStatusCommand,
					},
					{
						Name:   "stats",
						Usage:  "Count jobs per state",
						Action: jobStatsCommand,
					},
					{
						Name:      "submit",
						Usage:     "Queue a command",
						ArgsUsage: "<command> [json-args]",
						Action:    jobSubmitCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "namespace",
								Usage: "Command namespace",
								Value: "open_notebook",
							},
						},
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Rebuild embeddings for notes, sources and insights",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "table",
						Usage: "Table to rebuild (repeatable; default note, source, source_insight)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of records to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N records",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
