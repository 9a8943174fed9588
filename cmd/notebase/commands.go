package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/poiesic/notebase"
	"github.com/poiesic/notebase/config"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/executor"
	"github.com/poiesic/notebase/reembed"
	"github.com/poiesic/notebase/storage"
	"github.com/urfave/cli/v2"
)

// loadConfig reads the configuration named by the global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if b := c.String("backend"); b != "" {
		cfg.Backend = config.Backend(strings.ToLower(b))
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func openDatabase(ctx context.Context, c *cli.Context) (*notebase.Database, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	db, err := notebase.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, cfg, nil
}

func scopeFrom(c *cli.Context) storage.Scope {
	return storage.Scope{Sources: c.Bool("sources"), Notes: c.Bool("notes")}
}

func queryArg(c *cli.Context) (string, error) {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return "", errors.New("a search query is required")
	}
	return query, nil
}

func migrateCommand(c *cli.Context) error {
	ctx := c.Context
	db, _, err := openDatabase(ctx, c)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := db.Migrator().CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if applied := db.AppliedMigrations(); len(applied) > 0 {
		fmt.Printf("Applied migrations %v\n", applied)
	} else {
		fmt.Println("Schema is up to date")
	}
	fmt.Printf("Backend: %s, schema version: %d\n", db.Backend(), version)
	return nil
}

func workerCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, cfg, err := openDatabase(ctx, c)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.Worker.Enabled {
		return errors.New("worker is disabled by configuration")
	}
	if err := db.Worker().Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Worker running on %s backend, press Ctrl-C to stop\n", db.Backend())

	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "Shutting down, waiting for the current job")
	db.Worker().Stop()
	return nil
}

func searchTextCommand(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	db, _, err := openDatabase(ctx, c)
	if err != nil {
		return err
	}
	defer db.Close()

	hits, err := db.Searcher().TextSearch(ctx, query, c.Int("limit"), scopeFrom(c))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("Found %d hits\n", len(hits))
	for i, hit := range hits {
		fmt.Printf("%d: %s %q [%0.3f]\n", i, hit.ItemID, hit.Title, hit.Relevance)
		if hit.Snippet != "" {
			fmt.Printf("   %s\n", hit.Snippet)
		}
	}
	return nil
}

func searchVectorCommand(c *cli.Context) error {
	query, err := queryArg(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	db, _, err := openDatabase(ctx, c)
	if err != nil {
		return err
	}
	defer db.Close()

	hits, err := db.Searcher().SearchText(ctx, query, c.Int("limit"), scopeFrom(c), float32(c.Float64("min-similarity")))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("Found %d hits\n", len(hits))
	for i, hit := range hits {
		fmt.Printf("%d: %s %q [%0.3f]\n", i, hit.ParentID, hit.Title, hit.Similarity)
	}
	return nil
}

func jobStatusCommand(c *cli.Context) error {
	jobID := c.Args().First()
	if jobID == "" {
		return errors.New("a job id is required")
	}
	ctx := c.Context
	db, _, err := openDatabase(ctx, c)
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := db.Jobs().Status(ctx, jobID)
	if err != nil {
		return err
	}
	fmt.Printf("Job:     %s\n", status.JobID)
	fmt.Printf("Command: %s.%s\n", status.Namespace, status.CommandName)
	fmt.Printf("State:   %s\n", status.State)
	fmt.Printf("Created: %s\n", status.CreatedAt.Format("2006-01-02 15:04:05"))
	if status.CompletedAt != nil {
		fmt.Printf("Done:    %s\n", status.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if len(status.Result) > 0 {
		fmt.Printf("Result:  %s\n", status.Result)
	}
	if status.ErrorMessage != "" {
		fmt.Printf("Error:   %s\n", status.ErrorMessage)
	}
	return nil
}

func jobStatsCommand(c *cli.Context) error {
	ctx := c.Context
	db, _, err := openDatabase(ctx, c)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Jobs().Stats(ctx)
	if err != nil {
		return err
	}
	for _, state := range core.JobStates {
		fmt.Printf("%-10s %d\n", state, stats[state])
	}
	return nil
}

func jobSubmitCommand(c *cli.Context) error {
	command := c.Args().Get(0)
	if command == "" {
		return errors.New("a command name is required")
	}
	args := json.RawMessage("{}")
	if raw := c.Args().Get(1); raw != "" {
		if !json.Valid([]byte(raw)) {
			return fmt.Errorf("arguments are not valid JSON: %s", raw)
		}
		args = json.RawMessage(raw)
	}

	ctx := c.Context
	db, _, err := openDatabase(ctx, c)
	if err != nil {
		return err
	}
	defer db.Close()

	namespace := c.String("namespace")
	if _, err := db.Registry().Lookup(namespace, command); err != nil {
		return fmt.Errorf("%w (known: %s)", err, strings.Join(db.Registry().Commands(), ", "))
	}
	jobID, err := db.Jobs().Submit(ctx, namespace, command, args)
	if err != nil {
		return err
	}
	fmt.Println(jobID)
	return nil
}

func reembedCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reembedConfig := reembed.DefaultConfig()
	if tables := c.StringSlice("table"); len(tables) > 0 {
		reembedConfig.Tables = tables
	}
	reembedConfig.BatchSize = c.Int("batch-size")
	reembedConfig.ReportInterval = c.Int("report-interval")
	reembedConfig.MaxRetries = c.Int("max-retries")
	reembedConfig.RetryDelay = c.Duration("retry-delay")

	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, cfg, err := openDatabase(ctx, c)
	if err != nil {
		return err
	}
	defer db.Close()

	// Rebuilds run synchronously on either engine and must not reuse vectors
	// produced by the previous model.
	direct, err := executor.NewDirect(db.Repository(), db.Provider().Embedder(),
		executor.WithChunking(cfg.Embedding.ChunkSize, cfg.Embedding.ChunkOverlap),
		executor.WithRateLimit(cfg.Embedding.RateLimit, cfg.Embedding.Burst),
		executor.WithChunkReuse(false))
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Backend: %s\n", db.Backend())
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	summary, err := reembed.NewReembedder(db.Repository(), direct, reembedConfig, os.Stderr).Run(ctx)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}

	tables := make([]string, 0, len(summary.Tables))
	for table := range summary.Tables {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		r := summary.Tables[table]
		fmt.Fprintf(os.Stderr, "%-16s %d embedded, %d skipped, %d failed\n", table, r.Embedded, r.Skipped, r.Failed)
	}
	return nil
}
