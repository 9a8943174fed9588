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


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/executor"
	"github.com/poiesic/notebase/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// Tables lists the tables to rebuild, in order
	Tables []string

	// BatchSize is the number of records to fetch per page
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per record
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Tables:         []string{core.TableNote, core.TableSource, core.TableSourceInsight},
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Summary reports the outcome of a run per table.
type Summary struct {
	Tables  map[string]BatchResult
	Elapsed time.Duration
}

// Total sums the per-table results.
func (s *Summary) Total() BatchResult {
	var total BatchResult
	for _, r := range s.Tables {
		total.add(r)
	}
	return total
}

// Reembedder rebuilds the embeddings of every record in the configured tables.
type Reembedder struct {
	repo      storage.Repository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.Repository, exec executor.Executor, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	logger := slog.Default().With("component", "reembed")

	return &Reembedder{
		repo:      repo,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(exec, config.MaxRetries, config.RetryDelay, logger),
		logger:    logger,
	}
}

// Run rebuilds embeddings table by table.
// Records that keep failing are counted in the summary rather than aborting the run.
func (r *Reembedder) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{Tables: make(map[string]BatchResult, len(r.config.Tables))}
	start := time.Now()

	for _, table := range r.config.Tables {
		if _, err := r.processor.embedFunc(table); err != nil {
			return summary, err
		}
		result, err := r.runTable(ctx, table)
		summary.Tables[table] = result
		if err != nil {
			return summary, fmt.Errorf("reembedding %s: %w", table, err)
		}
	}

	summary.Elapsed = time.Since(start)
	total := summary.Total()
	fmt.Fprintf(r.progress, "Reembedding complete. %d embedded, %d queued, %d skipped, %d failed in %v\n",
		total.Embedded, total.Queued, total.Skipped, total.Failed, summary.Elapsed.Round(time.Millisecond))
	return summary, nil
}

func (r *Reembedder) runTable(ctx context.Context, table string) (BatchResult, error) {
	var result BatchResult
	iterator := NewRecordIterator(r.repo, table, r.config.BatchSize)

	total, err := iterator.Count(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to count records: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No %s records found\n", table)
		return result, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d %s records (batch size: %d)\n",
		total, table, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, table, total, r.config.ReportInterval)
	tracker.Start()

	err = iterator.ForEach(ctx, func(records []core.Record) error {
		batch, err := r.processor.Process(ctx, table, records)
		result.add(batch)
		tracker.Increment(batch.Total(), batch.Failed)
		return err
	})
	tracker.Finish()
	if err != nil {
		return result, err
	}

	r.logger.Info("table reembedded", "table", table,
		"embedded", result.Embedded, "queued", result.Queued,
		"skipped", result.Skipped, "failed", result.Failed,
		"elapsed", tracker.Elapsed())
	return result, nil
}
