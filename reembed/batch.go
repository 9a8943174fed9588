package reembed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/executor"
)

// BatchResult tallies the outcomes of one batch.
type BatchResult struct {
	Embedded int
	Skipped  int
	Queued   int
	Failed   int
}

func (r *BatchResult) add(o BatchResult) {
	r.Embedded += o.Embedded
	r.Skipped += o.Skipped
	r.Queued += o.Queued
	r.Failed += o.Failed
}

// Total returns the number of records accounted for.
func (r BatchResult) Total() int {
	return r.Embedded + r.Skipped + r.Queued + r.Failed
}

// BatchProcessor hands each record of a batch to an executor.
type BatchProcessor struct {
	executor       executor.Executor
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts per record
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(exec executor.Executor, maxRetries int, retryBaseDelay time.Duration, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		executor:       exec,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         logger,
	}
}

func (bp *BatchProcessor) embedFunc(table string) (func(context.Context, string) (string, error), error) {
	switch table {
	case core.TableNote:
		return bp.executor.EmbedNote, nil
	case core.TableSource:
		return bp.executor.EmbedSource, nil
	case core.TableSourceInsight:
		return bp.executor.EmbedInsight, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedTable, table)
}

// Process embeds every record of a batch from table.
// A record that still fails after its retries is counted and logged; the
// batch carries on. Only cancellation and repository errors abort it.
func (bp *BatchProcessor) Process(ctx context.Context, table string, records []core.Record) (BatchResult, error) {
	var result BatchResult
	embed, err := bp.embedFunc(table)
	if err != nil {
		return result, err
	}

	for _, rec := range records {
		id := rec.ID()
		var outcome string
		err := RetryWithBackoff(ctx, func() error {
			var err error
			outcome, err = embed(ctx, id)
			if err == nil && outcome == executor.OutcomeFailed {
				return fmt.Errorf("%w: %s", ErrEmbeddingFailed, id)
			}
			return err
		}, bp.maxRetries, bp.retryBaseDelay)

		switch {
		case err == nil && outcome == executor.OutcomeDirect:
			result.Embedded++
		case err == nil && outcome == executor.OutcomeSkipped:
			result.Skipped++
		case err == nil:
			// Any other handle is a job id.
			result.Queued++
		case ctx.Err() != nil:
			return result, ctx.Err()
		default:
			bp.logger.Warn("failed to reembed record", "id", id, "err", err)
			result.Failed++
		}
	}
	return result, nil
}
