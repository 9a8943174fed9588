package executor

import (
	"context"
	"log/slog"

	"github.com/poiesic/notebase/storage"
)

// Queued submits embedding jobs instead of running them.
type Queued struct {
	jobs   storage.JobStore
	logger *slog.Logger
}

var _ Executor = (*Queued)(nil)

// NewQueued creates an executor that submits jobs to jobs.
func NewQueued(jobs storage.JobStore, logger *slog.Logger) (*Queued, error) {
	if jobs == nil {
		return nil, ErrJobStoreRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queued{jobs: jobs, logger: logger.With("component", "executor", "strategy", "queued")}, nil
}

func (q *Queued) submit(ctx context.Context, command string, args any) (string, error) {
	jobID, err := q.jobs.Submit(ctx, Namespace, command, args)
	if err != nil {
		return "", err
	}
	q.logger.Debug("submitted job", "command", command, "job_id", jobID)
	return jobID, nil
}

// EmbedNote submits an embed_note job and returns its id.
func (q *Queued) EmbedNote(ctx context.Context, noteID string) (string, error) {
	return q.submit(ctx, CommandEmbedNote, embedNoteArgs{NoteID: noteID})
}

// EmbedSource submits an embed_source job and returns its id.
func (q *Queued) EmbedSource(ctx context.Context, sourceID string) (string, error) {
	return q.submit(ctx, CommandEmbedSource, embedSourceArgs{SourceID: sourceID})
}

// EmbedInsight submits an embed_insight job and returns its id.
func (q *Queued) EmbedInsight(ctx context.Context, insightID string) (string, error) {
	return q.submit(ctx, CommandEmbedInsight, embedInsightArgs{InsightID: insightID})
}

// EmbedInsightContent always returns nil; the insight's own job embeds it.
func (q *Queued) EmbedInsightContent(context.Context, string) ([]float32, error) {
	return nil, nil
}
