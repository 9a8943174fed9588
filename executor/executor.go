package executor

import "context"

// Outcomes reported by Direct.
const (
	OutcomeDirect  = "direct"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Namespace is the command namespace embedding jobs are submitted under.
const Namespace = "open_notebook"

// Command names.
const (
	CommandEmbedNote         = "embed_note"
	CommandEmbedSource       = "embed_source"
	CommandEmbedInsight      = "embed_insight"
	CommandRunTransformation = "run_transformation"
)

// Executor embeds notes, sources and insights.
// The returned handle is an outcome for synchronous strategies and a job id
// for queued ones.
type Executor interface {
	EmbedNote(ctx context.Context, noteID string) (string, error)
	EmbedSource(ctx context.Context, sourceID string) (string, error)
	EmbedInsight(ctx context.Context, insightID string) (string, error)

	// EmbedInsightContent returns the embedding for insight text about to be
	// stored, or nil when the strategy embeds insights later.
	EmbedInsightContent(ctx context.Context, content string) ([]float32, error)
}

type embedNoteArgs struct {
	NoteID string `json:"note_id"`
}

type embedSourceArgs struct {
	SourceID string `json:"source_id"`
}

type embedInsightArgs struct {
	InsightID string `json:"insight_id"`
}

type runTransformationArgs struct {
	SourceID         string `json:"source_id"`
	TransformationID string `json:"transformation_id"`
}
