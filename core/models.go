package core

import (
	"encoding/json"
	"time"
)

// Record is a stored row keyed by domain field name.
// The "id" field always holds a wire-form identifier once a record leaves storage.
type Record map[string]any

// ID returns the wire-form identifier of the record, or "" when it has none.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// String returns a string field, or "" when absent or of another type.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Int returns an integer field, converting from the numeric types the engines produce.
func (r Record) Int(field string) int64 {
	switch v := r[field].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// Embedding returns the decoded embedding held in field, if any.
func (r Record) Embedding(field string) []float32 {
	v, _ := r[field].([]float32)
	return v
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table names.
const (
	TableNotebook        = "notebook"
	TableSource          = "source"
	TableSourceEmbedding = "source_embedding"
	TableSourceInsight   = "source_insight"
	TableNote            = "note"
	TableChatSession     = "chat_session"
	TableTransformation  = "transformation"
	TableEpisodeProfile  = "episode_profile"
	TableSpeakerProfile  = "speaker_profile"
	TableEpisode         = "episode"
	TableDefaultModels   = "default_models"
	TableContentSettings = "content_settings"
	TableDefaultPrompts  = "default_prompts"
)

// Relation names.
const (
	RelationReference = "reference"
	RelationArtifact  = "artifact"
	RelationRefersTo  = "refers_to"
)

// Common field names.
const (
	FieldID        = "id"
	FieldCreated   = "created"
	FieldUpdated   = "updated"
	FieldEmbedding = "embedding"
)

// NoteType distinguishes human-written notes from generated ones.
type NoteType string

const (
	NoteTypeHuman NoteType = "human"
	NoteTypeAI    NoteType = "ai"
)

// JobState is the lifecycle state of a background job.
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// JobStates lists every state in lifecycle order.
var JobStates = []JobState{JobPending, JobProcessing, JobCompleted, JobFailed}

// Terminal reports whether no further transition is possible from s.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is a claimed unit of background work.
type Job struct {
	ID          int64
	JobID       string
	Namespace   string
	CommandName string
	Args        json.RawMessage
	State       JobState
	CreatedAt   time.Time
	StartedAt   *time.Time
}

// JobStatus is the externally visible state of a submitted job.
type JobStatus struct {
	JobID        string
	Namespace    string
	CommandName  string
	State        JobState
	Result       json.RawMessage
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}
