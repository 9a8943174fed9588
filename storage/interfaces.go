package storage

import (
	"context"
	"time"

	"github.com/poiesic/notebase/core"
)

// OrderBy names a column to sort by and its direction.
type OrderBy struct {
	Field      string
	Descending bool
}

// ListQuery describes a filtered listing.
// Filters are equality matches combined with AND. A zero Limit means no limit.
type ListQuery struct {
	Filters map[string]any
	OrderBy *OrderBy
	Limit   int
	Offset  int
}

// CountSpec asks ListWithCounts for an extra integer column named Alias
// holding the number of Relation rows attached to each listed record.
type CountSpec struct {
	Alias    string
	Relation string
}

// Repository is the engine-independent record store.
// Every identifier it accepts or returns is in "table:key" form.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Get retrieves a record. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, table, id string) (core.Record, error)

	// Create inserts a record, generating its identifier.
	// Stamps created and updated timestamps. Any id in data is ignored.
	Create(ctx context.Context, table string, data core.Record) (core.Record, error)

	// Update merges patch into an existing record and stamps updated.
	// Returns ErrNotFound if the record doesn't exist.
	Update(ctx context.Context, table, id string, patch core.Record) (core.Record, error)

	// Delete removes a record, cascading to owned children and relations.
	// Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// ReplaceChildren deletes every table record owned by parentID and creates
	// rows in their place, atomically. Each row's owning field is set to parentID.
	// On error the stored children are left as they were.
	ReplaceChildren(ctx context.Context, table, parentID string, rows []core.Record) error

	// Upsert writes data to the record with the given id, creating it if needed.
	// Fields absent from data keep their stored values.
	Upsert(ctx context.Context, table, id string, data core.Record) (core.Record, error)

	// List returns records matching q.
	// Unknown filter or order-by columns fail with ErrInvalidFilter.
	List(ctx context.Context, table string, q ListQuery) ([]core.Record, error)

	// ListWithCounts is List plus one integer column per CountSpec.
	// Records without related rows report 0.
	ListWithCounts(ctx context.Context, table string, counts []CountSpec, q ListQuery) ([]core.Record, error)

	// GetRelated returns the targetTable records linked to sourceID through relation,
	// most recently updated first.
	GetRelated(ctx context.Context, sourceTable, sourceID, relation, targetTable string) ([]core.Record, error)

	// AddRelation links sourceID to targetID. Adding an existing link is a no-op.
	AddRelation(ctx context.Context, sourceID, relation, targetID string) error

	// RemoveRelation unlinks sourceID from targetID. Removing a missing link is a no-op.
	RemoveRelation(ctx context.Context, sourceID, relation, targetID string) error

	// CheckRelation reports whether sourceID is linked to targetID.
	CheckRelation(ctx context.Context, sourceID, relation, targetID string) (bool, error)

	// SingletonGet retrieves a configuration singleton such as "open_notebook:default_models".
	// Returns ErrNotFound if it has never been written.
	SingletonGet(ctx context.Context, id string) (core.Record, error)

	// SingletonUpsert writes a configuration singleton, merging like Upsert.
	SingletonUpsert(ctx context.Context, id string, data core.Record) (core.Record, error)

	// Close releases resources held by the repository.
	Close() error
}

// Migrator applies ordered schema changes and records which have run.
type Migrator interface {
	// ApplyPending applies every migration newer than the current version, in order.
	// Returns the versions applied by this call.
	ApplyPending(ctx context.Context) ([]int, error)

	// CurrentVersion returns the highest applied version, 0 for a fresh store.
	CurrentVersion(ctx context.Context) (int, error)
}

// Scope selects which entity kinds a search covers.
type Scope struct {
	Sources bool
	Notes   bool
}

// EmbeddingCandidate is one stored vector offered to a similarity scan.
type EmbeddingCandidate struct {
	ID       string
	ParentID string
	Title    string
	Content  string
	Kind     string
	Vector   []float32
}

// SearchIndex exposes an engine's native search facilities.
type SearchIndex interface {
	// TextSearch runs a full-text query against the engine's index.
	// Hits may repeat an ItemID; ranking and deduplication are left to the caller.
	TextSearch(ctx context.Context, query string, limit int, scope Scope) ([]core.TextHit, error)

	// ScanEmbeddings calls fn for every stored embedding within scope.
	// Iteration stops at the first error returned by fn.
	ScanEmbeddings(ctx context.Context, scope Scope, fn func(EmbeddingCandidate) error) error
}

// JobStore is the durable side of the command queue.
type JobStore interface {
	// Submit records a pending job and returns its job id.
	Submit(ctx context.Context, namespace, commandName string, args any) (string, error)

	// Status returns the current state of a job. Returns ErrNotFound for unknown ids.
	Status(ctx context.Context, jobID string) (*core.JobStatus, error)

	// Claim atomically moves the oldest pending job to processing and returns it.
	// Returns nil, nil when no job is pending.
	Claim(ctx context.Context) (*core.Job, error)

	// Complete records the result of a processing job.
	Complete(ctx context.Context, jobID string, result any) error

	// Fail records the error of a processing job.
	Fail(ctx context.Context, jobID string, message string) error

	// RecoverStuck returns processing jobs started more than olderThan ago to pending.
	RecoverStuck(ctx context.Context, olderThan time.Duration) (int, error)

	// Stats counts jobs per state. Every state is present in the result.
	Stats(ctx context.Context) (map[core.JobState]int, error)
}
