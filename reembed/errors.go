package reembed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrEmbeddingFailed marks a record whose embedding outcome was "failed".
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrUnsupportedTable is returned for a table that holds no embeddings.
	ErrUnsupportedTable = errors.New("table cannot be reembedded")
)
