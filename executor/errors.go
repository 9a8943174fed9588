package executor

import "errors"

var (
	// ErrRepositoryRequired is returned when no repository is provided.
	ErrRepositoryRequired = errors.New("repository required")

	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrJobStoreRequired is returned when no job store is provided.
	ErrJobStoreRequired = errors.New("job store required")

	// ErrTransformerRequired is returned when run_transformation is registered without a transformer.
	ErrTransformerRequired = errors.New("transformer required")

	// ErrEmbeddingFailed is returned by job handlers when the embedding provider failed.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrNothingToTransform is returned when a source has no text for a transformation.
	ErrNothingToTransform = errors.New("source has no text to transform")
)
