// Package reembed rebuilds stored embeddings after an embedding model change.
// It pages through notes, sources and source insights, hands every record to
// an executor.Executor with retry and exponential backoff, and reports
// progress to a writer.
package reembed
