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


// Package storage provides the engine-independent persistence contract for notebase.
//
// Domain code talks to a Repository, a SearchIndex and a JobStore. Two engines
// implement them: storage/sqlite (embedded relational, FTS5, junction tables)
// and storage/badger (document/graph store with native edges). The engine is
// chosen once at start-up and callers never learn which one is active.
//
// # Constructor Return Type Pattern
//
// Engine constructors take a backend handle and return the storage interfaces:
//
//	backend, err := sqlite.OpenBackend(path)
//	repo := sqlite.NewRepository(backend)  // storage.Repository
//
// Internal helpers inside an engine package may return concrete types.
//
// # Records and identifiers
//
// Rows cross the boundary as core.Record values keyed by domain field names.
// The "id" field always holds a "table:key" identifier. Embeddings are
// []float32 on both sides of the boundary; each engine pushes them through
// its EmbeddingCodec (BlobCodec or NativeCodec).
//
// # Schema
//
// The closed set of tables and columns lives in schema.go. Filters and
// order-by columns are validated against it before any storage call. The
// named relations and the junction columns that back them live in
// relations.go; every relationship operation on both engines resolves
// through that one table.
//
// # Thread Safety
//
// All implementations are safe for concurrent use. Each call borrows its own
// connection or transaction; no locking is layered on top of the engine.
package storage
