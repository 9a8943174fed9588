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

// Package search ranks text and vector matches over a storage.SearchIndex.
//
// Text search delegates matching and scoring to the active engine (FTS5 on
// SQLite, a BM25 term index on Badger), then merges the per-table results:
// sorted by relevance, one hit per item, truncated to the limit.
//
// Vector search streams every stored embedding in scope and scores it against
// the query with cosine similarity, in parallel batches on an ants pool.
// Hits below the similarity floor are dropped and each parent keeps only its
// best hit. A stored vector of another dimension fails the call with
// ErrDimensionMismatch.
package search
