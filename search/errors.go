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


package search

import "errors"

var (
	// ErrIndexRequired is returned when no search index is provided.
	ErrIndexRequired = errors.New("search index required")

	// ErrEmbedderRequired is returned by SearchText when no embedder was configured.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmptyQuery is returned for an empty query vector.
	ErrEmptyQuery = errors.New("empty query vector")

	// ErrDimensionMismatch is returned when a stored vector and the query differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
