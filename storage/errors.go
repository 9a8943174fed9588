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


package storage

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidFilter indicates a filter or order-by column the table does not have.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrUnknownTable indicates a table outside the supported entity set.
	ErrUnknownTable = errors.New("unknown table")

	// ErrCorruptEmbedding indicates stored embedding bytes that cannot be decoded.
	ErrCorruptEmbedding = errors.New("corrupt embedding")

	// ErrRelationUnknown indicates a relation name with no registered mapping.
	ErrRelationUnknown = errors.New("unknown relation")

	// ErrConstraintViolation indicates a uniqueness, foreign-key or check violation.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrMigrationFailed indicates a schema migration could not be applied.
	ErrMigrationFailed = errors.New("migration failed")
)
