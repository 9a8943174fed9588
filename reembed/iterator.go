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


package reembed

import (
	"context"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

const (
	// DefaultBatchSize is the default number of records to fetch per page
	DefaultBatchSize = 100
)

// RecordIterator pages through one table in creation order.
type RecordIterator struct {
	repo      storage.Repository
	table     string
	batchSize int
}

// NewRecordIterator creates a new record iterator over table.
// batchSize: number of records to fetch per page (defaults when <= 0)
func NewRecordIterator(repo storage.Repository, table string, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RecordIterator{
		repo:      repo,
		table:     table,
		batchSize: batchSize,
	}
}

func (it *RecordIterator) page(offset int) storage.ListQuery {
	return storage.ListQuery{
		OrderBy: &storage.OrderBy{Field: core.FieldCreated},
		Limit:   it.batchSize,
		Offset:  offset,
	}
}

// Count returns the number of records in the table.
func (it *RecordIterator) Count(ctx context.Context) (int, error) {
	n := 0
	err := it.ForEach(ctx, func(batch []core.Record) error {
		n += len(batch)
		return nil
	})
	return n, err
}

// ForEach calls fn with each page of records.
// Iteration stops on the first error from fn or once a short page is read.
// Context cancellation is checked between pages.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]core.Record) error) error {
	for offset := 0; ; offset += it.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := it.repo.List(ctx, it.table, it.page(offset))
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			if err := fn(batch); err != nil {
				return err
			}
		}
		if len(batch) < it.batchSize {
			return nil
		}
	}
}
