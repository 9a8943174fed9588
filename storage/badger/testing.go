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


package badger

import "context"

// Stores bundles everything built on one migrated backend.
type Stores struct {
	Backend *Backend
	Repo    *Repository
	Index   *SearchIndex
	Jobs    *JobStore
}

// OpenStores opens a backend at path, or in memory when inMemory is set,
// applies all migrations and builds the stores on top of it.
// Caller must close Backend when done.
func OpenStores(ctx context.Context, path string, inMemory bool, opts ...Option) (*Stores, error) {
	backend, err := OpenBackend(path, inMemory, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := NewMigrator(backend).ApplyPending(ctx); err != nil {
		backend.Close()
		return nil, err
	}
	return &Stores{
		Backend: backend,
		Repo:    NewRepository(backend),
		Index:   NewSearchIndex(backend),
		Jobs:    NewJobStore(backend),
	}, nil
}

// NewMemoryStores opens migrated in-memory stores for testing.
func NewMemoryStores() (*Stores, error) {
	return OpenStores(context.Background(), "", true)
}
