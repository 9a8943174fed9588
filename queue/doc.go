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


// Package queue runs background commands stored in a storage.JobStore.
//
// Commands are registered by namespace and name in a Registry. A single
// Worker claims pending jobs one at a time, runs the matching Handler and
// records the outcome on the job:
//
//	registry := queue.NewRegistry()
//	registry.Register("open_notebook", "embed_note", handler)
//
//	worker, err := queue.NewWorker(jobs, registry)
//	worker.Start(ctx)
//	defer worker.Stop()
//
// Handler errors and panics mark the job failed and never stop the worker.
// Failed jobs are not retried.
package queue
