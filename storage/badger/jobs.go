package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

const (
	jobSequence     = "jobs"
	maxClaimRetries = 16
)

// jobRecord is the stored form of a queued command.
type jobRecord struct {
	Seq          uint64          `json:"seq"`
	JobID        string          `json:"job_id"`
	Namespace    string          `json:"namespace"`
	CommandName  string          `json:"command_name"`
	Args         json.RawMessage `json:"args"`
	State        core.JobState   `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

func (j *jobRecord) job() *core.Job {
	return &core.Job{
		ID:          int64(j.Seq),
		JobID:       j.JobID,
		Namespace:   j.Namespace,
		CommandName: j.CommandName,
		Args:        j.Args,
		State:       j.State,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
	}
}

func (j *jobRecord) status() *core.JobStatus {
	return &core.JobStatus{
		JobID:        j.JobID,
		Namespace:    j.Namespace,
		CommandName:  j.CommandName,
		State:        j.State,
		Result:       j.Result,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}

// JobStore implements storage.JobStore. Each job is a JSON value under its
// job id; pending jobs also hold a queue key ordered by creation time and
// submission sequence.
type JobStore struct {
	backend *Backend
	keys    keyspace
	logger  *slog.Logger
	now     func() time.Time
}

var _ storage.JobStore = (*JobStore)(nil)

// NewJobStore creates a JobStore over backend.
func NewJobStore(backend *Backend) *JobStore {
	return &JobStore{
		backend: backend,
		keys:    backend.keys,
		logger:  backend.logger.With("component", "jobs"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *JobStore) load(tx *badger.Txn, jobID string) (*jobRecord, error) {
	var rec jobRecord
	if err := getJSON(tx, s.keys.job(jobID), &rec); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: job %s", storage.ErrNotFound, jobID)
		}
		return nil, err
	}
	return &rec, nil
}

// Submit stores a pending job and queues it.
func (s *JobStore) Submit(ctx context.Context, namespace, commandName string, args any) (string, error) {
	payload, err := storage.MarshalJobPayload(args)
	if err != nil {
		return "", err
	}
	seq, err := s.backend.GetSequence(jobSequence)
	if err != nil {
		return "", err
	}
	n, err := seq.Next()
	if err != nil {
		return "", err
	}

	rec := &jobRecord{
		Seq:         n + 1,
		JobID:       uuid.NewString(),
		Namespace:   namespace,
		CommandName: commandName,
		Args:        payload,
		State:       core.JobPending,
		CreatedAt:   s.now(),
	}
	err = s.backend.Update(ctx, func(tx *badger.Txn) error {
		if err := setJSON(tx, s.keys.job(rec.JobID), rec); err != nil {
			return err
		}
		if err := tx.Set(s.keys.jobQueue(rec.CreatedAt, rec.Seq), []byte(rec.JobID)); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return "", err
	}
	s.logger.Debug("submitted job", "job_id", rec.JobID, "namespace", namespace, "command", commandName)
	return rec.JobID, nil
}

// Status returns the state of a job.
func (s *JobStore) Status(ctx context.Context, jobID string) (*core.JobStatus, error) {
	var st *core.JobStatus
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		rec, err := s.load(tx, jobID)
		if err != nil {
			return err
		}
		st = rec.status()
		return nil
	}, false)
	return st, err
}

// Claim pops the head of the queue. Concurrent claims of the same job
// conflict at commit; the loser retries against the new head.
func (s *JobStore) Claim(ctx context.Context) (*core.Job, error) {
	for range maxClaimRetries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		job, err := s.claimOnce()
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return job, err
	}
	return nil, fmt.Errorf("claiming job: %w", badger.ErrConflict)
}

func (s *JobStore) claimOnce() (*core.Job, error) {
	var job *core.Job
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.keys.prefix(jobQueuePrefix)
		iter := tx.NewIterator(opts)
		iter.Rewind()
		if !iter.Valid() {
			iter.Close()
			return nil
		}
		queueKey := iter.Item().KeyCopy(nil)
		jobID, err := iter.Item().ValueCopy(nil)
		iter.Close()
		if err != nil {
			return err
		}

		rec, err := s.load(tx, string(jobID))
		if err != nil {
			return err
		}
		started := s.now()
		rec.State = core.JobProcessing
		rec.StartedAt = &started
		if err := setJSON(tx, s.keys.job(rec.JobID), rec); err != nil {
			return err
		}
		if err := tx.Delete(queueKey); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		job = rec.job()
		return nil
	}, true)
	return job, err
}

// finish moves a processing job to a terminal state.
func (s *JobStore) finish(ctx context.Context, jobID string, update func(*jobRecord)) error {
	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		rec, err := s.load(tx, jobID)
		if err != nil {
			return err
		}
		if rec.State != core.JobProcessing {
			return fmt.Errorf("%w: job %s is not processing", core.ErrInvalidJobState, jobID)
		}
		completed := s.now()
		rec.CompletedAt = &completed
		update(rec)
		if err := setJSON(tx, s.keys.job(jobID), rec); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// Complete records a successful result.
func (s *JobStore) Complete(ctx context.Context, jobID string, result any) error {
	payload, err := storage.MarshalJobPayload(result)
	if err != nil {
		return err
	}
	return s.finish(ctx, jobID, func(rec *jobRecord) {
		rec.State = core.JobCompleted
		rec.Result = payload
	})
}

// Fail records a handler error.
func (s *JobStore) Fail(ctx context.Context, jobID string, message string) error {
	return s.finish(ctx, jobID, func(rec *jobRecord) {
		rec.State = core.JobFailed
		rec.ErrorMessage = message
	})
}

// scanJobs calls fn for every stored job.
func (s *JobStore) scanJobs(tx *badger.Txn, fn func(*jobRecord) error) error {
	return scanPrefix(tx, s.keys.prefix(jobPrefix), false, func(_ []byte, item *badger.Item) error {
		var rec jobRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}
		return fn(&rec)
	})
}

// RecoverStuck requeues processing jobs started before now-olderThan at
// their original queue position.
func (s *JobStore) RecoverStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	n := 0
	err := s.backend.Update(ctx, func(tx *badger.Txn) error {
		var stuck []*jobRecord
		err := s.scanJobs(tx, func(rec *jobRecord) error {
			if rec.State == core.JobProcessing && rec.StartedAt != nil && rec.StartedAt.Before(cutoff) {
				stuck = append(stuck, rec)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, rec := range stuck {
			rec.State = core.JobPending
			rec.StartedAt = nil
			if err := setJSON(tx, s.keys.job(rec.JobID), rec); err != nil {
				return err
			}
			if err := tx.Set(s.keys.jobQueue(rec.CreatedAt, rec.Seq), []byte(rec.JobID)); err != nil {
				return err
			}
		}
		n = len(stuck)
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("recovered stuck jobs", "count", n)
	}
	return n, nil
}

// Stats counts jobs per state.
func (s *JobStore) Stats(ctx context.Context) (map[core.JobState]int, error) {
	stats := storage.EmptyJobStats()
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return s.scanJobs(tx, func(rec *jobRecord) error {
			stats[rec.State]++
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
