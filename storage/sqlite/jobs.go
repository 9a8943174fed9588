package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

// JobStore implements storage.JobStore on the command_queue table.
type JobStore struct {
	backend *Backend
	logger  *slog.Logger
	now     func() time.Time
}

var _ storage.JobStore = (*JobStore)(nil)

// NewJobStore creates a JobStore over backend.
func NewJobStore(backend *Backend) *JobStore {
	return &JobStore{
		backend: backend,
		logger:  backend.logger.With("component", "jobs"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Submit inserts a pending job and returns its new job id.
func (s *JobStore) Submit(ctx context.Context, namespace, commandName string, args any) (string, error) {
	payload, err := storage.MarshalJobPayload(args)
	if err != nil {
		return "", err
	}
	jobID := uuid.NewString()
	_, err = s.backend.db.ExecContext(ctx,
		`INSERT INTO command_queue (job_id, namespace, command_name, args, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		jobID, namespace, commandName, string(payload), string(core.JobPending), formatTime(s.now()))
	if err != nil {
		return "", mapError(err)
	}
	s.logger.Debug("submitted job", "job_id", jobID, "namespace", namespace, "command", commandName)
	return jobID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Status returns the state of a job.
func (s *JobStore) Status(ctx context.Context, jobID string) (*core.JobStatus, error) {
	row := s.backend.db.QueryRowContext(ctx,
		`SELECT job_id, namespace, command_name, status, result, error_message, created_at, started_at, completed_at
		 FROM command_queue WHERE job_id = ?`, jobID)

	var (
		st                 core.JobStatus
		status, created    string
		result, errMsg     sql.NullString
		started, completed sql.NullString
	)
	if err := row.Scan(&st.JobID, &st.Namespace, &st.CommandName, &status, &result, &errMsg, &created, &started, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %s", storage.ErrNotFound, jobID)
		}
		return nil, mapError(err)
	}

	var err error
	if st.State, err = core.ParseJobState(status); err != nil {
		return nil, err
	}
	if st.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if st.StartedAt, err = scanTime(started); err != nil {
		return nil, err
	}
	if st.CompletedAt, err = scanTime(completed); err != nil {
		return nil, err
	}
	if result.Valid {
		st.Result = json.RawMessage(result.String)
	}
	st.ErrorMessage = errMsg.String
	return &st, nil
}

func scanJob(row rowScanner) (*core.Job, error) {
	var (
		job          core.Job
		args, status string
		created      string
		started      sql.NullString
	)
	if err := row.Scan(&job.ID, &job.JobID, &job.Namespace, &job.CommandName, &args, &status, &created, &started); err != nil {
		return nil, err
	}
	var err error
	if job.State, err = core.ParseJobState(status); err != nil {
		return nil, err
	}
	if job.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if job.StartedAt, err = scanTime(started); err != nil {
		return nil, err
	}
	job.Args = json.RawMessage(args)
	return &job, nil
}

// Claim moves the oldest pending job to processing in a single conditional
// UPDATE, so two consumers can never claim the same row.
func (s *JobStore) Claim(ctx context.Context) (*core.Job, error) {
	row := s.backend.db.QueryRowContext(ctx,
		`UPDATE command_queue
		 SET status = 'processing', started_at = ?
		 WHERE id = (
		     SELECT id FROM command_queue
		     WHERE status = 'pending'
		     ORDER BY created_at, id
		     LIMIT 1
		 ) AND status = 'pending'
		 RETURNING id, job_id, namespace, command_name, args, status, created_at, started_at`,
		formatTime(s.now()))

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return job, nil
}

// finish moves a processing job to a terminal state.
func (s *JobStore) finish(ctx context.Context, jobID string, state core.JobState, result, errMsg any) error {
	res, err := s.backend.db.ExecContext(ctx,
		`UPDATE command_queue
		 SET status = ?, completed_at = ?, result = ?, error_message = ?
		 WHERE job_id = ? AND status = 'processing'`,
		string(state), formatTime(s.now()), result, errMsg, jobID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: job %s is not processing", core.ErrInvalidJobState, jobID)
	}
	return nil
}

// Complete records a successful result.
func (s *JobStore) Complete(ctx context.Context, jobID string, result any) error {
	payload, err := storage.MarshalJobPayload(result)
	if err != nil {
		return err
	}
	return s.finish(ctx, jobID, core.JobCompleted, string(payload), nil)
}

// Fail records a handler error.
func (s *JobStore) Fail(ctx context.Context, jobID string, message string) error {
	return s.finish(ctx, jobID, core.JobFailed, nil, message)
}

// RecoverStuck resets processing jobs started before now-olderThan to pending.
func (s *JobStore) RecoverStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := formatTime(s.now().Add(-olderThan))
	res, err := s.backend.db.ExecContext(ctx,
		`UPDATE command_queue SET status = 'pending', started_at = NULL
		 WHERE status = 'processing' AND started_at < ?`, cutoff)
	if err != nil {
		return 0, mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("recovered stuck jobs", "count", n)
	}
	return int(n), nil
}

// Stats counts jobs per state.
func (s *JobStore) Stats(ctx context.Context) (map[core.JobState]int, error) {
	rows, err := s.backend.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM command_queue GROUP BY status`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	stats := storage.EmptyJobStats()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, mapError(err)
		}
		state, err := core.ParseJobState(status)
		if err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, mapError(rows.Err())
}
