package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/poiesic/notebase/core"
	"github.com/poiesic/notebase/storage"
)

const (
	DefaultPollInterval     = 2 * time.Second
	DefaultRecoveryInterval = 300 * time.Second
	DefaultStuckTimeout     = 30 * time.Minute
	DefaultMaxBackoff       = time.Minute
)

// Worker is the single consumer of a job store.
type Worker struct {
	store    storage.JobStore
	registry *Registry

	pollInterval     time.Duration
	recoveryInterval time.Duration
	stuckTimeout     time.Duration
	maxBackoff       time.Duration
	logger           *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// WithPollInterval sets how long the worker sleeps when the queue is empty.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) error {
		if d <= 0 {
			return fmt.Errorf("poll interval must be positive, got %s", d)
		}
		w.pollInterval = d
		return nil
	}
}

// WithRecoveryInterval sets how often stuck jobs are recovered.
func WithRecoveryInterval(d time.Duration) WorkerOption {
	return func(w *Worker) error {
		if d <= 0 {
			return fmt.Errorf("recovery interval must be positive, got %s", d)
		}
		w.recoveryInterval = d
		return nil
	}
}

// WithStuckTimeout sets how long a job may stay processing before it is requeued.
func WithStuckTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) error {
		if d <= 0 {
			return fmt.Errorf("stuck timeout must be positive, got %s", d)
		}
		w.stuckTimeout = d
		return nil
	}
}

// WithMaxBackoff caps the delay after repeated store errors.
func WithMaxBackoff(d time.Duration) WorkerOption {
	return func(w *Worker) error {
		if d <= 0 {
			return fmt.Errorf("max backoff must be positive, got %s", d)
		}
		w.maxBackoff = d
		return nil
	}
}

// NewWorker creates a worker over store dispatching to registry.
func NewWorker(store storage.JobStore, registry *Registry, opts ...WorkerOption) (*Worker, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	w := &Worker{
		store:            store,
		registry:         registry,
		pollInterval:     DefaultPollInterval,
		recoveryInterval: DefaultRecoveryInterval,
		stuckTimeout:     DefaultStuckTimeout,
		maxBackoff:       DefaultMaxBackoff,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	w.logger = w.logger.With("component", "worker")
	return w, nil
}

// Start launches the worker loop. Cancelling ctx ends the loop like Stop does:
// no further job is claimed, and the job in progress runs to completion.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return ErrWorkerRunning
	}

	if stats, err := w.store.Stats(ctx); err != nil {
		w.logger.Warn("unable to read queue stats", "err", err)
	} else {
		w.logger.Info("worker starting",
			"pending", stats[core.JobPending],
			"processing", stats[core.JobProcessing],
			"completed", stats[core.JobCompleted],
			"failed", stats[core.JobFailed],
			"commands", w.registry.Commands())
	}

	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.run(ctx, w.stop, w.done)
	return nil
}

// Stop signals the loop to exit and waits for the current job to finish.
// Calling Stop on a stopped worker is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()
	if done == nil {
		return
	}
	close(stop)
	<-done
}

func (w *Worker) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer w.logger.Info("worker stopped")

	w.recoverStuck(ctx)
	lastRecovery := time.Now()
	backoff := time.Duration(0)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if time.Since(lastRecovery) >= w.recoveryInterval {
			w.recoverStuck(ctx)
			lastRecovery = time.Now()
		}

		processed, err := w.ProcessOne(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			backoff = min(max(backoff*2, w.pollInterval*2), w.maxBackoff)
			wait = backoff
			w.logger.Error("worker error", "err", err, "backoff", backoff)
		case processed:
			backoff = 0
			continue
		default:
			backoff = 0
			wait = w.pollInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (w *Worker) recoverStuck(ctx context.Context) {
	n, err := w.store.RecoverStuck(ctx, w.stuckTimeout)
	if err != nil {
		w.logger.Error("failed to recover stuck jobs", "err", err)
		return
	}
	if n > 0 {
		w.logger.Info("recovered stuck jobs", "count", n)
	}
}

// ProcessOne claims and runs at most one job. It reports whether a job was
// claimed. Handler failures are recorded on the job and do not produce an
// error; only store failures do.
// Once a job is claimed, cancelling ctx no longer reaches its handler or the
// write that records its outcome, so a claimed job never stays processing.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	job, err := w.store.Claim(ctx)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	ctx = context.WithoutCancel(ctx)

	logger := w.logger.With("job_id", job.JobID, "command", job.Namespace+"."+job.CommandName)
	logger.Info("executing job")
	start := time.Now()

	result, runErr := w.execute(ctx, job)
	if runErr != nil {
		failure := &JobFailedError{
			JobID:       job.JobID,
			Namespace:   job.Namespace,
			CommandName: job.CommandName,
			Err:         runErr,
		}
		logger.Error("job failed", "err", runErr, "elapsed", time.Since(start))
		if err := w.store.Fail(ctx, job.JobID, failure.Error()); err != nil {
			return true, fmt.Errorf("recording failure of job %s: %w", job.JobID, err)
		}
		return true, nil
	}

	if err := w.store.Complete(ctx, job.JobID, result); err != nil {
		// An unencodable result still finishes the job, as a failure.
		logger.Error("unable to record job result", "err", err)
		if ferr := w.store.Fail(ctx, job.JobID, fmt.Sprintf("recording result: %v", err)); ferr != nil {
			return true, fmt.Errorf("completing job %s: %w", job.JobID, err)
		}
		return true, nil
	}
	logger.Info("job completed", "elapsed", time.Since(start))
	return true, nil
}

func (w *Worker) execute(ctx context.Context, job *core.Job) (result any, err error) {
	handler, err := w.registry.Lookup(job.Namespace, job.CommandName)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return handler(ctx, job.Args)
}
