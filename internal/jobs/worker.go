package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/raphaelgruber/leadscout/internal/models"
)

// Ledger is the persistence surface the pool needs.
type Ledger interface {
	ClaimJob(ctx context.Context, queue string) (*models.Job, error)
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID, errMsg string, retryable bool, nextRunAt time.Time) error
	ResumeOrphanedJobs(ctx context.Context, queue string) ([]models.Job, error)
}

// Handler executes one job. A returned error schedules a retry unless it is
// marked permanent.
type Handler func(ctx context.Context, job *models.Job) error

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so the pool fails the job terminally instead of
// retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether an error was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Pool polls a queue with a fixed set of workers and dispatches claimed jobs
// by type.
type Pool struct {
	ledger       Ledger
	queue        string
	workers      int
	pollInterval time.Duration
	backoff      Backoff
	handlers     map[string]Handler
	now          func() time.Time
}

// NewPool creates a worker pool for one queue.
func NewPool(ledger Ledger, queue string, workers int, pollInterval time.Duration) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Pool{
		ledger:       ledger,
		queue:        queue,
		workers:      workers,
		pollInterval: pollInterval,
		backoff:      DefaultBackoff(),
		handlers:     make(map[string]Handler),
		now:          time.Now,
	}
}

// Register binds a handler to a job type. Must be called before Run.
func (p *Pool) Register(jobType string, handler Handler) {
	p.handlers[jobType] = handler
}

// Run starts the workers and blocks until ctx is cancelled and all in-flight
// jobs finished. Jobs left running by a previous process are requeued before
// the first claim.
func (p *Pool) Run(ctx context.Context) {
	slog.Info("worker pool starting", "queue", p.queue, "workers", p.workers, "poll_interval", p.pollInterval)

	resumed, err := p.ledger.ResumeOrphanedJobs(ctx, p.queue)
	if err != nil {
		slog.Error("failed to resume orphaned jobs", "queue", p.queue, "error", err)
	} else if len(resumed) > 0 {
		slog.Info("resumed orphaned jobs", "queue", p.queue, "count", len(resumed))
	}

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	wg.Wait()
	slog.Info("worker pool stopped", "queue", p.queue)
}

func (p *Pool) worker(ctx context.Context, id int) {
	for {
		job, err := p.ledger.ClaimJob(ctx, p.queue)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("claim failed", "worker", id, "error", err)
			job = nil
		}

		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
			continue
		}

		p.dispatch(ctx, job)

		if ctx.Err() != nil {
			return
		}
	}
}

// dispatch runs one claimed job to a terminal or retrying state. Panics in
// handlers are caught and recorded as permanent failures.
func (p *Pool) dispatch(ctx context.Context, job *models.Job) {
	jobID, err := models.RecordIDString(job.ID)
	if err != nil {
		slog.Error("claimed job has malformed id", "error", err)
		return
	}
	log := slog.With("job", jobID, "type", job.JobType, "attempt", job.Attempts)

	handler, ok := p.handlers[job.JobType]
	if !ok {
		log.Error("no handler registered")
		p.fail(ctx, jobID, fmt.Errorf("no handler for job type %q", job.JobType), false, job.Attempts)
		return
	}

	start := p.now()
	err = p.runHandler(ctx, handler, job)
	elapsed := p.now().Sub(start)

	if err == nil {
		if cerr := p.ledger.CompleteJob(ctx, jobID); cerr != nil {
			log.Error("failed to mark job done", "error", cerr)
		} else {
			log.Info("job done", "duration", elapsed)
		}
		return
	}

	retryable := !IsPermanent(err)
	log.Warn("job failed", "error", err, "retryable", retryable, "duration", elapsed)
	p.fail(ctx, jobID, err, retryable, job.Attempts)
}

func (p *Pool) runHandler(ctx context.Context, handler Handler, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panicked", "job_type", job.JobType, "panic", r, "stack", string(debug.Stack()))
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(ctx, job)
}

func (p *Pool) fail(ctx context.Context, jobID string, cause error, retryable bool, attempts int) {
	nextRunAt := p.now().Add(p.backoff.Delay(attempts))
	if err := p.ledger.FailJob(ctx, jobID, cause.Error(), retryable, nextRunAt); err != nil {
		slog.Error("failed to record job failure", "job", jobID, "error", err)
	}
}
