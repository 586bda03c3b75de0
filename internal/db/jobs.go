package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/leadscout/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// activeJobStatuses are the non-terminal job states. At most one job per
// dedupe key may be in any of these.
var activeJobStatuses = []string{
	string(models.JobQueued),
	string(models.JobRunning),
	string(models.JobRetrying),
}

const enqueueJobSQL = `
	BEGIN TRANSACTION;
	LET $existing = (SELECT * FROM job WHERE dedupe_key = $dedupe_key AND status IN $active LIMIT 1);
	RETURN IF array::len($existing) > 0 THEN [{ job: $existing[0], created: false }] ELSE [{
		job: (CREATE job CONTENT {
			queue_name: $queue,
			job_type: $job_type,
			payload: $payload,
			dedupe_key: $dedupe_key,
			status: 'queued',
			attempts: 0,
			max_attempts: $max_attempts
		})[0],
		created: true
	}] END;
	COMMIT TRANSACTION;
`

// enqueueOutcome is the shape returned by enqueueJobSQL.
type enqueueOutcome struct {
	Job     models.Job `json:"job"`
	Created bool       `json:"created"`
}

// EnqueueJob inserts a job unless a non-terminal job with the same dedupe
// key already exists, in which case the existing job is returned. The second
// return value reports whether a new job was created. This conditional
// insert is what makes re-triggering a watch run safe.
func (c *Client) EnqueueJob(ctx context.Context, queue, jobType string, payload map[string]any, dedupeKey string, maxAttempts int) (*models.Job, bool, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	vars := map[string]any{
		"queue":        queue,
		"job_type":     jobType,
		"payload":      payload,
		"dedupe_key":   dedupeKey,
		"max_attempts": maxAttempts,
		"active":       activeJobStatuses,
	}

	// A concurrent enqueue with the same key conflicts at commit; the retry
	// then observes the winner's row.
	var rows []enqueueOutcome
	for attempt := 0; attempt < 2; attempt++ {
		results, err := surrealdb.Query[[]enqueueOutcome](ctx, c.db, enqueueJobSQL, vars)
		if err != nil {
			if errors.Is(wrapQueryError(err), ErrTransactionConflict) && attempt == 0 {
				continue
			}
			return nil, false, fmt.Errorf("enqueue job: %w", wrapQueryError(err))
		}
		rows = lastResult(results)
		break
	}
	if len(rows) == 0 {
		return nil, false, fmt.Errorf("enqueue job: no row returned")
	}

	return &rows[0].Job, rows[0].Created, nil
}

const claimJobSQL = `
	BEGIN TRANSACTION;
	LET $due = (SELECT * FROM job
		WHERE queue_name = $queue
		AND (status = 'queued' OR (status = 'retrying' AND next_run_at <= time::now()))
		ORDER BY created_at ASC LIMIT 1);
	RETURN IF array::len($due) > 0 THEN (UPDATE $due[0].id SET
		status = 'running',
		attempts += 1,
		updated_at = time::now()
	) ELSE [] END;
	COMMIT TRANSACTION;
`

// ClaimJob atomically transitions one due job to running, incrementing its
// attempt counter. Returns nil when no job is due. Two workers can never
// claim the same job: the transaction serializes and the loser's conflict is
// reported as "nothing to claim".
func (c *Client) ClaimJob(ctx context.Context, queue string) (*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, claimJobSQL, map[string]any{
		"queue": queue,
	})
	if err != nil {
		if errors.Is(wrapQueryError(err), ErrTransactionConflict) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", wrapQueryError(err))
	}

	rows := lastResult(results)
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

const resumeOrphanedJobsSQL = `
	UPDATE job SET
		status = 'retrying',
		next_run_at = time::now(),
		last_error = 'interrupted: claimed by a worker that never finished',
		updated_at = time::now()
	WHERE queue_name = $queue AND status = 'running'
`

// ResumeOrphanedJobs requeues every running job in the queue. In-process
// workers always reach CompleteJob or FailJob (panics included), so a running
// row can only be left behind by a process that died mid-job; the sweep runs
// once on startup, before workers claim anything. Without it an orphaned
// row's dedupe key would block all future enqueues for that key forever.
func (c *Client) ResumeOrphanedJobs(ctx context.Context, queue string) ([]models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, resumeOrphanedJobsSQL, map[string]any{
		"queue": queue,
	})
	if err != nil {
		return nil, fmt.Errorf("resume orphaned jobs: %w", wrapQueryError(err))
	}
	return lastResult(results), nil
}

// CompleteJob marks a job done.
func (c *Client) CompleteJob(ctx context.Context, jobID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("job", $id) SET
			status = 'done',
			updated_at = time::now()
	`, map[string]any{"id": jobID})
	if err != nil {
		return fmt.Errorf("complete job: %w", wrapQueryError(err))
	}
	return nil
}

const failJobSQL = `
	UPDATE type::record("job", $id) SET
		status = IF $retryable AND attempts < max_attempts THEN 'retrying' ELSE 'failed' END,
		next_run_at = IF $retryable AND attempts < max_attempts THEN <datetime>$next_run_at ELSE NONE END,
		last_error = $error,
		updated_at = time::now()
`

// FailJob records a failure. Retryable failures below the attempt cap move
// to retrying with the given backoff deadline; everything else is terminal
// and surfaced to operators via last_error.
func (c *Client) FailJob(ctx context.Context, jobID, errMsg string, retryable bool, nextRunAt time.Time) error {
	_, err := surrealdb.Query[any](ctx, c.db, failJobSQL, map[string]any{
		"id":          jobID,
		"error":       errMsg,
		"retryable":   retryable,
		"next_run_at": nextRunAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("fail job: %w", wrapQueryError(err))
	}
	return nil
}

// GetJob retrieves a job by ID. Returns ErrNotFound if absent.
func (c *Client) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, `
		SELECT * FROM type::record("job", $id)
	`, map[string]any{"id": jobID})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", wrapQueryError(err))
	}

	rows := lastResult(results)
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// ListJobs returns recent jobs, newest first.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	results, err := surrealdb.Query[[]models.Job](ctx, c.db, `
		SELECT * FROM job ORDER BY created_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", wrapQueryError(err))
	}
	return lastResult(results), nil
}
