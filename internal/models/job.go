// Package models defines data structures for the leadscout pipeline.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobStatus represents the state of a ledger job.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobRetrying JobStatus = "retrying"
	JobFailed   JobStatus = "failed"
	JobDone     JobStatus = "done"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobFailed || s == JobDone
}

// Job types dispatched by the worker pool.
const (
	JobTypeWatchRun       = "watch_run"
	JobTypeAnalyzePost    = "analyze_post"
	JobTypeContextRefresh = "context_refresh"
)

// Job is one durable unit of asynchronous work. Rows are never deleted;
// terminal jobs are retained for audit and debugging.
type Job struct {
	ID          surrealmodels.RecordID `json:"id"`
	QueueName   string                 `json:"queue_name"`
	JobType     string                 `json:"job_type"`
	Payload     map[string]any         `json:"payload"`
	DedupeKey   string                 `json:"dedupe_key"`
	Status      JobStatus              `json:"status"`
	Attempts    int                    `json:"attempts"`
	MaxAttempts int                    `json:"max_attempts"`
	NextRunAt   *time.Time             `json:"next_run_at,omitempty"`
	LastError   *string                `json:"last_error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}
