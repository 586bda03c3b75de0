package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RunStatus represents the state of a watch run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ScoutWatchRun is one execution instance of a watch's scan-and-analyze
// cycle. Created at run start, sealed at run end. At most one run per watch
// may be running at a time.
type ScoutWatchRun struct {
	ID          surrealmodels.RecordID `json:"id"`
	Watch       surrealmodels.RecordID `json:"watch"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Status      RunStatus              `json:"status"`

	PostsFetched  int     `json:"posts_fetched"`
	PostsNew      int     `json:"posts_new"`
	PostsAnalyzed int     `json:"posts_analyzed"`
	LeadsCreated  int     `json:"leads_created"`
	ErrorMessage  *string `json:"error_message,omitempty"`
	SearchURL     *string `json:"search_url,omitempty"`
}
