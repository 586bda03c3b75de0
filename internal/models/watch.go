package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ScoutWatch is a user-owned configuration describing what to monitor and
// how to react. The pipeline only mutates its counters and timestamps.
type ScoutWatch struct {
	ID             surrealmodels.RecordID `json:"id"`
	ProviderID     string                 `json:"provider_id"`
	SourceLocation string                 `json:"source_location"`
	SearchQuery    *string                `json:"search_query,omitempty"`
	SortBy         string                 `json:"sort_by"`
	TimeFilter     string                 `json:"time_filter"`
	IdentityID     *string                `json:"identity_id,omitempty"`
	IsActive       bool                   `json:"is_active"`
	AutoAnalyze    bool                   `json:"auto_analyze"`
	MinConfidence  float64                `json:"min_confidence"`
	ScanEvery      time.Duration          `json:"scan_every"`

	TotalPostsSeen    int        `json:"total_posts_seen"`
	TotalLeadsCreated int        `json:"total_leads_created"`
	LastRunAt         *time.Time `json:"last_run_at,omitempty"`
	LastMatchAt       *time.Time `json:"last_match_at,omitempty"`
}

// WatchInput carries the user-settable fields for creating a watch.
type WatchInput struct {
	ProviderID     string        `json:"provider_id"`
	SourceLocation string        `json:"source_location"`
	SearchQuery    *string       `json:"search_query,omitempty"`
	SortBy         string        `json:"sort_by"`
	TimeFilter     string        `json:"time_filter"`
	IdentityID     *string       `json:"identity_id,omitempty"`
	IsActive       bool          `json:"is_active"`
	AutoAnalyze    bool          `json:"auto_analyze"`
	MinConfidence  float64       `json:"min_confidence"`
	ScanEvery      time.Duration `json:"scan_every"`
}
