package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// LeadStatus tracks the lifecycle of a promoted lead. Only "new" is assigned
// by the pipeline; the rest belong to the downstream lead workflow.
type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadReplied   LeadStatus = "replied"
	LeadClosed    LeadStatus = "closed"
)

// Lead is a promoted, user-actionable record derived from a sufficiently
// well-scored candidate. (provider_id, external_post_id) is unique.
type Lead struct {
	ID             surrealmodels.RecordID `json:"id"`
	ProviderID     string                 `json:"provider_id"`
	SourceLocation string                 `json:"source_location"`
	ExternalPostID string                 `json:"external_post_id"`
	Author         string                 `json:"author"`
	Title          string                 `json:"title"`
	URL            string                 `json:"url"`
	Status         LeadStatus             `json:"status"`

	AnalysisRecommendation Recommendation `json:"analysis_recommendation"`
	AnalysisConfidence     float64        `json:"analysis_confidence"`
	CreatedAt              time.Time      `json:"created_at"`
}
