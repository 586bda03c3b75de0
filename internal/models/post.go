package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// AnalysisStatus represents how far a candidate post has moved through the
// scoring pipeline.
type AnalysisStatus string

const (
	AnalysisPending   AnalysisStatus = "pending"
	AnalysisAnalyzing AnalysisStatus = "analyzing"
	AnalysisAnalyzed  AnalysisStatus = "analyzed"
	AnalysisFailed    AnalysisStatus = "failed"
)

// ScoutWatchPost tracks one piece of external content discovered during a
// run. The (watch, external_post_id) pair is the dedup boundary: a post
// record persists across runs, run marks which run first saw it. Records are
// updated in place as analysis progresses and never deleted.
type ScoutWatchPost struct {
	ID             surrealmodels.RecordID `json:"id"`
	Watch          surrealmodels.RecordID `json:"watch"`
	Run            surrealmodels.RecordID `json:"run"`
	ExternalPostID string                 `json:"external_post_id"`
	FirstSeenAt    time.Time              `json:"first_seen_at"`

	Author   string `json:"author"`
	AuthorID string `json:"author_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	URL      string `json:"url"`

	AnalysisStatus         AnalysisStatus          `json:"analysis_status"`
	AnalysisRecommendation *Recommendation         `json:"analysis_recommendation,omitempty"`
	AnalysisConfidence     *float64                `json:"analysis_confidence,omitempty"`
	AnalysisDimensions     map[string]any          `json:"analysis_dimensions,omitempty"`
	AnalysisError          *string                 `json:"analysis_error,omitempty"`
	Lead                   *surrealmodels.RecordID `json:"lead,omitempty"`
}

// HasBody reports whether the post carries analyzable content. Posts whose
// body was removed upstream are counted as fetched but skipped from analysis.
func (p *ScoutWatchPost) HasBody() bool {
	return p.Body != "" && p.Body != "[removed]" && p.Body != "[deleted]"
}
