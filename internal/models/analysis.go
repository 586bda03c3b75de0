package models

import "time"

// Recommendation is the meta-analysis verdict for a candidate post.
// "not_recommended" is the canonical negative value; "not_suitable" from
// older prompts is normalized at the parsing boundary.
type Recommendation string

const (
	RecommendSuitable       Recommendation = "suitable"
	RecommendNeedsReview    Recommendation = "needs_review"
	RecommendNotRecommended Recommendation = "not_recommended"
)

// DimensionStatus represents the state of a single dimension agent call.
type DimensionStatus string

const (
	DimensionPending   DimensionStatus = "pending"
	DimensionRunning   DimensionStatus = "running"
	DimensionSucceeded DimensionStatus = "succeeded"
	DimensionFailed    DimensionStatus = "failed"
)

// DimensionResult is the structured partial result of one dimension agent.
// Output is a free-form map keyed by the agent's own schema; unknown fields
// survive round-trips so new agent versions stay forward compatible.
type DimensionResult struct {
	Dimension   string          `json:"dimension"`
	Status      DimensionStatus `json:"status"`
	Output      map[string]any  `json:"output,omitempty"`
	Error       *string         `json:"error,omitempty"`
	ModelInfo   string          `json:"model_info,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// AnalysisOutcome is the synthesized meta-analysis result written onto a
// ScoutWatchPost.
type AnalysisOutcome struct {
	Recommendation    Recommendation    `json:"recommendation"`
	Confidence        float64           `json:"confidence"`
	Reasoning         string            `json:"reasoning"`
	Strengths         []string          `json:"strengths,omitempty"`
	Concerns          []string          `json:"concerns,omitempty"`
	SuggestedApproach string            `json:"suggested_approach,omitempty"`
	Dimensions        []DimensionResult `json:"dimensions"`
	FailedDimensions  int               `json:"failed_dimensions"`
	ModelInfo         string            `json:"model_info,omitempty"`
}

// DimensionsJSON flattens the outcome into the analysis_dimensions payload
// stored on the post record.
func (o *AnalysisOutcome) DimensionsJSON() map[string]any {
	dims := make(map[string]any, len(o.Dimensions))
	for _, d := range o.Dimensions {
		entry := map[string]any{
			"status": string(d.Status),
		}
		if d.Output != nil {
			entry["output"] = d.Output
		}
		if d.Error != nil {
			entry["error"] = *d.Error
		}
		if d.ModelInfo != "" {
			entry["model_info"] = d.ModelInfo
		}
		dims[d.Dimension] = entry
	}
	return map[string]any{
		"dimensions":         dims,
		"failed_dimensions":  o.FailedDimensions,
		"reasoning":          o.Reasoning,
		"strengths":          o.Strengths,
		"concerns":           o.Concerns,
		"suggested_approach": o.SuggestedApproach,
		"model_info":         o.ModelInfo,
	}
}
