package analysis

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/raphaelgruber/leadscout/internal/models"
)

var errNoJSON = errors.New("no JSON object in model response")

// extractJSON pulls the first complete JSON object out of a model response,
// tolerating markdown fences and prose around it.
func extractJSON(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, errNoJSON
	}
	return []byte(s[start : end+1]), nil
}

func parseDimensionOutput(raw string) (map[string]any, error) {
	data, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// metaResponse is the coordinator's expected JSON shape.
type metaResponse struct {
	Recommendation    string   `json:"recommendation"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	Strengths         []string `json:"strengths"`
	Concerns          []string `json:"concerns"`
	SuggestedApproach string   `json:"suggested_approach"`
}

func parseMetaResponse(raw string) (*metaResponse, error) {
	data, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var out metaResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// normalizeRecommendation maps model output to the canonical enum.
// "not_suitable" is a legacy alias for "not_recommended".
func normalizeRecommendation(s string) models.Recommendation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "suitable":
		return models.RecommendSuitable
	case "needs_review", "needs review":
		return models.RecommendNeedsReview
	case "not_recommended", "not_suitable", "not suitable":
		return models.RecommendNotRecommended
	default:
		return models.RecommendNeedsReview
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
