package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/leadscout/internal/models"
)

// Generator is the LLM surface the engine needs.
type Generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// PostContent is the rendered input handed to every agent.
type PostContent struct {
	Title    string
	Body     string
	Author   string
	Location string
	// TargetProfile describes what the watch is scouting for, fed to the
	// compatibility agent alongside the post.
	TargetProfile string
}

// ErrAllDimensionsFailed means no dimension produced output, so there is
// nothing for the coordinator to synthesize.
var ErrAllDimensionsFailed = errors.New("all dimension agents failed")

// Recorder receives per-call timings for observability.
type Recorder interface {
	RecordTiming(op string, duration time.Duration)
}

// Engine fans a post out to the dimension agents in parallel and synthesizes
// their outputs through the meta-analysis coordinator.
type Engine struct {
	model       Generator
	dimTimeout  time.Duration
	metaTimeout time.Duration
	maxFailed   int
	recorder    Recorder
	now         func() time.Time
}

// NewEngine creates an engine. dimTimeout bounds each dimension agent call
// and metaTimeout the coordinator call; maxFailed is the largest number of
// failed dimensions for which the coordinator's own recommendation still
// stands.
func NewEngine(model Generator, dimTimeout, metaTimeout time.Duration, maxFailed int) *Engine {
	if dimTimeout <= 0 {
		dimTimeout = 60 * time.Second
	}
	if metaTimeout <= 0 {
		metaTimeout = 120 * time.Second
	}
	if maxFailed < 0 {
		maxFailed = 2
	}
	return &Engine{
		model:       model,
		dimTimeout:  dimTimeout,
		metaTimeout: metaTimeout,
		maxFailed:   maxFailed,
		now:         time.Now,
	}
}

// SetRecorder attaches a timing recorder. Safe to leave unset.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

func (e *Engine) record(op string, start time.Time) {
	if e.recorder != nil {
		e.recorder.RecordTiming(op, time.Since(start))
	}
}

// Analyze evaluates one post. Dimension agents run in parallel; a failing or
// timed-out agent never cancels its siblings. The coordinator runs on
// whatever succeeded. Returns an error only on total failure: every
// dimension failed, or the coordinator itself failed.
func (e *Engine) Analyze(ctx context.Context, post PostContent, authorCtx *models.UserContextSummary) (*models.AnalysisOutcome, error) {
	userPrompt := renderPost(post, authorCtx)

	results := make([]models.DimensionResult, len(AllDimensions))
	var wg sync.WaitGroup
	for i, dim := range AllDimensions {
		wg.Add(1)
		go func(i int, dim Dimension) {
			defer wg.Done()
			results[i] = e.runDimension(ctx, dim, userPrompt)
		}(i, dim)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Status == models.DimensionFailed {
			failed++
		}
	}
	if failed == len(results) {
		return nil, ErrAllDimensionsFailed
	}

	meta, err := e.runMeta(ctx, userPrompt, results, failed)
	if err != nil {
		return nil, fmt.Errorf("meta-analysis: %w", err)
	}

	outcome := &models.AnalysisOutcome{
		Recommendation:    normalizeRecommendation(meta.Recommendation),
		Confidence:        clampConfidence(meta.Confidence),
		Reasoning:         meta.Reasoning,
		Strengths:         meta.Strengths,
		Concerns:          meta.Concerns,
		SuggestedApproach: meta.SuggestedApproach,
		Dimensions:        results,
		FailedDimensions:  failed,
		ModelInfo:         e.model.Model(),
	}

	// Too many missing dimensions to trust an automatic verdict either way.
	if failed > e.maxFailed && outcome.Recommendation != models.RecommendNeedsReview {
		slog.Info("forcing needs_review",
			"failed_dimensions", failed, "max_failed", e.maxFailed,
			"coordinator_recommendation", outcome.Recommendation)
		outcome.Recommendation = models.RecommendNeedsReview
	}

	return outcome, nil
}

// runDimension executes one agent under its own timeout and captures the
// result. Failures are recorded, never propagated.
func (e *Engine) runDimension(ctx context.Context, dim Dimension, userPrompt string) models.DimensionResult {
	result := models.DimensionResult{
		Dimension: string(dim),
		Status:    models.DimensionRunning,
		ModelInfo: e.model.Model(),
		StartedAt: e.now(),
	}
	defer e.record("dimension", time.Now())

	dimCtx, cancel := context.WithTimeout(ctx, e.dimTimeout)
	defer cancel()

	raw, err := e.model.GenerateWithSystem(dimCtx, dimensionPrompts[dim], userPrompt)
	if err == nil {
		var output map[string]any
		output, err = parseDimensionOutput(raw)
		if err == nil {
			result.Output = output
		}
	}

	done := e.now()
	result.CompletedAt = &done
	if err != nil {
		msg := err.Error()
		result.Status = models.DimensionFailed
		result.Error = &msg
		slog.Warn("dimension agent failed", "dimension", dim, "error", err)
	} else {
		result.Status = models.DimensionSucceeded
	}
	return result
}

func (e *Engine) runMeta(ctx context.Context, userPrompt string, results []models.DimensionResult, failed int) (*metaResponse, error) {
	defer e.record("meta_analysis", time.Now())

	var b strings.Builder
	b.WriteString("Candidate post:\n")
	b.WriteString(userPrompt)
	b.WriteString("\n\nDimension agent outputs:\n")
	for _, r := range results {
		b.WriteString("\n## ")
		b.WriteString(r.Dimension)
		b.WriteString(" (")
		b.WriteString(string(r.Status))
		b.WriteString(")\n")
		if r.Status == models.DimensionSucceeded {
			encoded, err := json.Marshal(r.Output)
			if err != nil {
				encoded = []byte("{}")
			}
			b.Write(encoded)
			b.WriteString("\n")
		} else if r.Error != nil {
			b.WriteString("failed: ")
			b.WriteString(*r.Error)
			b.WriteString("\n")
		}
	}
	if failed > 0 {
		fmt.Fprintf(&b, "\n%d of %d dimensions failed; treat the missing axes as uncertainty.\n", failed, len(results))
	}

	// The caller's context may carry no deadline (the worker pool passes the
	// daemon's signal context), so the coordinator call gets its own.
	metaCtx, cancel := context.WithTimeout(ctx, e.metaTimeout)
	defer cancel()

	raw, err := e.model.GenerateWithSystem(metaCtx, metaSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}
	return parseMetaResponse(raw)
}

func renderPost(post PostContent, authorCtx *models.UserContextSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Location: %s\n", post.Location)
	fmt.Fprintf(&b, "Author: %s\n", post.Author)
	fmt.Fprintf(&b, "Title: %s\n\n", post.Title)
	b.WriteString(post.Body)
	if post.TargetProfile != "" {
		b.WriteString("\n\nTarget profile for this watch:\n")
		b.WriteString(post.TargetProfile)
	}
	if authorCtx != nil {
		b.WriteString("\n\nAuthor context (from recent public activity):\n")
		if authorCtx.InterestsSummary != "" {
			b.WriteString("Interests: ")
			b.WriteString(authorCtx.InterestsSummary)
			b.WriteString("\n")
		}
		if authorCtx.CharacterSummary != "" {
			b.WriteString("Character: ")
			b.WriteString(authorCtx.CharacterSummary)
			b.WriteString("\n")
		}
	}
	return b.String()
}
