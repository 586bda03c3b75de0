package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/leadscout/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// PostInput carries the provider-side fields of a newly sighted post.
type PostInput struct {
	ExternalPostID string
	Author         string
	AuthorID       string
	Title          string
	Body           string
	URL            string
}

// InsertPost records the first sighting of a post for a watch. The unique
// (watch, external_post_id) index makes this the dedup boundary: a conflict
// returns ErrAlreadyExists and the caller counts the post as already seen.
func (c *Client) InsertPost(ctx context.Context, watchID, runID string, input PostInput) (*models.ScoutWatchPost, error) {
	results, err := surrealdb.Query[[]models.ScoutWatchPost](ctx, c.db, `
		CREATE scout_watch_post CONTENT {
			watch: $watch,
			run: $run,
			external_post_id: $external_post_id,
			author: $author,
			author_id: $author_id,
			title: $title,
			body: $body,
			url: $url,
			analysis_status: 'pending'
		}
	`, map[string]any{
		"watch":            surrealmodels.NewRecordID("scout_watch", watchID),
		"run":              surrealmodels.NewRecordID("scout_watch_run", runID),
		"external_post_id": input.ExternalPostID,
		"author":           input.Author,
		"author_id":        input.AuthorID,
		"title":            input.Title,
		"body":             input.Body,
		"url":              input.URL,
	})
	if err != nil {
		wrapped := wrapQueryError(err)
		if errors.Is(wrapped, ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert post: %w", wrapped)
	}

	rows := lastResult(results)
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert post: no row returned")
	}
	return &rows[0], nil
}

// GetPost retrieves a post by ID. Returns ErrNotFound if absent.
func (c *Client) GetPost(ctx context.Context, postID string) (*models.ScoutWatchPost, error) {
	results, err := surrealdb.Query[[]models.ScoutWatchPost](ctx, c.db, `
		SELECT * FROM type::record("scout_watch_post", $id)
	`, map[string]any{"id": postID})
	if err != nil {
		return nil, fmt.Errorf("get post: %w", wrapQueryError(err))
	}

	rows := lastResult(results)
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// ListRunPosts returns the posts first seen by a run, with their analysis
// payloads.
func (c *Client) ListRunPosts(ctx context.Context, runID string) ([]models.ScoutWatchPost, error) {
	results, err := surrealdb.Query[[]models.ScoutWatchPost](ctx, c.db, `
		SELECT * FROM scout_watch_post WHERE run = $run ORDER BY first_seen_at ASC
	`, map[string]any{
		"run": surrealmodels.NewRecordID("scout_watch_run", runID),
	})
	if err != nil {
		return nil, fmt.Errorf("list run posts: %w", wrapQueryError(err))
	}
	return lastResult(results), nil
}

// MarkPostAnalyzing transitions a post into the analyzing state.
func (c *Client) MarkPostAnalyzing(ctx context.Context, postID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("scout_watch_post", $id) SET
			analysis_status = 'analyzing',
			analysis_error = NONE
	`, map[string]any{"id": postID})
	if err != nil {
		return fmt.Errorf("mark post analyzing: %w", wrapQueryError(err))
	}
	return nil
}

// SavePostAnalysis writes a completed meta-analysis onto the post.
func (c *Client) SavePostAnalysis(ctx context.Context, postID string, outcome *models.AnalysisOutcome) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("scout_watch_post", $id) SET
			analysis_status = 'analyzed',
			analysis_recommendation = $recommendation,
			analysis_confidence = $confidence,
			analysis_dimensions = $dimensions,
			analysis_error = NONE
	`, map[string]any{
		"id":             postID,
		"recommendation": string(outcome.Recommendation),
		"confidence":     outcome.Confidence,
		"dimensions":     outcome.DimensionsJSON(),
	})
	if err != nil {
		return fmt.Errorf("save post analysis: %w", wrapQueryError(err))
	}
	return nil
}

// MarkPostAnalysisFailed records a total analysis failure. The post stays
// eligible for manual re-analysis.
func (c *Client) MarkPostAnalysisFailed(ctx context.Context, postID, errMsg string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("scout_watch_post", $id) SET
			analysis_status = 'failed',
			analysis_error = $error
	`, map[string]any{"id": postID, "error": errMsg})
	if err != nil {
		return fmt.Errorf("mark post analysis failed: %w", wrapQueryError(err))
	}
	return nil
}
