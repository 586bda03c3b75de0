package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/leadscout/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const startRunSQL = `
	BEGIN TRANSACTION;
	LET $open = (SELECT id FROM scout_watch_run WHERE watch = $watch AND status = 'running' LIMIT 1);
	RETURN IF array::len($open) > 0 THEN [] ELSE (CREATE scout_watch_run CONTENT {
		watch: $watch,
		status: 'running',
		search_url: $search_url
	}) END;
	COMMIT TRANSACTION;
`

// StartRun creates the run row for a watch. The transaction rejects the
// creation while another run for the same watch is still running; that
// rejection surfaces as ErrAlreadyExists and is the run lock.
func (c *Client) StartRun(ctx context.Context, watchID string, searchURL *string) (*models.ScoutWatchRun, error) {
	watch := surrealmodels.NewRecordID("scout_watch", watchID)

	results, err := surrealdb.Query[[]models.ScoutWatchRun](ctx, c.db, startRunSQL, map[string]any{
		"watch":      watch,
		"search_url": searchURL,
	})
	if err != nil {
		wrapped := wrapQueryError(err)
		if errors.Is(wrapped, ErrTransactionConflict) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("start run: %w", wrapped)
	}

	rows := lastResult(results)
	if len(rows) == 0 {
		return nil, ErrAlreadyExists
	}
	return &rows[0], nil
}

// GetRun retrieves a run by ID. Returns ErrNotFound if absent.
func (c *Client) GetRun(ctx context.Context, runID string) (*models.ScoutWatchRun, error) {
	results, err := surrealdb.Query[[]models.ScoutWatchRun](ctx, c.db, `
		SELECT * FROM type::record("scout_watch_run", $id)
	`, map[string]any{"id": runID})
	if err != nil {
		return nil, fmt.Errorf("get run: %w", wrapQueryError(err))
	}

	rows := lastResult(results)
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// ListRuns returns runs for a watch, newest first.
func (c *Client) ListRuns(ctx context.Context, watchID string, limit int) ([]models.ScoutWatchRun, error) {
	if limit <= 0 {
		limit = 20
	}
	results, err := surrealdb.Query[[]models.ScoutWatchRun](ctx, c.db, `
		SELECT * FROM scout_watch_run WHERE watch = $watch ORDER BY started_at DESC LIMIT $limit
	`, map[string]any{
		"watch": surrealmodels.NewRecordID("scout_watch", watchID),
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", wrapQueryError(err))
	}
	return lastResult(results), nil
}

// RunCounters carries the final counters for sealing a run.
type RunCounters struct {
	PostsFetched  int
	PostsNew      int
	PostsAnalyzed int
	LeadsCreated  int
}

// SealRun closes a run with its final status and counters. A failed run
// keeps whatever posts were already ingested; error_message records why.
func (c *Client) SealRun(ctx context.Context, runID string, status models.RunStatus, counters RunCounters, errorMessage *string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("scout_watch_run", $id) SET
			status = $status,
			completed_at = time::now(),
			posts_fetched = $posts_fetched,
			posts_new = $posts_new,
			posts_analyzed = $posts_analyzed,
			leads_created = $leads_created,
			error_message = $error_message
	`, map[string]any{
		"id":             runID,
		"status":         string(status),
		"posts_fetched":  counters.PostsFetched,
		"posts_new":      counters.PostsNew,
		"posts_analyzed": counters.PostsAnalyzed,
		"leads_created":  counters.LeadsCreated,
		"error_message":  errorMessage,
	})
	if err != nil {
		return fmt.Errorf("seal run: %w", wrapQueryError(err))
	}
	return nil
}
