package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/leadscout/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// CreateWatch inserts a new watch configuration.
func (c *Client) CreateWatch(ctx context.Context, input models.WatchInput) (*models.ScoutWatch, error) {
	results, err := surrealdb.Query[[]models.ScoutWatch](ctx, c.db, `
		CREATE scout_watch CONTENT {
			provider_id: $provider_id,
			source_location: $source_location,
			search_query: $search_query,
			sort_by: $sort_by,
			time_filter: $time_filter,
			identity_id: $identity_id,
			is_active: $is_active,
			auto_analyze: $auto_analyze,
			min_confidence: $min_confidence,
			scan_every: <duration>$scan_every
		}
	`, map[string]any{
		"provider_id":     input.ProviderID,
		"source_location": input.SourceLocation,
		"search_query":    input.SearchQuery,
		"sort_by":         input.SortBy,
		"time_filter":     input.TimeFilter,
		"identity_id":     input.IdentityID,
		"is_active":       input.IsActive,
		"auto_analyze":    input.AutoAnalyze,
		"min_confidence":  input.MinConfidence,
		"scan_every":      input.ScanEvery.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("create watch: %w", wrapQueryError(err))
	}

	rows := lastResult(results)
	if len(rows) == 0 {
		return nil, fmt.Errorf("create watch: no row returned")
	}
	return &rows[0], nil
}

// GetWatch retrieves a watch by ID. Returns ErrNotFound if absent.
func (c *Client) GetWatch(ctx context.Context, watchID string) (*models.ScoutWatch, error) {
	results, err := surrealdb.Query[[]models.ScoutWatch](ctx, c.db, `
		SELECT * FROM type::record("scout_watch", $id)
	`, map[string]any{"id": watchID})
	if err != nil {
		return nil, fmt.Errorf("get watch: %w", wrapQueryError(err))
	}

	rows := lastResult(results)
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// ListWatches returns all watches.
func (c *Client) ListWatches(ctx context.Context) ([]models.ScoutWatch, error) {
	results, err := surrealdb.Query[[]models.ScoutWatch](ctx, c.db, `
		SELECT * FROM scout_watch ORDER BY source_location ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list watches: %w", wrapQueryError(err))
	}
	return lastResult(results), nil
}

// ListActiveWatches returns watches eligible for scheduling.
func (c *Client) ListActiveWatches(ctx context.Context) ([]models.ScoutWatch, error) {
	results, err := surrealdb.Query[[]models.ScoutWatch](ctx, c.db, `
		SELECT * FROM scout_watch WHERE is_active = true
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list active watches: %w", wrapQueryError(err))
	}
	return lastResult(results), nil
}

// SetWatchActive enables or disables a watch.
func (c *Client) SetWatchActive(ctx context.Context, watchID string, active bool) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("scout_watch", $id) SET is_active = $active
	`, map[string]any{"id": watchID, "active": active})
	if err != nil {
		return fmt.Errorf("set watch active: %w", wrapQueryError(err))
	}
	return nil
}

// SealWatchAggregates folds a completed run's counters into the watch
// aggregates. Counters on the watch are derived caches; they are only ever
// bumped here and by PromotePost, alongside the owning transaction.
func (c *Client) SealWatchAggregates(ctx context.Context, watchID string, postsNew int, ranAt time.Time) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("scout_watch", $id) SET
			total_posts_seen += $posts_new,
			last_run_at = <datetime>$ran_at
	`, map[string]any{
		"id":        watchID,
		"posts_new": postsNew,
		"ran_at":    ranAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("seal watch aggregates: %w", wrapQueryError(err))
	}
	return nil
}
