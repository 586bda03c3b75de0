package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/leadscout/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const promotePostSQL = `
	BEGIN TRANSACTION;
	LET $post = (SELECT * FROM type::record("scout_watch_post", $post_id))[0];
	IF $post.lead != NONE {
		RETURN [{ lead: $post.lead, created: false }];
	} ELSE {
		LET $lead = (CREATE lead CONTENT {
			provider_id: $provider_id,
			source_location: $source_location,
			external_post_id: $post.external_post_id,
			author: $post.author,
			title: $post.title,
			url: $post.url,
			status: 'new',
			analysis_recommendation: $recommendation,
			analysis_confidence: $confidence
		})[0];
		UPDATE $post.id SET lead = $lead.id;
		UPDATE $post.watch SET total_leads_created += 1, last_match_at = time::now();
		RETURN [{ lead: $lead.id, created: true }];
	};
	COMMIT TRANSACTION;
`

// promoteOutcome is the shape returned by promotePostSQL.
type promoteOutcome struct {
	Lead    surrealmodels.RecordID `json:"lead"`
	Created bool                   `json:"created"`
}

// PromotePost creates a lead from an analyzed post, links it, and bumps the
// watch counters, all in one transaction. Promoting an already-promoted post
// is a no-op returning the existing lead id.
func (c *Client) PromotePost(ctx context.Context, postID, providerID, sourceLocation string, recommendation models.Recommendation, confidence float64) (leadID string, created bool, err error) {
	vars := map[string]any{
		"post_id":         postID,
		"provider_id":     providerID,
		"source_location": sourceLocation,
		"recommendation":  string(recommendation),
		"confidence":      confidence,
	}

	var rows []promoteOutcome
	for attempt := 0; attempt < 2; attempt++ {
		results, qerr := surrealdb.Query[[]promoteOutcome](ctx, c.db, promotePostSQL, vars)
		if qerr != nil {
			wrapped := wrapQueryError(qerr)
			// A concurrent promotion wins the race; the retry observes its lead.
			if (errors.Is(wrapped, ErrTransactionConflict) || errors.Is(wrapped, ErrAlreadyExists)) && attempt == 0 {
				continue
			}
			return "", false, fmt.Errorf("promote post: %w", wrapped)
		}
		rows = lastResult(results)
		break
	}
	if len(rows) == 0 {
		return "", false, fmt.Errorf("promote post: no row returned")
	}

	id, err := models.RecordIDString(rows[0].Lead)
	if err != nil {
		return "", false, fmt.Errorf("promote post: %w", err)
	}
	return id, rows[0].Created, nil
}

// GetLead retrieves a lead by ID. Returns ErrNotFound if absent.
func (c *Client) GetLead(ctx context.Context, leadID string) (*models.Lead, error) {
	results, err := surrealdb.Query[[]models.Lead](ctx, c.db, `
		SELECT * FROM type::record("lead", $id)
	`, map[string]any{"id": leadID})
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", wrapQueryError(err))
	}

	rows := lastResult(results)
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// ListLeads returns leads, newest first.
func (c *Client) ListLeads(ctx context.Context, limit int) ([]models.Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	results, err := surrealdb.Query[[]models.Lead](ctx, c.db, `
		SELECT * FROM lead ORDER BY created_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", wrapQueryError(err))
	}
	return lastResult(results), nil
}
