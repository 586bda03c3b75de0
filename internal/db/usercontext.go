package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/leadscout/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// GetUserContext returns the cached summary for an author, or nil when none
// exists. Expiry is the caller's concern; expired rows are still returned so
// the cache can fall back to stale data if regeneration fails.
func (c *Client) GetUserContext(ctx context.Context, providerID, accountExternalID string) (*models.UserContextSummary, error) {
	results, err := surrealdb.Query[[]models.UserContextSummary](ctx, c.db, `
		SELECT * FROM user_context
		WHERE provider_id = $provider_id AND account_external_id = $account_id
		LIMIT 1
	`, map[string]any{
		"provider_id": providerID,
		"account_id":  accountExternalID,
	})
	if err != nil {
		return nil, fmt.Errorf("get user context: %w", wrapQueryError(err))
	}

	rows := lastResult(results)
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpsertUserContext stores a freshly generated summary, replacing any
// previous one for the same author.
func (c *Client) UpsertUserContext(ctx context.Context, providerID, accountExternalID, interests, character string, expiresAt time.Time) (*models.UserContextSummary, error) {
	results, err := surrealdb.Query[[]models.UserContextSummary](ctx, c.db, `
		UPSERT user_context SET
			provider_id = $provider_id,
			account_external_id = $account_id,
			interests_summary = $interests,
			character_summary = $character,
			generated_at = time::now(),
			expires_at = <datetime>$expires_at
		WHERE provider_id = $provider_id AND account_external_id = $account_id
	`, map[string]any{
		"provider_id": providerID,
		"account_id":  accountExternalID,
		"interests":   interests,
		"character":   character,
		"expires_at":  expiresAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("upsert user context: %w", wrapQueryError(err))
	}

	rows := lastResult(results)
	if len(rows) == 0 {
		return nil, fmt.Errorf("upsert user context: no row returned")
	}
	return &rows[0], nil
}

// ObserveAccount records the provider-side state of an author as last seen.
// Observations only ever update this row; they never delete local posts or
// messages tied to the account.
func (c *Client) ObserveAccount(ctx context.Context, providerID, externalID, username string, status models.RemoteStatus) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT external_account SET
			provider_id = $provider_id,
			external_id = $external_id,
			username = $username,
			remote_status = $status,
			observed_at = time::now()
		WHERE provider_id = $provider_id AND external_id = $external_id
	`, map[string]any{
		"provider_id": providerID,
		"external_id": externalID,
		"username":    username,
		"status":      string(status),
	})
	if err != nil {
		return fmt.Errorf("observe account: %w", wrapQueryError(err))
	}
	return nil
}
