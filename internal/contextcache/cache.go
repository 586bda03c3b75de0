// Package contextcache caches per-author context summaries used by the
// analysis agents, refreshing them on a TTL.
package contextcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/leadscout/internal/models"
	"github.com/raphaelgruber/leadscout/internal/provider"
	"golang.org/x/sync/singleflight"
)

// Store is the persistence surface the cache needs.
type Store interface {
	GetUserContext(ctx context.Context, providerID, accountExternalID string) (*models.UserContextSummary, error)
	UpsertUserContext(ctx context.Context, providerID, accountExternalID, interests, character string, expiresAt time.Time) (*models.UserContextSummary, error)
	ObserveAccount(ctx context.Context, providerID, externalID, username string, status models.RemoteStatus) error
}

// Generator is the LLM surface the cache needs.
type Generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Cache serves author context summaries, regenerating them when expired or
// absent. Concurrent misses for the same author coalesce into one refresh.
type Cache struct {
	store      Store
	reader     provider.Reader
	model      Generator
	ttl        time.Duration
	genTimeout time.Duration
	itemsLimit int

	group singleflight.Group
	now   func() time.Time
}

// New creates a cache. ttl governs how long generated summaries stay fresh;
// genTimeout bounds each summary generation call.
func New(store Store, reader provider.Reader, model Generator, ttl, genTimeout time.Duration, itemsLimit int) *Cache {
	if ttl <= 0 {
		ttl = 168 * time.Hour
	}
	if genTimeout <= 0 {
		genTimeout = 120 * time.Second
	}
	if itemsLimit <= 0 {
		itemsLimit = 25
	}
	return &Cache{
		store:      store,
		reader:     reader,
		model:      model,
		ttl:        ttl,
		genTimeout: genTimeout,
		itemsLimit: itemsLimit,
		now:        time.Now,
	}
}

// GetOrRefresh returns the cached summary for an author, refreshing it if
// expired or absent. Invalidation is TTL-only: new author activity observed
// mid-TTL does not trigger a refresh.
func (c *Cache) GetOrRefresh(ctx context.Context, providerID, accountExternalID string) (*models.UserContextSummary, error) {
	cached, err := c.store.GetUserContext(ctx, providerID, accountExternalID)
	if err != nil {
		return nil, err
	}
	if cached != nil && !cached.Expired(c.now()) {
		return cached, nil
	}

	key := providerID + ":" + accountExternalID
	result, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: a concurrent refresh may have landed.
		fresh, err := c.store.GetUserContext(ctx, providerID, accountExternalID)
		if err != nil {
			return nil, err
		}
		if fresh != nil && !fresh.Expired(c.now()) {
			return fresh, nil
		}
		return c.refresh(ctx, providerID, accountExternalID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.UserContextSummary), nil
}

// Refresh regenerates the summary unconditionally (manual override path).
func (c *Cache) Refresh(ctx context.Context, providerID, accountExternalID string) (*models.UserContextSummary, error) {
	return c.refresh(ctx, providerID, accountExternalID)
}

func (c *Cache) refresh(ctx context.Context, providerID, accountExternalID string) (*models.UserContextSummary, error) {
	items, err := c.reader.FetchAuthorItems(ctx, accountExternalID, c.itemsLimit)
	if err != nil {
		if errors.Is(err, provider.ErrGone) {
			// The account vanished upstream. Record the observation; local
			// data stays untouched.
			if obsErr := c.store.ObserveAccount(ctx, providerID, accountExternalID, accountExternalID, models.RemoteDeleted); obsErr != nil {
				slog.Warn("failed to record account observation", "account", accountExternalID, "error", obsErr)
			}
		}
		return nil, fmt.Errorf("fetch author items: %w", err)
	}

	if obsErr := c.store.ObserveAccount(ctx, providerID, accountExternalID, accountExternalID, models.RemoteActive); obsErr != nil {
		slog.Warn("failed to record account observation", "account", accountExternalID, "error", obsErr)
	}

	history := renderHistory(items)

	// The caller's context may carry no deadline, so each summary call gets
	// its own.
	interests, err := c.generate(ctx, interestsSystemPrompt, history)
	if err != nil {
		return nil, fmt.Errorf("generate interests summary: %w", err)
	}
	character, err := c.generate(ctx, characterSystemPrompt, history)
	if err != nil {
		return nil, fmt.Errorf("generate character summary: %w", err)
	}

	expiresAt := c.now().Add(c.ttl)
	summary, err := c.store.UpsertUserContext(ctx, providerID, accountExternalID, strings.TrimSpace(interests), strings.TrimSpace(character), expiresAt)
	if err != nil {
		return nil, fmt.Errorf("store context summary: %w", err)
	}

	slog.Info("author context refreshed",
		"provider", providerID, "account", accountExternalID, "items", len(items), "expires_at", expiresAt)
	return summary, nil
}

func (c *Cache) generate(ctx context.Context, systemPrompt, history string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, c.genTimeout)
	defer cancel()
	return c.model.GenerateWithSystem(genCtx, systemPrompt, history)
}

const interestsSystemPrompt = `You are an analyst summarizing a person's interests from their recent public posts and comments.
Write 2-4 sentences covering: topics they engage with, hobbies, communities, and recurring themes.
Base the summary ONLY on the provided history. If the history is too thin, say so briefly.`

const characterSystemPrompt = `You are an analyst summarizing a person's communication character from their recent public posts and comments.
Write 2-4 sentences covering: tone, openness, how they engage with others, and notable communication habits.
Base the summary ONLY on the provided history. Do not speculate beyond it.`

// renderHistory flattens author items into the prompt body, newest first.
func renderHistory(items []provider.AuthorItem) string {
	if len(items) == 0 {
		return "(no recent public activity)"
	}

	var b strings.Builder
	b.WriteString("Recent public activity:\n\n")
	for _, item := range items {
		b.WriteString("- [")
		b.WriteString(item.Kind)
		b.WriteString("] ")
		if item.Title != "" {
			b.WriteString(item.Title)
			b.WriteString(": ")
		}
		body := item.Body
		if len(body) > 600 {
			body = body[:600] + "..."
		}
		b.WriteString(body)
		b.WriteString("\n")
	}
	return b.String()
}
