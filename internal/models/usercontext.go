package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// UserContextSummary is a cached per-author summary used by the analysis
// agents. Regenerated when expired or absent, read-shared across concurrent
// analyses of the same author.
type UserContextSummary struct {
	ID                surrealmodels.RecordID `json:"id"`
	AccountExternalID string                 `json:"account_external_id"`
	ProviderID        string                 `json:"provider_id"`
	InterestsSummary  string                 `json:"interests_summary"`
	CharacterSummary  string                 `json:"character_summary"`
	GeneratedAt       time.Time              `json:"generated_at"`
	ExpiresAt         time.Time              `json:"expires_at"`
}

// Expired reports whether the summary is past its TTL.
func (s *UserContextSummary) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// RemoteStatus mirrors the provider-side state of an external account.
// Updated opportunistically from provider observations; never causes local
// deletion of anything.
type RemoteStatus string

const (
	RemoteActive    RemoteStatus = "active"
	RemoteDeleted   RemoteStatus = "deleted"
	RemoteSuspended RemoteStatus = "suspended"
	RemoteUnknown   RemoteStatus = "unknown"
)

// ExternalAccount tracks the last observed provider-side state of an author.
type ExternalAccount struct {
	ID           surrealmodels.RecordID `json:"id"`
	ProviderID   string                 `json:"provider_id"`
	ExternalID   string                 `json:"external_id"`
	Username     string                 `json:"username"`
	RemoteStatus RemoteStatus           `json:"remote_status"`
	ObservedAt   time.Time              `json:"observed_at"`
}
