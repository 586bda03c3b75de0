// Package provider defines the normalized read adapter for the external
// content source. All implementations route every request through the rate
// gate; no other component talks to the provider directly.
package provider

import (
	"context"
	"errors"
	"time"
)

// Post is one normalized content item from a listing.
type Post struct {
	ExternalID string
	Author     string
	AuthorID   string
	Title      string
	Body       string
	URL        string
	Score      int
	PostedAt   time.Time
}

// AuthorItem is one recent public item from an author's history, used for
// context summarization.
type AuthorItem struct {
	Kind     string // "post" or "comment"
	Title    string
	Body     string
	PostedAt time.Time
}

// ListRequest describes a listing query against a source location.
type ListRequest struct {
	Location   string
	Query      string
	SortBy     string
	TimeFilter string
	Cursor     string
	Limit      int
}

// Listing is one page of results plus the continuation cursor.
type Listing struct {
	Posts      []Post
	NextCursor string
}

// Reader is the read surface of a content provider.
type Reader interface {
	// ListRecentPosts lists posts in a location matching the request.
	ListRecentPosts(ctx context.Context, req ListRequest) (*Listing, error)
	// FetchAuthorItems fetches an author's recent public items.
	FetchAuthorItems(ctx context.Context, accountID string, limit int) ([]AuthorItem, error)
	// SearchURL renders the human-facing URL for a listing request, stored
	// on run records for operators.
	SearchURL(req ListRequest) string
}

// ErrGone indicates the requested resource no longer exists upstream
// (deleted post, removed or suspended account). Permanent; never retried.
var ErrGone = errors.New("resource gone")

// StatusError carries a non-2xx provider response status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "provider status " + itoa(e.Code) + ": " + e.Body
}

// Retryable reports whether a provider error is transient. Gone resources
// are permanent; everything else (timeouts, 429, 5xx, network errors) is
// worth retrying with backoff.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrGone) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		// 4xx other than 429 won't get better on retry.
		return se.Code == 429 || se.Code >= 500
	}
	return true
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
