package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raphaelgruber/leadscout/internal/ratelimit"
)

// RedditReader reads the public JSON listing endpoints of a Reddit-style
// provider. Every request acquires a gate permit and feeds the response
// status back for cooldown handling.
type RedditReader struct {
	providerID string
	baseURL    string
	userAgent  string
	client     *http.Client
	gate       *ratelimit.Gate
}

// Compile-time check that RedditReader implements Reader.
var _ Reader = (*RedditReader)(nil)

// NewRedditReader creates a reader for the given base URL.
func NewRedditReader(providerID, baseURL, userAgent string, timeout time.Duration, gate *ratelimit.Gate) *RedditReader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RedditReader{
		providerID: providerID,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  userAgent,
		client:     &http.Client{Timeout: timeout},
		gate:       gate,
	}
}

// listingEnvelope is the provider's generic listing wrapper.
type listingEnvelope struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string `json:"kind"`
			Data struct {
				ID             string  `json:"id"`
				Author         string  `json:"author"`
				AuthorFullname string  `json:"author_fullname"`
				Title          string  `json:"title"`
				SelfText       string  `json:"selftext"`
				Body           string  `json:"body"`
				Permalink      string  `json:"permalink"`
				Score          int     `json:"score"`
				CreatedUTC     float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// ListRecentPosts lists posts in a location. With a query it uses the
// restricted search endpoint, otherwise the sorted listing.
func (r *RedditReader) ListRecentPosts(ctx context.Context, req ListRequest) (*Listing, error) {
	endpoint := r.listURL(req)

	var env listingEnvelope
	if err := r.getJSON(ctx, endpoint, &env); err != nil {
		return nil, err
	}

	listing := &Listing{NextCursor: env.Data.After}
	for _, child := range env.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		d := child.Data
		listing.Posts = append(listing.Posts, Post{
			ExternalID: d.ID,
			Author:     d.Author,
			AuthorID:   d.AuthorFullname,
			Title:      d.Title,
			Body:       normalizeBody(d.SelfText),
			URL:        r.baseURL + d.Permalink,
			Score:      d.Score,
			PostedAt:   time.Unix(int64(d.CreatedUTC), 0).UTC(),
		})
	}
	return listing, nil
}

// FetchAuthorItems fetches an author's recent posts and comments.
func (r *RedditReader) FetchAuthorItems(ctx context.Context, accountID string, limit int) ([]AuthorItem, error) {
	if limit <= 0 {
		limit = 25
	}
	endpoint := fmt.Sprintf("%s/user/%s.json?limit=%d", r.baseURL, url.PathEscape(accountID), limit)

	var env listingEnvelope
	if err := r.getJSON(ctx, endpoint, &env); err != nil {
		return nil, err
	}

	items := make([]AuthorItem, 0, len(env.Data.Children))
	for _, child := range env.Data.Children {
		d := child.Data
		item := AuthorItem{
			PostedAt: time.Unix(int64(d.CreatedUTC), 0).UTC(),
		}
		switch child.Kind {
		case "t3":
			item.Kind = "post"
			item.Title = d.Title
			item.Body = normalizeBody(d.SelfText)
		case "t1":
			item.Kind = "comment"
			item.Body = normalizeBody(d.Body)
		default:
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// SearchURL renders the human-facing URL for a listing request.
func (r *RedditReader) SearchURL(req ListRequest) string {
	if req.Query != "" {
		return fmt.Sprintf("%s/r/%s/search?q=%s&restrict_sr=on&sort=%s&t=%s",
			r.baseURL, url.PathEscape(req.Location), url.QueryEscape(req.Query),
			url.QueryEscape(req.SortBy), url.QueryEscape(req.TimeFilter))
	}
	return fmt.Sprintf("%s/r/%s/%s?t=%s",
		r.baseURL, url.PathEscape(req.Location), url.PathEscape(req.SortBy),
		url.QueryEscape(req.TimeFilter))
}

func (r *RedditReader) listURL(req ListRequest) string {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("raw_json", "1")
	if req.TimeFilter != "" {
		q.Set("t", req.TimeFilter)
	}
	if req.Cursor != "" {
		q.Set("after", req.Cursor)
	}

	if req.Query != "" {
		q.Set("q", req.Query)
		q.Set("restrict_sr", "on")
		if req.SortBy != "" {
			q.Set("sort", req.SortBy)
		}
		return fmt.Sprintf("%s/r/%s/search.json?%s", r.baseURL, url.PathEscape(req.Location), q.Encode())
	}

	sort := req.SortBy
	if sort == "" {
		sort = "new"
	}
	return fmt.Sprintf("%s/r/%s/%s.json?%s", r.baseURL, url.PathEscape(req.Location), url.PathEscape(sort), q.Encode())
}

// getJSON performs one gated GET and decodes the response.
func (r *RedditReader) getJSON(ctx context.Context, endpoint string, out any) error {
	permit, err := r.gate.Acquire(ctx, r.providerID)
	if err != nil {
		return fmt.Errorf("acquire permit: %w", err)
	}
	defer permit.Release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	r.gate.OnResponse(r.providerID, resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrGone, endpoint)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// normalizeBody maps upstream removal markers to an empty body so the
// pipeline treats removed content as signal-free.
func normalizeBody(s string) string {
	switch strings.TrimSpace(s) {
	case "[removed]", "[deleted]":
		return ""
	default:
		return s
	}
}
