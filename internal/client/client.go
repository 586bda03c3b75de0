// Package client provides an HTTP client for the leadscout daemon API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client talks to the scoutd operator API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. If baseURL is empty, uses LEADSCOUT_SERVER_URL env
// var or defaults to localhost:8474. Timeout can be configured via
// LEADSCOUT_CLIENT_TIMEOUT (default 2m; re-analysis waits on LLM calls).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("LEADSCOUT_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8474"
	}

	timeout := 2 * time.Minute
	if t := os.Getenv("LEADSCOUT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiError is the server's error body.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// TYPES (matching the API's JSON)
// =============================================================================

// Watch is a scouting watch configuration.
type Watch struct {
	ID                string     `json:"id"`
	ProviderID        string     `json:"provider_id"`
	SourceLocation    string     `json:"source_location"`
	SearchQuery       *string    `json:"search_query,omitempty"`
	SortBy            string     `json:"sort_by"`
	TimeFilter        string     `json:"time_filter"`
	IsActive          bool       `json:"is_active"`
	AutoAnalyze       bool       `json:"auto_analyze"`
	MinConfidence     float64    `json:"min_confidence"`
	ScanEvery         int64      `json:"scan_every"`
	TotalPostsSeen    int        `json:"total_posts_seen"`
	TotalLeadsCreated int        `json:"total_leads_created"`
	LastRunAt         *time.Time `json:"last_run_at,omitempty"`
	LastMatchAt       *time.Time `json:"last_match_at,omitempty"`
}

// WatchInput is the creation payload for a watch.
type WatchInput struct {
	ProviderID     string  `json:"provider_id"`
	SourceLocation string  `json:"source_location"`
	SearchQuery    *string `json:"search_query,omitempty"`
	SortBy         string  `json:"sort_by,omitempty"`
	TimeFilter     string  `json:"time_filter,omitempty"`
	IsActive       *bool   `json:"is_active,omitempty"`
	AutoAnalyze    *bool   `json:"auto_analyze,omitempty"`
	MinConfidence  float64 `json:"min_confidence"`
	ScanEvery      string  `json:"scan_every"`
}

// Run is one scan-and-analyze cycle.
type Run struct {
	ID            string     `json:"id"`
	Watch         string     `json:"watch"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	PostsFetched  int        `json:"posts_fetched"`
	PostsNew      int        `json:"posts_new"`
	PostsAnalyzed int        `json:"posts_analyzed"`
	LeadsCreated  int        `json:"leads_created"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	SearchURL     *string    `json:"search_url,omitempty"`
}

// Post is one discovered content item with its analysis state.
type Post struct {
	ID                     string         `json:"id"`
	ExternalPostID         string         `json:"external_post_id"`
	Author                 string         `json:"author"`
	Title                  string         `json:"title"`
	URL                    string         `json:"url"`
	AnalysisStatus         string         `json:"analysis_status"`
	AnalysisRecommendation *string        `json:"analysis_recommendation,omitempty"`
	AnalysisConfidence     *float64       `json:"analysis_confidence,omitempty"`
	AnalysisDimensions     map[string]any `json:"analysis_dimensions,omitempty"`
	AnalysisError          *string        `json:"analysis_error,omitempty"`
	Lead                   *string        `json:"lead,omitempty"`
	FirstSeenAt            time.Time      `json:"first_seen_at"`
}

// Lead is a promoted post.
type Lead struct {
	ID                     string    `json:"id"`
	ProviderID             string    `json:"provider_id"`
	SourceLocation         string    `json:"source_location"`
	ExternalPostID         string    `json:"external_post_id"`
	Author                 string    `json:"author"`
	Title                  string    `json:"title"`
	URL                    string    `json:"url"`
	Status                 string    `json:"status"`
	AnalysisRecommendation string    `json:"analysis_recommendation"`
	AnalysisConfidence     float64   `json:"analysis_confidence"`
	CreatedAt              time.Time `json:"created_at"`
}

// Job is one ledger entry.
type Job struct {
	ID          string     `json:"id"`
	QueueName   string     `json:"queue_name"`
	JobType     string     `json:"job_type"`
	DedupeKey   string     `json:"dedupe_key"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TriggerResult is the response to a manual run trigger.
type TriggerResult struct {
	JobID   string `json:"job_id"`
	Created bool   `json:"created"`
}

// PromoteResult is the response to a manual promotion.
type PromoteResult struct {
	LeadID  string `json:"lead_id"`
	Created bool   `json:"created"`
}

// AnalysisOutcome is the synthesized verdict for a post.
type AnalysisOutcome struct {
	Recommendation    string   `json:"recommendation"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	Strengths         []string `json:"strengths,omitempty"`
	Concerns          []string `json:"concerns,omitempty"`
	SuggestedApproach string   `json:"suggested_approach,omitempty"`
	FailedDimensions  int      `json:"failed_dimensions"`
}

// Event is one pipeline progress notification from the event stream.
type Event struct {
	Type      string  `json:"type"`
	WatchID   string  `json:"watch_id,omitempty"`
	RunID     string  `json:"run_id,omitempty"`
	PostID    string  `json:"post_id,omitempty"`
	LeadID    string  `json:"lead_id,omitempty"`
	Message   string  `json:"message,omitempty"`
	Fetched   int     `json:"fetched,omitempty"`
	New       int     `json:"new,omitempty"`
	Analyzed  int     `json:"analyzed,omitempty"`
	Leads     int     `json:"leads,omitempty"`
	Timestamp string  `json:"timestamp"`
	Progress  float64 `json:"progress,omitempty"`
}

// Stats is the daemon's runtime statistics snapshot.
type Stats struct {
	UptimeSeconds  float64          `json:"uptime_seconds"`
	ProviderList   *OperationStats  `json:"provider_list,omitempty"`
	ProviderAuthor *OperationStats  `json:"provider_author,omitempty"`
	LLMGenerate    *OperationStats  `json:"llm_generate,omitempty"`
	Dimension      *OperationStats  `json:"dimension,omitempty"`
	MetaAnalysis   *OperationStats  `json:"meta_analysis,omitempty"`
	Counters       map[string]int64 `json:"counters,omitempty"`
}

// OperationStats holds metrics for a single operation type.
type OperationStats struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Health checks daemon availability.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// GetStats returns the daemon's runtime statistics.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListWatches returns all watches.
func (c *Client) ListWatches(ctx context.Context) ([]Watch, error) {
	var watches []Watch
	if err := c.do(ctx, http.MethodGet, "/api/watches", nil, &watches); err != nil {
		return nil, err
	}
	return watches, nil
}

// CreateWatch creates a new watch.
func (c *Client) CreateWatch(ctx context.Context, input WatchInput) (*Watch, error) {
	var watch Watch
	if err := c.do(ctx, http.MethodPost, "/api/watches", input, &watch); err != nil {
		return nil, err
	}
	return &watch, nil
}

// GetWatch retrieves one watch.
func (c *Client) GetWatch(ctx context.Context, id string) (*Watch, error) {
	var watch Watch
	if err := c.do(ctx, http.MethodGet, "/api/watches/"+url.PathEscape(id), nil, &watch); err != nil {
		return nil, err
	}
	return &watch, nil
}

// SetWatchActive enables or disables a watch.
func (c *Client) SetWatchActive(ctx context.Context, id string, active bool) error {
	action := "disable"
	if active {
		action = "enable"
	}
	return c.do(ctx, http.MethodPost, "/api/watches/"+url.PathEscape(id)+"/"+action, nil, nil)
}

// TriggerRun enqueues a manual run for a watch.
func (c *Client) TriggerRun(ctx context.Context, watchID string) (*TriggerResult, error) {
	var result TriggerResult
	if err := c.do(ctx, http.MethodPost, "/api/watches/"+url.PathEscape(watchID)+"/trigger", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RefreshContext enqueues a manual author-context refresh.
func (c *Client) RefreshContext(ctx context.Context, providerID, accountID string) (*TriggerResult, error) {
	body := map[string]string{"provider_id": providerID, "account_id": accountID}
	var result TriggerResult
	if err := c.do(ctx, http.MethodPost, "/api/contexts/refresh", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRuns returns recent runs for a watch.
func (c *Client) ListRuns(ctx context.Context, watchID string, limit int) ([]Run, error) {
	path := "/api/watches/" + url.PathEscape(watchID) + "/runs"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var runs []Run
	if err := c.do(ctx, http.MethodGet, path, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun retrieves one run.
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRunPosts returns the posts first seen by a run.
func (c *Client) ListRunPosts(ctx context.Context, runID string) ([]Post, error) {
	var posts []Post
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(runID)+"/posts", nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// GetPost retrieves one post.
func (c *Client) GetPost(ctx context.Context, id string) (*Post, error) {
	var post Post
	if err := c.do(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(id), nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// ReanalyzePost re-runs analysis for a post and returns the new outcome.
func (c *Client) ReanalyzePost(ctx context.Context, id string) (*AnalysisOutcome, error) {
	var outcome AnalysisOutcome
	if err := c.do(ctx, http.MethodPost, "/api/posts/"+url.PathEscape(id)+"/reanalyze", nil, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// PromotePost manually promotes an analyzed post to a lead.
func (c *Client) PromotePost(ctx context.Context, id string) (*PromoteResult, error) {
	var result PromoteResult
	if err := c.do(ctx, http.MethodPost, "/api/posts/"+url.PathEscape(id)+"/promote", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListLeads returns recent leads.
func (c *Client) ListLeads(ctx context.Context, limit int) ([]Lead, error) {
	path := "/api/leads"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var leads []Lead
	if err := c.do(ctx, http.MethodGet, path, nil, &leads); err != nil {
		return nil, err
	}
	return leads, nil
}

// ListJobs returns recent ledger jobs.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	path := "/api/jobs"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var jobs []Job
	if err := c.do(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// SubscribeEvents opens the websocket event stream. The returned channel is
// closed when the connection drops or ctx is cancelled.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan Event, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/api/events"

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer conn.Close()
		for {
			var event Event
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return events, nil
}
