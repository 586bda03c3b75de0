// Package scout orchestrates watch runs: listing provider content, ingesting
// new posts, analyzing them, and promoting qualified ones to leads.
package scout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/leadscout/internal/analysis"
	"github.com/raphaelgruber/leadscout/internal/db"
	"github.com/raphaelgruber/leadscout/internal/llm"
	"github.com/raphaelgruber/leadscout/internal/models"
	"github.com/raphaelgruber/leadscout/internal/provider"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress means another run for the same watch is still running.
var ErrRunInProgress = errors.New("a run for this watch is already in progress")

// Store is the persistence surface the service needs. *db.Client satisfies it.
type Store interface {
	GetWatch(ctx context.Context, watchID string) (*models.ScoutWatch, error)
	StartRun(ctx context.Context, watchID string, searchURL *string) (*models.ScoutWatchRun, error)
	SealRun(ctx context.Context, runID string, status models.RunStatus, counters db.RunCounters, errorMessage *string) error
	SealWatchAggregates(ctx context.Context, watchID string, postsNew int, ranAt time.Time) error
	InsertPost(ctx context.Context, watchID, runID string, input db.PostInput) (*models.ScoutWatchPost, error)
	GetPost(ctx context.Context, postID string) (*models.ScoutWatchPost, error)
	MarkPostAnalyzing(ctx context.Context, postID string) error
	SavePostAnalysis(ctx context.Context, postID string, outcome *models.AnalysisOutcome) error
	MarkPostAnalysisFailed(ctx context.Context, postID, errMsg string) error
	PromotePost(ctx context.Context, postID, providerID, sourceLocation string, recommendation models.Recommendation, confidence float64) (string, bool, error)
}

// Ledger enqueues durable follow-up jobs.
type Ledger interface {
	EnqueueJob(ctx context.Context, queue, jobType string, payload map[string]any, dedupeKey string, maxAttempts int) (*models.Job, bool, error)
}

// ContextProvider supplies cached author context summaries.
type ContextProvider interface {
	GetOrRefresh(ctx context.Context, providerID, accountExternalID string) (*models.UserContextSummary, error)
}

// Analyzer evaluates one post.
type Analyzer interface {
	Analyze(ctx context.Context, post analysis.PostContent, authorCtx *models.UserContextSummary) (*models.AnalysisOutcome, error)
}

// Event is a pipeline progress notification, published to subscribed
// operator clients.
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

// Event types published during a run.
const (
	EventRunStarted   = "run_started"
	EventPostNew      = "post_new"
	EventPostAnalyzed = "post_analyzed"
	EventLeadCreated  = "lead_created"
	EventRunSealed    = "run_sealed"
)

// Service executes watch runs.
type Service struct {
	store       Store
	reader      provider.Reader
	contexts    ContextProvider
	analyzer    Analyzer
	concurrency int
	events      func(Event)
	now         func() time.Time

	ledger     Ledger
	retryQueue string
}

// NewService creates a run service. concurrency bounds how many posts of one
// run are analyzed in parallel. events may be nil.
func NewService(store Store, reader provider.Reader, contexts ContextProvider, analyzer Analyzer, concurrency int, events func(Event)) *Service {
	if concurrency <= 0 {
		concurrency = 3
	}
	if events == nil {
		events = func(Event) {}
	}
	return &Service{
		store:       store,
		reader:      reader,
		contexts:    contexts,
		analyzer:    analyzer,
		concurrency: concurrency,
		events:      events,
		now:         time.Now,
	}
}

// UseLedger makes failed post analyses durable: instead of being lost with
// the run, each one is re-enqueued as an analyze_post job on the given queue.
func (s *Service) UseLedger(ledger Ledger, queue string) {
	s.ledger = ledger
	s.retryQueue = queue
}

func (s *Service) publish(e Event) {
	e.Timestamp = s.now().UTC().Format(time.RFC3339)
	s.events(e)
}

// runCounters accumulates per-run progress under a lock; the analysis phase
// updates it from multiple goroutines.
type runCounters struct {
	mu sync.Mutex
	db.RunCounters
}

func (c *runCounters) snapshot() db.RunCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.RunCounters
}

// ExecuteRun performs one full scan-and-analyze cycle for a watch. A failure
// during listing seals the run as failed; already-ingested posts are kept.
// Starting while another run for the watch is running returns
// ErrRunInProgress.
func (s *Service) ExecuteRun(ctx context.Context, watchID string) (*models.ScoutWatchRun, error) {
	watch, err := s.store.GetWatch(ctx, watchID)
	if err != nil {
		return nil, fmt.Errorf("load watch: %w", err)
	}

	req := listRequest(watch)
	searchURL := s.reader.SearchURL(req)

	run, err := s.store.StartRun(ctx, watchID, &searchURL)
	if err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			return nil, ErrRunInProgress
		}
		return nil, fmt.Errorf("start run: %w", err)
	}
	runID := models.MustRecordIDString(run.ID)

	log := slog.With("watch", watchID, "run", runID, "location", watch.SourceLocation)
	log.Info("run started")
	s.publish(Event{Type: EventRunStarted, WatchID: watchID, RunID: runID})

	counters := &runCounters{}

	listing, err := s.reader.ListRecentPosts(ctx, req)
	if err != nil {
		log.Error("listing failed", "error", err)
		s.seal(ctx, watch, runID, models.RunFailed, counters.snapshot(), err)
		return nil, fmt.Errorf("list posts: %w", err)
	}

	var fresh []*models.ScoutWatchPost
	for _, p := range listing.Posts {
		counters.PostsFetched++
		inserted, err := s.store.InsertPost(ctx, watchID, runID, db.PostInput{
			ExternalPostID: p.ExternalID,
			Author:         p.Author,
			AuthorID:       p.AuthorID,
			Title:          p.Title,
			Body:           p.Body,
			URL:            p.URL,
		})
		if err != nil {
			if errors.Is(err, db.ErrAlreadyExists) {
				continue
			}
			log.Error("ingestion failed", "external_post", p.ExternalID, "error", err)
			s.seal(ctx, watch, runID, models.RunFailed, counters.snapshot(), err)
			return nil, fmt.Errorf("ingest post %s: %w", p.ExternalID, err)
		}
		counters.PostsNew++
		fresh = append(fresh, inserted)
		s.publish(Event{Type: EventPostNew, WatchID: watchID, RunID: runID, PostID: models.MustRecordIDString(inserted.ID)})
	}

	if watch.AutoAnalyze {
		s.analyzeBatch(ctx, watch, runID, fresh, counters)
	}

	s.seal(ctx, watch, runID, models.RunCompleted, counters.snapshot(), nil)
	log.Info("run completed",
		"fetched", counters.PostsFetched, "new", counters.PostsNew,
		"analyzed", counters.PostsAnalyzed, "leads", counters.LeadsCreated)

	return s.runSummary(run, models.RunCompleted, counters.snapshot()), nil
}

// analyzeBatch analyzes the run's new posts with bounded parallelism. A
// failing post never aborts its siblings.
func (s *Service) analyzeBatch(ctx context.Context, watch *models.ScoutWatch, runID string, posts []*models.ScoutWatchPost, counters *runCounters) {
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	watchID := models.MustRecordIDString(watch.ID)
	for _, post := range posts {
		if !post.HasBody() {
			continue
		}
		g.Go(func() error {
			outcome, promoted, leadID, err := s.analyzePost(ctx, watch, post)
			if err != nil {
				slog.Warn("post analysis failed", "post", models.MustRecordIDString(post.ID), "error", err)
				s.enqueueAnalysisRetry(ctx, models.MustRecordIDString(post.ID), err)
				return nil
			}

			counters.mu.Lock()
			counters.PostsAnalyzed++
			if promoted {
				counters.LeadsCreated++
			}
			counters.mu.Unlock()

			postID := models.MustRecordIDString(post.ID)
			s.publish(Event{Type: EventPostAnalyzed, WatchID: watchID, RunID: runID, PostID: postID,
				Message: string(outcome.Recommendation)})
			if promoted {
				s.publish(Event{Type: EventLeadCreated, WatchID: watchID, RunID: runID, PostID: postID, LeadID: leadID})
			}
			return nil
		})
	}
	g.Wait()
}

// enqueueAnalysisRetry hands a failed analysis to the job ledger. The dedupe
// key keeps at most one pending retry per post. Fatal API errors are not
// retried; re-running them burns quota for the same failure.
func (s *Service) enqueueAnalysisRetry(ctx context.Context, postID string, cause error) {
	if s.ledger == nil || errors.Is(cause, llm.ErrFatalAPI) {
		return
	}
	_, created, err := s.ledger.EnqueueJob(ctx, s.retryQueue, models.JobTypeAnalyzePost,
		map[string]any{"post_id": postID},
		fmt.Sprintf("analyze_post:%s", postID), 3)
	if err != nil {
		slog.Error("failed to enqueue analysis retry", "post", postID, "error", err)
		return
	}
	if created {
		slog.Info("analysis retry enqueued", "post", postID)
	}
}

// analyzePost runs the full per-post pipeline: context lookup, dimension
// analysis, persistence, and the promotion gate.
func (s *Service) analyzePost(ctx context.Context, watch *models.ScoutWatch, post *models.ScoutWatchPost) (*models.AnalysisOutcome, bool, string, error) {
	postID := models.MustRecordIDString(post.ID)

	if err := s.store.MarkPostAnalyzing(ctx, postID); err != nil {
		return nil, false, "", err
	}

	// Author context is best-effort; analysis proceeds without it.
	var authorCtx *models.UserContextSummary
	if post.AuthorID != "" && post.Author != "" {
		var err error
		authorCtx, err = s.contexts.GetOrRefresh(ctx, watch.ProviderID, post.Author)
		if err != nil {
			slog.Warn("author context unavailable", "author", post.Author, "error", err)
		}
	}

	content := analysis.PostContent{
		Title:    post.Title,
		Body:     post.Body,
		Author:   post.Author,
		Location: watch.SourceLocation,
	}
	if watch.SearchQuery != nil {
		content.TargetProfile = *watch.SearchQuery
	}

	outcome, err := s.analyzer.Analyze(ctx, content, authorCtx)
	if err != nil {
		if markErr := s.store.MarkPostAnalysisFailed(ctx, postID, err.Error()); markErr != nil {
			slog.Error("failed to record analysis failure", "post", postID, "error", markErr)
		}
		return nil, false, "", err
	}

	if err := s.store.SavePostAnalysis(ctx, postID, outcome); err != nil {
		return nil, false, "", err
	}

	if !s.shouldPromote(watch, outcome) {
		return outcome, false, "", nil
	}

	leadID, created, err := s.store.PromotePost(ctx, postID, watch.ProviderID, watch.SourceLocation, outcome.Recommendation, outcome.Confidence)
	if err != nil {
		slog.Error("promotion failed", "post", postID, "error", err)
		return outcome, false, "", nil
	}
	return outcome, created, leadID, nil
}

// shouldPromote is the confidence gate: only suitable verdicts at or above
// the watch threshold become leads automatically.
func (s *Service) shouldPromote(watch *models.ScoutWatch, outcome *models.AnalysisOutcome) bool {
	return watch.AutoAnalyze &&
		outcome.Recommendation == models.RecommendSuitable &&
		outcome.Confidence >= watch.MinConfidence
}

// ReanalyzePost re-runs analysis for one post, regardless of its previous
// status. The promotion gate applies the same as during a run.
func (s *Service) ReanalyzePost(ctx context.Context, postID string) (*models.AnalysisOutcome, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load post: %w", err)
	}
	if !post.HasBody() {
		return nil, fmt.Errorf("post %s has no analyzable body", postID)
	}

	watch, err := s.store.GetWatch(ctx, models.MustRecordIDString(post.Watch))
	if err != nil {
		return nil, fmt.Errorf("load watch: %w", err)
	}

	outcome, _, _, err := s.analyzePost(ctx, watch, post)
	return outcome, err
}

// PromoteManually promotes an analyzed post to a lead, bypassing the
// confidence gate. Promotion stays idempotent.
func (s *Service) PromoteManually(ctx context.Context, postID string) (string, bool, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return "", false, fmt.Errorf("load post: %w", err)
	}
	if post.AnalysisStatus != models.AnalysisAnalyzed {
		return "", false, fmt.Errorf("post %s is not analyzed (status %s)", postID, post.AnalysisStatus)
	}

	watch, err := s.store.GetWatch(ctx, models.MustRecordIDString(post.Watch))
	if err != nil {
		return "", false, fmt.Errorf("load watch: %w", err)
	}

	recommendation := models.RecommendNeedsReview
	if post.AnalysisRecommendation != nil {
		recommendation = *post.AnalysisRecommendation
	}
	confidence := 0.0
	if post.AnalysisConfidence != nil {
		confidence = *post.AnalysisConfidence
	}

	return s.store.PromotePost(ctx, postID, watch.ProviderID, watch.SourceLocation, recommendation, confidence)
}

func (s *Service) seal(ctx context.Context, watch *models.ScoutWatch, runID string, status models.RunStatus, counters db.RunCounters, cause error) {
	var errMsg *string
	if cause != nil {
		msg := cause.Error()
		errMsg = &msg
	}
	if err := s.store.SealRun(ctx, runID, status, counters, errMsg); err != nil {
		slog.Error("failed to seal run", "run", runID, "error", err)
	}

	watchID := models.MustRecordIDString(watch.ID)
	if err := s.store.SealWatchAggregates(ctx, watchID, counters.PostsNew, s.now()); err != nil {
		slog.Error("failed to seal watch aggregates", "watch", watchID, "error", err)
	}

	s.publish(Event{Type: EventRunSealed, WatchID: watchID, RunID: runID, Message: string(status),
		Fetched: counters.PostsFetched, New: counters.PostsNew,
		Analyzed: counters.PostsAnalyzed, Leads: counters.LeadsCreated})
}

func (s *Service) runSummary(run *models.ScoutWatchRun, status models.RunStatus, counters db.RunCounters) *models.ScoutWatchRun {
	sealed := *run
	sealed.Status = status
	now := s.now()
	sealed.CompletedAt = &now
	sealed.PostsFetched = counters.PostsFetched
	sealed.PostsNew = counters.PostsNew
	sealed.PostsAnalyzed = counters.PostsAnalyzed
	sealed.LeadsCreated = counters.LeadsCreated
	return &sealed
}

func listRequest(watch *models.ScoutWatch) provider.ListRequest {
	req := provider.ListRequest{
		Location:   watch.SourceLocation,
		SortBy:     watch.SortBy,
		TimeFilter: watch.TimeFilter,
	}
	if watch.SearchQuery != nil {
		req.Query = *watch.SearchQuery
	}
	return req
}
