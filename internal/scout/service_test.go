package scout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/leadscout/internal/analysis"
	"github.com/raphaelgruber/leadscout/internal/db"
	"github.com/raphaelgruber/leadscout/internal/llm"
	"github.com/raphaelgruber/leadscout/internal/models"
	"github.com/raphaelgruber/leadscout/internal/provider"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

type sealedRun struct {
	status   models.RunStatus
	counters db.RunCounters
	errMsg   *string
}

// memStore is an in-memory Store with the same dedup and idempotency
// behavior as the real one.
type memStore struct {
	mu          sync.Mutex
	watch       *models.ScoutWatch
	nextPost    int
	posts       map[string]*models.ScoutWatchPost // by post id
	seen        map[string]bool                   // watch + external id
	runOpen     bool
	sealed      []sealedRun
	promoted    map[string]string // post id -> lead id
	nextLead    int
	aggregates  []int // postsNew per seal
	analyzedIDs []string
}

func newMemStore(watch *models.ScoutWatch) *memStore {
	return &memStore{
		watch:    watch,
		posts:    make(map[string]*models.ScoutWatchPost),
		seen:     make(map[string]bool),
		promoted: make(map[string]string),
	}
}

func (m *memStore) GetWatch(ctx context.Context, watchID string) (*models.ScoutWatch, error) {
	return m.watch, nil
}

func (m *memStore) StartRun(ctx context.Context, watchID string, searchURL *string) (*models.ScoutWatchRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runOpen {
		return nil, db.ErrAlreadyExists
	}
	m.runOpen = true
	return &models.ScoutWatchRun{
		ID:        surrealmodels.RecordID{Table: "scout_watch_run", ID: "r1"},
		Watch:     m.watch.ID,
		Status:    models.RunRunning,
		StartedAt: time.Now(),
		SearchURL: searchURL,
	}, nil
}

func (m *memStore) SealRun(ctx context.Context, runID string, status models.RunStatus, counters db.RunCounters, errorMessage *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runOpen = false
	m.sealed = append(m.sealed, sealedRun{status, counters, errorMessage})
	return nil
}

func (m *memStore) SealWatchAggregates(ctx context.Context, watchID string, postsNew int, ranAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregates = append(m.aggregates, postsNew)
	return nil
}

func (m *memStore) InsertPost(ctx context.Context, watchID, runID string, input db.PostInput) (*models.ScoutWatchPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := watchID + ":" + input.ExternalPostID
	if m.seen[key] {
		return nil, db.ErrAlreadyExists
	}
	m.seen[key] = true
	m.nextPost++
	id := fmt.Sprintf("p%d", m.nextPost)
	post := &models.ScoutWatchPost{
		ID:             surrealmodels.RecordID{Table: "scout_watch_post", ID: id},
		Watch:          m.watch.ID,
		ExternalPostID: input.ExternalPostID,
		Author:         input.Author,
		AuthorID:       input.AuthorID,
		Title:          input.Title,
		Body:           input.Body,
		URL:            input.URL,
		AnalysisStatus: models.AnalysisPending,
	}
	m.posts[id] = post
	return post, nil
}

func (m *memStore) GetPost(ctx context.Context, postID string) (*models.ScoutWatchPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[postID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return post, nil
}

func (m *memStore) MarkPostAnalyzing(ctx context.Context, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[postID].AnalysisStatus = models.AnalysisAnalyzing
	return nil
}

func (m *memStore) SavePostAnalysis(ctx context.Context, postID string, outcome *models.AnalysisOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	post := m.posts[postID]
	post.AnalysisStatus = models.AnalysisAnalyzed
	rec := outcome.Recommendation
	post.AnalysisRecommendation = &rec
	conf := outcome.Confidence
	post.AnalysisConfidence = &conf
	m.analyzedIDs = append(m.analyzedIDs, postID)
	return nil
}

func (m *memStore) MarkPostAnalysisFailed(ctx context.Context, postID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	post := m.posts[postID]
	post.AnalysisStatus = models.AnalysisFailed
	post.AnalysisError = &errMsg
	return nil
}

func (m *memStore) PromotePost(ctx context.Context, postID, providerID, sourceLocation string, recommendation models.Recommendation, confidence float64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if leadID, ok := m.promoted[postID]; ok {
		return leadID, false, nil
	}
	m.nextLead++
	leadID := fmt.Sprintf("l%d", m.nextLead)
	m.promoted[postID] = leadID
	leadRef := surrealmodels.RecordID{Table: "lead", ID: leadID}
	m.posts[postID].Lead = &leadRef
	return leadID, true, nil
}

type stubReader struct {
	posts   []provider.Post
	listErr error
}

func (r *stubReader) ListRecentPosts(ctx context.Context, req provider.ListRequest) (*provider.Listing, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return &provider.Listing{Posts: r.posts}, nil
}

func (r *stubReader) FetchAuthorItems(ctx context.Context, accountID string, limit int) ([]provider.AuthorItem, error) {
	return nil, nil
}

func (r *stubReader) SearchURL(req provider.ListRequest) string {
	return "https://example.com/r/" + req.Location
}

type stubContexts struct{}

func (stubContexts) GetOrRefresh(ctx context.Context, providerID, accountExternalID string) (*models.UserContextSummary, error) {
	return &models.UserContextSummary{InterestsSummary: "stub"}, nil
}

// stubAnalyzer returns a fixed verdict, or per-title overrides.
type stubAnalyzer struct {
	mu          sync.Mutex
	calls       int
	outcome     models.AnalysisOutcome
	perTitle    map[string]models.AnalysisOutcome
	failTitles  map[string]bool
	fatalTitles map[string]bool
}

func (a *stubAnalyzer) Analyze(ctx context.Context, post analysis.PostContent, authorCtx *models.UserContextSummary) (*models.AnalysisOutcome, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.fatalTitles[post.Title] {
		return nil, fmt.Errorf("quota exceeded: %w", llm.ErrFatalAPI)
	}
	if a.failTitles[post.Title] {
		return nil, errors.New("analysis blew up")
	}
	if o, ok := a.perTitle[post.Title]; ok {
		out := o
		return &out, nil
	}
	out := a.outcome
	return &out, nil
}

func testWatch(autoAnalyze bool, minConfidence float64) *models.ScoutWatch {
	return &models.ScoutWatch{
		ID:             surrealmodels.RecordID{Table: "scout_watch", ID: "w1"},
		ProviderID:     "reddit",
		SourceLocation: "testsub",
		SortBy:         "new",
		TimeFilter:     "day",
		IsActive:       true,
		AutoAnalyze:    autoAnalyze,
		MinConfidence:  minConfidence,
		ScanEvery:      time.Hour,
	}
}

func suitable(confidence float64) models.AnalysisOutcome {
	return models.AnalysisOutcome{
		Recommendation: models.RecommendSuitable,
		Confidence:     confidence,
		Reasoning:      "fits",
	}
}

func TestExecuteRunFullCycle(t *testing.T) {
	store := newMemStore(testWatch(true, 0.7))
	reader := &stubReader{posts: []provider.Post{
		{ExternalID: "a", Author: "alice", AuthorID: "t2_a", Title: "one", Body: "body one"},
		{ExternalID: "b", Author: "bob", AuthorID: "t2_b", Title: "two", Body: "body two"},
		{ExternalID: "c", Author: "carol", AuthorID: "t2_c", Title: "three", Body: ""},
	}}
	analyzer := &stubAnalyzer{outcome: suitable(0.9)}
	svc := NewService(store, reader, stubContexts{}, analyzer, 2, nil)

	run, err := svc.ExecuteRun(context.Background(), "w1")
	if err != nil {
		t.Fatalf("ExecuteRun failed: %v", err)
	}

	if run.Status != models.RunCompleted {
		t.Errorf("status = %s, want completed", run.Status)
	}
	if run.PostsFetched != 3 || run.PostsNew != 3 {
		t.Errorf("fetched/new = %d/%d, want 3/3", run.PostsFetched, run.PostsNew)
	}
	// The empty-body post counts as new but is skipped from analysis.
	if run.PostsAnalyzed != 2 {
		t.Errorf("analyzed = %d, want 2", run.PostsAnalyzed)
	}
	if run.LeadsCreated != 2 {
		t.Errorf("leads = %d, want 2", run.LeadsCreated)
	}
	if len(store.sealed) != 1 || store.sealed[0].status != models.RunCompleted {
		t.Errorf("sealed = %+v, want one completed seal", store.sealed)
	}
	if len(store.aggregates) != 1 || store.aggregates[0] != 3 {
		t.Errorf("watch aggregates = %v, want [3]", store.aggregates)
	}
}

func TestExecuteRunDedupesAcrossRuns(t *testing.T) {
	store := newMemStore(testWatch(false, 0.7))
	reader := &stubReader{posts: []provider.Post{
		{ExternalID: "a", Title: "one", Body: "b"},
		{ExternalID: "b", Title: "two", Body: "b"},
	}}
	svc := NewService(store, reader, stubContexts{}, &stubAnalyzer{}, 2, nil)

	first, err := svc.ExecuteRun(context.Background(), "w1")
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.PostsNew != 2 {
		t.Errorf("first run new = %d, want 2", first.PostsNew)
	}

	reader.posts = append(reader.posts, provider.Post{ExternalID: "c", Title: "three", Body: "b"})
	second, err := svc.ExecuteRun(context.Background(), "w1")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.PostsFetched != 3 || second.PostsNew != 1 {
		t.Errorf("second run fetched/new = %d/%d, want 3/1", second.PostsFetched, second.PostsNew)
	}
}

func TestExecuteRunListingFailureSealsFailed(t *testing.T) {
	store := newMemStore(testWatch(true, 0.7))
	reader := &stubReader{listErr: &provider.StatusError{Code: 503, Body: "down"}}
	svc := NewService(store, reader, stubContexts{}, &stubAnalyzer{}, 2, nil)

	_, err := svc.ExecuteRun(context.Background(), "w1")
	if err == nil {
		t.Fatal("expected listing error")
	}
	if len(store.sealed) != 1 {
		t.Fatalf("sealed = %+v, want one entry", store.sealed)
	}
	if store.sealed[0].status != models.RunFailed || store.sealed[0].errMsg == nil {
		t.Errorf("sealed = %+v, want failed with error message", store.sealed[0])
	}
	// The lock is released so a later run can start.
	if store.runOpen {
		t.Error("failed run must release the run lock")
	}
}

func TestExecuteRunLockRejectsConcurrentRun(t *testing.T) {
	store := newMemStore(testWatch(false, 0.7))
	store.runOpen = true
	svc := NewService(store, &stubReader{}, stubContexts{}, &stubAnalyzer{}, 2, nil)

	_, err := svc.ExecuteRun(context.Background(), "w1")
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
}

func TestPromotionGate(t *testing.T) {
	tests := []struct {
		name       string
		auto       bool
		confidence float64
		rec        models.Recommendation
		promoted   bool
	}{
		{"suitable above threshold", true, 0.9, models.RecommendSuitable, true},
		{"exactly at threshold", true, 0.7, models.RecommendSuitable, true},
		{"below threshold", true, 0.65, models.RecommendSuitable, false},
		{"needs review never promotes", true, 0.99, models.RecommendNeedsReview, false},
		{"not recommended never promotes", true, 0.99, models.RecommendNotRecommended, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(testWatch(tt.auto, 0.7))
			reader := &stubReader{posts: []provider.Post{{ExternalID: "a", Title: "one", Body: "b"}}}
			analyzer := &stubAnalyzer{outcome: models.AnalysisOutcome{Recommendation: tt.rec, Confidence: tt.confidence}}
			svc := NewService(store, reader, stubContexts{}, analyzer, 1, nil)

			run, err := svc.ExecuteRun(context.Background(), "w1")
			if err != nil {
				t.Fatalf("ExecuteRun failed: %v", err)
			}
			want := 0
			if tt.promoted {
				want = 1
			}
			if run.LeadsCreated != want {
				t.Errorf("leads = %d, want %d", run.LeadsCreated, want)
			}
		})
	}
}

func TestPromotionIsIdempotent(t *testing.T) {
	store := newMemStore(testWatch(true, 0.7))
	reader := &stubReader{posts: []provider.Post{{ExternalID: "a", Title: "one", Body: "b"}}}
	analyzer := &stubAnalyzer{outcome: suitable(0.71)}
	svc := NewService(store, reader, stubContexts{}, analyzer, 1, nil)

	run, err := svc.ExecuteRun(context.Background(), "w1")
	if err != nil {
		t.Fatalf("ExecuteRun failed: %v", err)
	}
	if run.LeadsCreated != 1 {
		t.Fatalf("leads = %d, want 1", run.LeadsCreated)
	}

	// Re-analyzing the same post must not create a second lead.
	if _, err := svc.ReanalyzePost(context.Background(), "p1"); err != nil {
		t.Fatalf("ReanalyzePost failed: %v", err)
	}
	if len(store.promoted) != 1 {
		t.Errorf("promoted posts = %d, want 1", len(store.promoted))
	}
}

func TestAnalysisFailureDoesNotFailRun(t *testing.T) {
	store := newMemStore(testWatch(true, 0.7))
	reader := &stubReader{posts: []provider.Post{
		{ExternalID: "a", Title: "ok", Body: "b"},
		{ExternalID: "b", Title: "broken", Body: "b"},
	}}
	analyzer := &stubAnalyzer{outcome: suitable(0.9), failTitles: map[string]bool{"broken": true}}
	svc := NewService(store, reader, stubContexts{}, analyzer, 2, nil)

	run, err := svc.ExecuteRun(context.Background(), "w1")
	if err != nil {
		t.Fatalf("ExecuteRun failed: %v", err)
	}
	if run.Status != models.RunCompleted {
		t.Errorf("status = %s, want completed despite one failed analysis", run.Status)
	}
	if run.PostsAnalyzed != 1 {
		t.Errorf("analyzed = %d, want 1", run.PostsAnalyzed)
	}

	var failedPost *models.ScoutWatchPost
	for _, p := range store.posts {
		if p.Title == "broken" {
			failedPost = p
		}
	}
	if failedPost == nil || failedPost.AnalysisStatus != models.AnalysisFailed {
		t.Errorf("broken post status = %+v, want failed", failedPost)
	}
}

// fakeLedger records enqueued jobs, deduping on key like the real ledger.
type fakeLedger struct {
	mu       sync.Mutex
	enqueued []string
}

func (l *fakeLedger) EnqueueJob(ctx context.Context, queue, jobType string, payload map[string]any, dedupeKey string, maxAttempts int) (*models.Job, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	created := true
	for _, k := range l.enqueued {
		if k == dedupeKey {
			created = false
		}
	}
	l.enqueued = append(l.enqueued, dedupeKey)
	return &models.Job{JobType: jobType, DedupeKey: dedupeKey}, created, nil
}

func TestFailedAnalysisEnqueuesRetry(t *testing.T) {
	store := newMemStore(testWatch(true, 0.7))
	reader := &stubReader{posts: []provider.Post{
		{ExternalID: "a", Title: "ok", Body: "b"},
		{ExternalID: "b", Title: "broken", Body: "b"},
	}}
	analyzer := &stubAnalyzer{outcome: suitable(0.9), failTitles: map[string]bool{"broken": true}}
	svc := NewService(store, reader, stubContexts{}, analyzer, 2, nil)
	ledger := &fakeLedger{}
	svc.UseLedger(ledger, "scout")

	if _, err := svc.ExecuteRun(context.Background(), "w1"); err != nil {
		t.Fatalf("ExecuteRun failed: %v", err)
	}

	if len(ledger.enqueued) != 1 {
		t.Fatalf("enqueued = %v, want exactly one retry", ledger.enqueued)
	}
	var brokenID string
	for id, p := range store.posts {
		if p.Title == "broken" {
			brokenID = id
		}
	}
	want := "analyze_post:" + brokenID
	if ledger.enqueued[0] != want {
		t.Errorf("retry dedupe key = %q, want %q", ledger.enqueued[0], want)
	}
}

func TestFatalAnalysisErrorNotRetried(t *testing.T) {
	store := newMemStore(testWatch(true, 0.7))
	reader := &stubReader{posts: []provider.Post{{ExternalID: "a", Title: "fatal", Body: "b"}}}
	analyzer := &stubAnalyzer{fatalTitles: map[string]bool{"fatal": true}}
	svc := NewService(store, reader, stubContexts{}, analyzer, 1, nil)
	ledger := &fakeLedger{}
	svc.UseLedger(ledger, "scout")

	if _, err := svc.ExecuteRun(context.Background(), "w1"); err != nil {
		t.Fatalf("ExecuteRun failed: %v", err)
	}
	if len(ledger.enqueued) != 0 {
		t.Errorf("enqueued = %v, want none for a fatal API error", ledger.enqueued)
	}
}

func TestAutoAnalyzeOffSkipsAnalysis(t *testing.T) {
	store := newMemStore(testWatch(false, 0.7))
	reader := &stubReader{posts: []provider.Post{{ExternalID: "a", Title: "one", Body: "b"}}}
	analyzer := &stubAnalyzer{outcome: suitable(0.9)}
	svc := NewService(store, reader, stubContexts{}, analyzer, 2, nil)

	run, err := svc.ExecuteRun(context.Background(), "w1")
	if err != nil {
		t.Fatalf("ExecuteRun failed: %v", err)
	}
	if run.PostsNew != 1 || run.PostsAnalyzed != 0 || run.LeadsCreated != 0 {
		t.Errorf("new/analyzed/leads = %d/%d/%d, want 1/0/0", run.PostsNew, run.PostsAnalyzed, run.LeadsCreated)
	}
	if analyzer.calls != 0 {
		t.Errorf("analyzer calls = %d, want 0", analyzer.calls)
	}
}

func TestPromoteManuallyBypassesGate(t *testing.T) {
	store := newMemStore(testWatch(true, 0.9))
	reader := &stubReader{posts: []provider.Post{{ExternalID: "a", Title: "one", Body: "b"}}}
	analyzer := &stubAnalyzer{outcome: models.AnalysisOutcome{Recommendation: models.RecommendNeedsReview, Confidence: 0.5}}
	svc := NewService(store, reader, stubContexts{}, analyzer, 1, nil)

	if _, err := svc.ExecuteRun(context.Background(), "w1"); err != nil {
		t.Fatalf("ExecuteRun failed: %v", err)
	}

	leadID, created, err := svc.PromoteManually(context.Background(), "p1")
	if err != nil {
		t.Fatalf("PromoteManually failed: %v", err)
	}
	if !created || leadID == "" {
		t.Errorf("created = %v, leadID = %q; want a new lead", created, leadID)
	}

	// Second manual promotion returns the same lead.
	leadID2, created2, err := svc.PromoteManually(context.Background(), "p1")
	if err != nil {
		t.Fatalf("second PromoteManually failed: %v", err)
	}
	if created2 || leadID2 != leadID {
		t.Errorf("second promotion = (%q, %v), want (%q, false)", leadID2, created2, leadID)
	}
}

func TestRunEventsPublished(t *testing.T) {
	store := newMemStore(testWatch(true, 0.7))
	reader := &stubReader{posts: []provider.Post{{ExternalID: "a", Title: "one", Body: "b"}}}
	analyzer := &stubAnalyzer{outcome: suitable(0.9)}

	var mu sync.Mutex
	var types []string
	svc := NewService(store, reader, stubContexts{}, analyzer, 1, func(e Event) {
		mu.Lock()
		types = append(types, e.Type)
		mu.Unlock()
	})

	if _, err := svc.ExecuteRun(context.Background(), "w1"); err != nil {
		t.Fatalf("ExecuteRun failed: %v", err)
	}

	want := map[string]bool{
		EventRunStarted: false, EventPostNew: false,
		EventPostAnalyzed: false, EventLeadCreated: false, EventRunSealed: false,
	}
	for _, typ := range types {
		want[typ] = true
	}
	for typ, seen := range want {
		if !seen {
			t.Errorf("event %s never published (got %v)", typ, types)
		}
	}
}
