// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/leadscout/internal/models"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

// mustCreateWatch creates a throwaway watch for a test and returns its ID.
func mustCreateWatch(t *testing.T, location string) string {
	t.Helper()
	watch, err := testDB.CreateWatch(context.Background(), models.WatchInput{
		ProviderID:     "reddit",
		SourceLocation: location,
		SortBy:         "new",
		TimeFilter:     "day",
		IsActive:       true,
		AutoAnalyze:    true,
		MinConfidence:  0.7,
		ScanEvery:      30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("CreateWatch failed: %v", err)
	}
	return models.MustRecordIDString(watch.ID)
}

// =============================================================================
// JOB LEDGER TESTS
// =============================================================================

func TestEnqueueJobDeduplicates(t *testing.T) {
	ctx := context.Background()

	key := "dedupe-test-" + fmt.Sprint(time.Now().UnixNano())
	job1, created1, err := testDB.EnqueueJob(ctx, "test", models.JobTypeWatchRun,
		map[string]any{"watch_id": "w1"}, key, 3)
	if err != nil {
		t.Fatalf("First enqueue failed: %v", err)
	}
	if !created1 {
		t.Error("First enqueue should report created=true")
	}
	if job1.Status != models.JobQueued {
		t.Errorf("Expected status queued, got %q", job1.Status)
	}

	// Same dedupe key while the first job is still queued collapses.
	job2, created2, err := testDB.EnqueueJob(ctx, "test", models.JobTypeWatchRun,
		map[string]any{"watch_id": "w1"}, key, 3)
	if err != nil {
		t.Fatalf("Second enqueue failed: %v", err)
	}
	if created2 {
		t.Error("Second enqueue should report created=false")
	}
	if models.MustRecordIDString(job1.ID) != models.MustRecordIDString(job2.ID) {
		t.Error("Second enqueue should return the existing job")
	}

	// After the job reaches a terminal state, the key is reusable.
	if err := testDB.CompleteJob(ctx, models.MustRecordIDString(job1.ID)); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	job3, created3, err := testDB.EnqueueJob(ctx, "test", models.JobTypeWatchRun, nil, key, 3)
	if err != nil {
		t.Fatalf("Third enqueue failed: %v", err)
	}
	if !created3 {
		t.Error("Enqueue after completion should create a new job")
	}
	if models.MustRecordIDString(job1.ID) == models.MustRecordIDString(job3.ID) {
		t.Error("New job should have a new ID")
	}
	_ = testDB.CompleteJob(ctx, models.MustRecordIDString(job3.ID))
}

func TestClaimJobLifecycle(t *testing.T) {
	ctx := context.Background()
	queue := "claim-test-" + fmt.Sprint(time.Now().UnixNano())

	job, _, err := testDB.EnqueueJob(ctx, queue, models.JobTypeAnalyzePost,
		map[string]any{"post_id": "p1"}, "claim-"+queue, 3)
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	jobID := models.MustRecordIDString(job.ID)

	claimed, err := testDB.ClaimJob(ctx, queue)
	if err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if claimed == nil {
		t.Fatal("ClaimJob should return the queued job")
	}
	if claimed.Status != models.JobRunning {
		t.Errorf("Claimed job status = %q, want running", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Errorf("Claimed job attempts = %d, want 1", claimed.Attempts)
	}

	// Nothing else is due on this queue.
	second, err := testDB.ClaimJob(ctx, queue)
	if err != nil {
		t.Fatalf("Second ClaimJob failed: %v", err)
	}
	if second != nil {
		t.Error("Second claim should return nil while the job is running")
	}

	if err := testDB.CompleteJob(ctx, jobID); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	done, err := testDB.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if done.Status != models.JobDone {
		t.Errorf("Job status = %q, want done", done.Status)
	}
}

func TestResumeOrphanedJobsRequeuesRunning(t *testing.T) {
	ctx := context.Background()
	queue := "orphan-test-" + fmt.Sprint(time.Now().UnixNano())

	job, _, err := testDB.EnqueueJob(ctx, queue, models.JobTypeWatchRun,
		map[string]any{"watch_id": "w1"}, "orphan-"+queue, 3)
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	jobID := models.MustRecordIDString(job.ID)

	// Claim and then walk away, as a crashed process would.
	if claimed, err := testDB.ClaimJob(ctx, queue); err != nil || claimed == nil {
		t.Fatalf("ClaimJob = %v, %v", claimed, err)
	}

	resumed, err := testDB.ResumeOrphanedJobs(ctx, queue)
	if err != nil {
		t.Fatalf("ResumeOrphanedJobs failed: %v", err)
	}
	if len(resumed) != 1 {
		t.Fatalf("resumed %d jobs, want 1", len(resumed))
	}
	if resumed[0].Status != models.JobRetrying {
		t.Errorf("resumed status = %q, want retrying", resumed[0].Status)
	}

	// The job is immediately claimable again.
	reclaimed, err := testDB.ClaimJob(ctx, queue)
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if reclaimed == nil {
		t.Fatal("resumed job should be claimable")
	}
	if got := models.MustRecordIDString(reclaimed.ID); got != jobID {
		t.Errorf("reclaimed %s, want %s", got, jobID)
	}
	if reclaimed.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", reclaimed.Attempts)
	}

	_ = testDB.CompleteJob(ctx, jobID)
}

func TestFailJobRetriesThenExhausts(t *testing.T) {
	ctx := context.Background()
	queue := "retry-test-" + fmt.Sprint(time.Now().UnixNano())

	job, _, err := testDB.EnqueueJob(ctx, queue, models.JobTypeWatchRun, nil, "retry-"+queue, 2)
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	jobID := models.MustRecordIDString(job.ID)

	// First attempt fails retryably with an already-elapsed deadline.
	if _, err := testDB.ClaimJob(ctx, queue); err != nil {
		t.Fatalf("First claim failed: %v", err)
	}
	if err := testDB.FailJob(ctx, jobID, "transient", true, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("First FailJob failed: %v", err)
	}
	retrying, err := testDB.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if retrying.Status != models.JobRetrying {
		t.Errorf("Job status = %q, want retrying", retrying.Status)
	}
	if retrying.LastError == nil || *retrying.LastError != "transient" {
		t.Errorf("LastError = %v, want 'transient'", retrying.LastError)
	}

	// Due again, second failure hits the attempt cap.
	claimed, err := testDB.ClaimJob(ctx, queue)
	if err != nil {
		t.Fatalf("Second claim failed: %v", err)
	}
	if claimed == nil {
		t.Fatal("Retrying job with elapsed next_run_at should be claimable")
	}
	if claimed.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", claimed.Attempts)
	}
	if err := testDB.FailJob(ctx, jobID, "transient again", true, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Second FailJob failed: %v", err)
	}
	failed, err := testDB.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if failed.Status != models.JobFailed {
		t.Errorf("Job status = %q, want failed after exhausting attempts", failed.Status)
	}
}

func TestFailJobPermanent(t *testing.T) {
	ctx := context.Background()
	queue := "perm-test-" + fmt.Sprint(time.Now().UnixNano())

	job, _, err := testDB.EnqueueJob(ctx, queue, models.JobTypeWatchRun, nil, "perm-"+queue, 5)
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	jobID := models.MustRecordIDString(job.ID)

	if _, err := testDB.ClaimJob(ctx, queue); err != nil {
		t.Fatalf("ClaimJob failed: %v", err)
	}
	if err := testDB.FailJob(ctx, jobID, "unknown job type", false, time.Now()); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}

	failed, err := testDB.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if failed.Status != models.JobFailed {
		t.Errorf("Non-retryable failure should be terminal, got %q", failed.Status)
	}
	if remaining, err := testDB.ClaimJob(ctx, queue); err != nil || remaining != nil {
		t.Errorf("Failed job must not be claimable again (job=%v, err=%v)", remaining, err)
	}
}

// =============================================================================
// WATCH TESTS
// =============================================================================

func TestWatchLifecycle(t *testing.T) {
	ctx := context.Background()

	query := "looking for recommendations"
	created, err := testDB.CreateWatch(ctx, models.WatchInput{
		ProviderID:     "reddit",
		SourceLocation: "golang",
		SearchQuery:    &query,
		SortBy:         "new",
		TimeFilter:     "day",
		IsActive:       true,
		AutoAnalyze:    true,
		MinConfidence:  0.75,
		ScanEvery:      15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("CreateWatch failed: %v", err)
	}
	watchID := models.MustRecordIDString(created.ID)

	fetched, err := testDB.GetWatch(ctx, watchID)
	if err != nil {
		t.Fatalf("GetWatch failed: %v", err)
	}
	if fetched.SourceLocation != "golang" {
		t.Errorf("SourceLocation = %q, want golang", fetched.SourceLocation)
	}
	if fetched.ScanEvery != 15*time.Minute {
		t.Errorf("ScanEvery = %v, want 15m", fetched.ScanEvery)
	}
	if fetched.MinConfidence != 0.75 {
		t.Errorf("MinConfidence = %v, want 0.75", fetched.MinConfidence)
	}

	active, err := testDB.ListActiveWatches(ctx)
	if err != nil {
		t.Fatalf("ListActiveWatches failed: %v", err)
	}
	if !containsWatch(active, watchID) {
		t.Error("Active watch should appear in ListActiveWatches")
	}

	if err := testDB.SetWatchActive(ctx, watchID, false); err != nil {
		t.Fatalf("SetWatchActive failed: %v", err)
	}
	active, err = testDB.ListActiveWatches(ctx)
	if err != nil {
		t.Fatalf("ListActiveWatches failed: %v", err)
	}
	if containsWatch(active, watchID) {
		t.Error("Disabled watch must not appear in ListActiveWatches")
	}

	all, err := testDB.ListWatches(ctx)
	if err != nil {
		t.Fatalf("ListWatches failed: %v", err)
	}
	if !containsWatch(all, watchID) {
		t.Error("Disabled watch should still appear in ListWatches")
	}

	if _, err := testDB.GetWatch(ctx, "does-not-exist"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetWatch on missing ID = %v, want ErrNotFound", err)
	}
}

func containsWatch(watches []models.ScoutWatch, watchID string) bool {
	for _, w := range watches {
		if models.MustRecordIDString(w.ID) == watchID {
			return true
		}
	}
	return false
}

func TestSealWatchAggregates(t *testing.T) {
	ctx := context.Background()
	watchID := mustCreateWatch(t, "aggregates-test")

	ranAt := time.Now().UTC().Truncate(time.Second)
	if err := testDB.SealWatchAggregates(ctx, watchID, 7, ranAt); err != nil {
		t.Fatalf("SealWatchAggregates failed: %v", err)
	}
	if err := testDB.SealWatchAggregates(ctx, watchID, 3, ranAt.Add(time.Hour)); err != nil {
		t.Fatalf("Second SealWatchAggregates failed: %v", err)
	}

	watch, err := testDB.GetWatch(ctx, watchID)
	if err != nil {
		t.Fatalf("GetWatch failed: %v", err)
	}
	if watch.TotalPostsSeen != 10 {
		t.Errorf("TotalPostsSeen = %d, want 10", watch.TotalPostsSeen)
	}
	if watch.LastRunAt == nil {
		t.Fatal("LastRunAt should be set after sealing")
	}
}

// =============================================================================
// RUN TESTS
// =============================================================================

func TestStartRunLock(t *testing.T) {
	ctx := context.Background()
	watchID := mustCreateWatch(t, "runlock-test")

	url := "https://example.com/r/runlock-test/new"
	run, err := testDB.StartRun(ctx, watchID, &url)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if run.Status != models.RunRunning {
		t.Errorf("Run status = %q, want running", run.Status)
	}

	// Second run for the same watch is rejected while the first is open.
	if _, err := testDB.StartRun(ctx, watchID, nil); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Concurrent StartRun = %v, want ErrAlreadyExists", err)
	}

	runID := models.MustRecordIDString(run.ID)
	err = testDB.SealRun(ctx, runID, models.RunCompleted, RunCounters{
		PostsFetched: 5, PostsNew: 2, PostsAnalyzed: 2, LeadsCreated: 1,
	}, nil)
	if err != nil {
		t.Fatalf("SealRun failed: %v", err)
	}

	sealed, err := testDB.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if sealed.Status != models.RunCompleted {
		t.Errorf("Sealed run status = %q, want completed", sealed.Status)
	}
	if sealed.PostsFetched != 5 || sealed.PostsNew != 2 {
		t.Errorf("Counters = %d/%d, want 5/2", sealed.PostsFetched, sealed.PostsNew)
	}
	if sealed.CompletedAt == nil {
		t.Error("CompletedAt should be set after sealing")
	}

	// Lock released, a new run may start.
	again, err := testDB.StartRun(ctx, watchID, nil)
	if err != nil {
		t.Fatalf("StartRun after seal failed: %v", err)
	}
	_ = testDB.SealRun(ctx, models.MustRecordIDString(again.ID), models.RunFailed, RunCounters{}, nil)
}

func TestSealRunFailedKeepsError(t *testing.T) {
	ctx := context.Background()
	watchID := mustCreateWatch(t, "failedrun-test")

	run, err := testDB.StartRun(ctx, watchID, nil)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	runID := models.MustRecordIDString(run.ID)

	msg := "provider listing: status 503"
	if err := testDB.SealRun(ctx, runID, models.RunFailed, RunCounters{PostsFetched: 1, PostsNew: 1}, &msg); err != nil {
		t.Fatalf("SealRun failed: %v", err)
	}

	sealed, err := testDB.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if sealed.Status != models.RunFailed {
		t.Errorf("Status = %q, want failed", sealed.Status)
	}
	if sealed.ErrorMessage == nil || *sealed.ErrorMessage != msg {
		t.Errorf("ErrorMessage = %v, want %q", sealed.ErrorMessage, msg)
	}
	// Ingested posts survive the failure.
	if sealed.PostsNew != 1 {
		t.Errorf("PostsNew = %d, want 1", sealed.PostsNew)
	}
}

// =============================================================================
// POST TESTS
// =============================================================================

func newTestRun(t *testing.T, location string) (watchID, runID string) {
	t.Helper()
	watchID = mustCreateWatch(t, location)
	run, err := testDB.StartRun(context.Background(), watchID, nil)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	return watchID, models.MustRecordIDString(run.ID)
}

func TestInsertPostDeduplicates(t *testing.T) {
	ctx := context.Background()
	watchID, runID := newTestRun(t, "postdedup-test")

	input := PostInput{
		ExternalPostID: "t3_dedup1",
		Author:         "alice",
		AuthorID:       "u_alice",
		Title:          "Anyone know a good tool for this?",
		Body:           "Long description of the problem.",
		URL:            "https://example.com/t3_dedup1",
	}
	post, err := testDB.InsertPost(ctx, watchID, runID, input)
	if err != nil {
		t.Fatalf("InsertPost failed: %v", err)
	}
	if post.AnalysisStatus != models.AnalysisPending {
		t.Errorf("New post status = %q, want pending", post.AnalysisStatus)
	}

	// Same external post for the same watch conflicts.
	if _, err := testDB.InsertPost(ctx, watchID, runID, input); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Duplicate InsertPost = %v, want ErrAlreadyExists", err)
	}

	// The same external post under a different watch is a distinct sighting.
	otherWatch, otherRun := newTestRun(t, "postdedup-other")
	if _, err := testDB.InsertPost(ctx, otherWatch, otherRun, input); err != nil {
		t.Errorf("InsertPost under different watch failed: %v", err)
	}

	posts, err := testDB.ListRunPosts(ctx, runID)
	if err != nil {
		t.Fatalf("ListRunPosts failed: %v", err)
	}
	if len(posts) != 1 {
		t.Errorf("Run should have 1 post, got %d", len(posts))
	}
}

func TestPostAnalysisLifecycle(t *testing.T) {
	ctx := context.Background()
	watchID, runID := newTestRun(t, "analysis-test")

	post, err := testDB.InsertPost(ctx, watchID, runID, PostInput{
		ExternalPostID: "t3_analysis1",
		Author:         "bob",
		AuthorID:       "u_bob",
		Title:          "Title",
		Body:           "Body",
		URL:            "https://example.com/t3_analysis1",
	})
	if err != nil {
		t.Fatalf("InsertPost failed: %v", err)
	}
	postID := models.MustRecordIDString(post.ID)

	if err := testDB.MarkPostAnalyzing(ctx, postID); err != nil {
		t.Fatalf("MarkPostAnalyzing failed: %v", err)
	}
	analyzing, err := testDB.GetPost(ctx, postID)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if analyzing.AnalysisStatus != models.AnalysisAnalyzing {
		t.Errorf("Status = %q, want analyzing", analyzing.AnalysisStatus)
	}

	outcome := &models.AnalysisOutcome{
		Recommendation: models.RecommendSuitable,
		Confidence:     0.85,
		Reasoning:      "Strong match",
		Dimensions: []models.DimensionResult{
			{Dimension: "intent", Status: models.DimensionSucceeded, Output: map[string]any{"score": 0.9}},
		},
	}
	if err := testDB.SavePostAnalysis(ctx, postID, outcome); err != nil {
		t.Fatalf("SavePostAnalysis failed: %v", err)
	}

	analyzed, err := testDB.GetPost(ctx, postID)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if analyzed.AnalysisStatus != models.AnalysisAnalyzed {
		t.Errorf("Status = %q, want analyzed", analyzed.AnalysisStatus)
	}
	if analyzed.AnalysisRecommendation == nil || *analyzed.AnalysisRecommendation != models.RecommendSuitable {
		t.Errorf("Recommendation = %v, want suitable", analyzed.AnalysisRecommendation)
	}
	if analyzed.AnalysisConfidence == nil || *analyzed.AnalysisConfidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", analyzed.AnalysisConfidence)
	}
	if analyzed.AnalysisDimensions == nil {
		t.Error("AnalysisDimensions should be stored")
	}
}

func TestMarkPostAnalysisFailed(t *testing.T) {
	ctx := context.Background()
	watchID, runID := newTestRun(t, "analysisfail-test")

	post, err := testDB.InsertPost(ctx, watchID, runID, PostInput{
		ExternalPostID: "t3_fail1",
		Author:         "carol",
		AuthorID:       "u_carol",
		Title:          "Title",
		Body:           "Body",
		URL:            "https://example.com/t3_fail1",
	})
	if err != nil {
		t.Fatalf("InsertPost failed: %v", err)
	}
	postID := models.MustRecordIDString(post.ID)

	if err := testDB.MarkPostAnalysisFailed(ctx, postID, "all dimension agents failed"); err != nil {
		t.Fatalf("MarkPostAnalysisFailed failed: %v", err)
	}

	failed, err := testDB.GetPost(ctx, postID)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if failed.AnalysisStatus != models.AnalysisFailed {
		t.Errorf("Status = %q, want failed", failed.AnalysisStatus)
	}
	if failed.AnalysisError == nil || *failed.AnalysisError != "all dimension agents failed" {
		t.Errorf("AnalysisError = %v, want recorded message", failed.AnalysisError)
	}
}

// =============================================================================
// LEAD TESTS
// =============================================================================

func TestPromotePostIsIdempotent(t *testing.T) {
	ctx := context.Background()
	watchID, runID := newTestRun(t, "promote-test")

	post, err := testDB.InsertPost(ctx, watchID, runID, PostInput{
		ExternalPostID: "t3_promote1",
		Author:         "dave",
		AuthorID:       "u_dave",
		Title:          "Promotable post",
		Body:           "Body",
		URL:            "https://example.com/t3_promote1",
	})
	if err != nil {
		t.Fatalf("InsertPost failed: %v", err)
	}
	postID := models.MustRecordIDString(post.ID)

	leadID, created, err := testDB.PromotePost(ctx, postID, "reddit", "promote-test", models.RecommendSuitable, 0.9)
	if err != nil {
		t.Fatalf("PromotePost failed: %v", err)
	}
	if !created {
		t.Error("First promotion should create a lead")
	}

	// Promoting again returns the same lead without creating another.
	leadID2, created2, err := testDB.PromotePost(ctx, postID, "reddit", "promote-test", models.RecommendSuitable, 0.9)
	if err != nil {
		t.Fatalf("Second PromotePost failed: %v", err)
	}
	if created2 {
		t.Error("Second promotion should not create a lead")
	}
	if leadID != leadID2 {
		t.Errorf("Lead IDs differ: %q vs %q", leadID, leadID2)
	}

	lead, err := testDB.GetLead(ctx, leadID)
	if err != nil {
		t.Fatalf("GetLead failed: %v", err)
	}
	if lead.Author != "dave" {
		t.Errorf("Lead author = %q, want dave", lead.Author)
	}
	if lead.Status != models.LeadNew {
		t.Errorf("Lead status = %q, want new", lead.Status)
	}
	if lead.AnalysisConfidence != 0.9 {
		t.Errorf("Lead confidence = %v, want 0.9", lead.AnalysisConfidence)
	}

	// Promotion links the lead back to the post and bumps the watch counter.
	promoted, err := testDB.GetPost(ctx, postID)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if promoted.Lead == nil {
		t.Error("Post should reference its lead after promotion")
	}
	watch, err := testDB.GetWatch(ctx, watchID)
	if err != nil {
		t.Fatalf("GetWatch failed: %v", err)
	}
	if watch.TotalLeadsCreated != 1 {
		t.Errorf("TotalLeadsCreated = %d, want 1", watch.TotalLeadsCreated)
	}

	leads, err := testDB.ListLeads(ctx, 100)
	if err != nil {
		t.Fatalf("ListLeads failed: %v", err)
	}
	found := false
	for _, l := range leads {
		if models.MustRecordIDString(l.ID) == leadID {
			found = true
		}
	}
	if !found {
		t.Error("Promoted lead should appear in ListLeads")
	}
}

// =============================================================================
// USER CONTEXT TESTS
// =============================================================================

func TestUserContextUpsertAndGet(t *testing.T) {
	ctx := context.Background()

	missing, err := testDB.GetUserContext(ctx, "reddit", "u_missing")
	if err != nil {
		t.Fatalf("GetUserContext on missing row failed: %v", err)
	}
	if missing != nil {
		t.Error("GetUserContext should return nil for unknown account")
	}

	expires := time.Now().Add(time.Hour)
	first, err := testDB.UpsertUserContext(ctx, "reddit", "u_ctx1", "golang, databases", "helpful, terse", expires)
	if err != nil {
		t.Fatalf("UpsertUserContext failed: %v", err)
	}
	if first.InterestsSummary != "golang, databases" {
		t.Errorf("InterestsSummary = %q", first.InterestsSummary)
	}

	// Upserting again replaces, it never duplicates.
	second, err := testDB.UpsertUserContext(ctx, "reddit", "u_ctx1", "rust, embedded", "direct", expires.Add(time.Hour))
	if err != nil {
		t.Fatalf("Second UpsertUserContext failed: %v", err)
	}
	if models.MustRecordIDString(first.ID) != models.MustRecordIDString(second.ID) {
		t.Error("Upsert should reuse the existing row")
	}

	fetched, err := testDB.GetUserContext(ctx, "reddit", "u_ctx1")
	if err != nil {
		t.Fatalf("GetUserContext failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("GetUserContext returned nil after upsert")
	}
	if fetched.InterestsSummary != "rust, embedded" {
		t.Errorf("InterestsSummary = %q, want replaced value", fetched.InterestsSummary)
	}
	if fetched.Expired(time.Now()) {
		t.Error("Fresh summary must not report expired")
	}
}

func TestObserveAccount(t *testing.T) {
	ctx := context.Background()

	if err := testDB.ObserveAccount(ctx, "reddit", "u_obs1", "eve", models.RemoteActive); err != nil {
		t.Fatalf("ObserveAccount failed: %v", err)
	}
	// Re-observing with a new status updates in place.
	if err := testDB.ObserveAccount(ctx, "reddit", "u_obs1", "eve", models.RemoteDeleted); err != nil {
		t.Fatalf("Second ObserveAccount failed: %v", err)
	}
}
