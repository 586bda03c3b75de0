// Package server provides the HTTP operator API with lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/leadscout/internal/db"
	"github.com/raphaelgruber/leadscout/internal/metrics"
	"github.com/raphaelgruber/leadscout/internal/models"
)

// Store is the persistence surface the API needs. *db.Client satisfies it.
type Store interface {
	CreateWatch(ctx context.Context, input models.WatchInput) (*models.ScoutWatch, error)
	GetWatch(ctx context.Context, watchID string) (*models.ScoutWatch, error)
	ListWatches(ctx context.Context) ([]models.ScoutWatch, error)
	SetWatchActive(ctx context.Context, watchID string, active bool) error
	ListRuns(ctx context.Context, watchID string, limit int) ([]models.ScoutWatchRun, error)
	GetRun(ctx context.Context, runID string) (*models.ScoutWatchRun, error)
	ListRunPosts(ctx context.Context, runID string) ([]models.ScoutWatchPost, error)
	GetPost(ctx context.Context, postID string) (*models.ScoutWatchPost, error)
	ListLeads(ctx context.Context, limit int) ([]models.Lead, error)
	GetLead(ctx context.Context, leadID string) (*models.Lead, error)
	ListJobs(ctx context.Context, limit int) ([]models.Job, error)
	EnqueueJob(ctx context.Context, queue, jobType string, payload map[string]any, dedupeKey string, maxAttempts int) (*models.Job, bool, error)
}

// Runner is the pipeline surface exposed through the API.
type Runner interface {
	ReanalyzePost(ctx context.Context, postID string) (*models.AnalysisOutcome, error)
	PromoteManually(ctx context.Context, postID string) (string, bool, error)
}

// Server wraps the HTTP API with dependencies and lifecycle management.
type Server struct {
	store       Store
	runner      Runner
	collector   *metrics.Collector
	broadcaster *Broadcaster
	queue       string
	logger      *slog.Logger
	httpServer  *http.Server
}

// New creates the operator API server listening on the given port.
func New(port int, store Store, runner Runner, collector *metrics.Collector, broadcaster *Broadcaster, queue string, logger *slog.Logger) *Server {
	s := &Server{
		store:       store,
		runner:      runner,
		collector:   collector,
		broadcaster: broadcaster,
		queue:       queue,
		logger:      logger,
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           LoggingMiddleware(logger, s.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)

	mux.HandleFunc("GET /api/watches", s.handleListWatches)
	mux.HandleFunc("POST /api/watches", s.handleCreateWatch)
	mux.HandleFunc("GET /api/watches/{id}", s.handleGetWatch)
	mux.HandleFunc("POST /api/watches/{id}/enable", s.handleSetWatchActive(true))
	mux.HandleFunc("POST /api/watches/{id}/disable", s.handleSetWatchActive(false))
	mux.HandleFunc("POST /api/watches/{id}/trigger", s.handleTriggerRun)
	mux.HandleFunc("GET /api/watches/{id}/runs", s.handleListRuns)

	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/posts", s.handleListRunPosts)

	mux.HandleFunc("GET /api/posts/{id}", s.handleGetPost)
	mux.HandleFunc("POST /api/posts/{id}/reanalyze", s.handleReanalyzePost)
	mux.HandleFunc("POST /api/posts/{id}/promote", s.handlePromotePost)

	mux.HandleFunc("GET /api/leads", s.handleListLeads)
	mux.HandleFunc("GET /api/leads/{id}", s.handleGetLead)

	mux.HandleFunc("GET /api/jobs", s.handleListJobs)

	mux.HandleFunc("POST /api/contexts/refresh", s.handleRefreshContext)

	if s.broadcaster != nil {
		mux.Handle("GET /api/events", s.broadcaster)
	}

	return mux
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

func notFound(err error) bool {
	return errors.Is(err, db.ErrNotFound)
}
