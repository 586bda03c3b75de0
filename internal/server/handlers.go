package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/raphaelgruber/leadscout/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func limitParam(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Snapshot())
}

// watchRequest is the JSON body for creating a watch.
type watchRequest struct {
	ProviderID     string  `json:"provider_id"`
	SourceLocation string  `json:"source_location"`
	SearchQuery    *string `json:"search_query,omitempty"`
	SortBy         string  `json:"sort_by"`
	TimeFilter     string  `json:"time_filter"`
	IdentityID     *string `json:"identity_id,omitempty"`
	IsActive       *bool   `json:"is_active,omitempty"`
	AutoAnalyze    *bool   `json:"auto_analyze,omitempty"`
	MinConfidence  float64 `json:"min_confidence"`
	ScanEvery      string  `json:"scan_every"`
}

func (req *watchRequest) toInput() (models.WatchInput, error) {
	if req.ProviderID == "" || req.SourceLocation == "" {
		return models.WatchInput{}, errors.New("provider_id and source_location are required")
	}

	scanEvery, err := time.ParseDuration(req.ScanEvery)
	if err != nil {
		return models.WatchInput{}, fmt.Errorf("invalid scan_every: %w", err)
	}
	if scanEvery < time.Minute {
		return models.WatchInput{}, errors.New("scan_every must be at least 1m")
	}
	if req.MinConfidence < 0 || req.MinConfidence > 1 {
		return models.WatchInput{}, errors.New("min_confidence must be within [0, 1]")
	}

	input := models.WatchInput{
		ProviderID:     req.ProviderID,
		SourceLocation: req.SourceLocation,
		SearchQuery:    req.SearchQuery,
		SortBy:         req.SortBy,
		TimeFilter:     req.TimeFilter,
		IdentityID:     req.IdentityID,
		IsActive:       true,
		AutoAnalyze:    true,
		MinConfidence:  req.MinConfidence,
		ScanEvery:      scanEvery,
	}
	if input.SortBy == "" {
		input.SortBy = "new"
	}
	if input.TimeFilter == "" {
		input.TimeFilter = "day"
	}
	if req.IsActive != nil {
		input.IsActive = *req.IsActive
	}
	if req.AutoAnalyze != nil {
		input.AutoAnalyze = *req.AutoAnalyze
	}
	return input, nil
}

func (s *Server) handleCreateWatch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	watch, err := s.store.CreateWatch(r.Context(), input)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, watch)
}

func (s *Server) handleListWatches(w http.ResponseWriter, r *http.Request) {
	watches, err := s.store.ListWatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, watches)
}

func (s *Server) handleGetWatch(w http.ResponseWriter, r *http.Request) {
	watch, err := s.store.GetWatch(r.Context(), r.PathValue("id"))
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, watch)
}

func (s *Server) handleSetWatchActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := s.store.GetWatch(r.Context(), id); err != nil {
			if notFound(err) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if err := s.store.SetWatchActive(r.Context(), id, active); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": active})
	}
}

func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetWatch(r.Context(), id); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// One pending manual trigger per watch; the ledger collapses repeats.
	job, created, err := s.store.EnqueueJob(r.Context(), s.queue, models.JobTypeWatchRun,
		map[string]any{"watch_id": id},
		fmt.Sprintf("watch_run:%s:manual", id), 3)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"job_id":  models.MustRecordIDString(job.ID),
		"created": created,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), r.PathValue("id"), limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRunPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.ListRunPosts(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleReanalyzePost(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.runner.ReanalyzePost(r.Context(), r.PathValue("id"))
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handlePromotePost(w http.ResponseWriter, r *http.Request) {
	leadID, created, err := s.runner.PromoteManually(r.Context(), r.PathValue("id"))
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"lead_id": leadID, "created": created})
}

// refreshContextRequest is the JSON body for a manual author-context refresh.
type refreshContextRequest struct {
	ProviderID string `json:"provider_id"`
	AccountID  string `json:"account_id"`
}

func (s *Server) handleRefreshContext(w http.ResponseWriter, r *http.Request) {
	var req refreshContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	if req.ProviderID == "" || req.AccountID == "" {
		writeError(w, http.StatusBadRequest, errors.New("provider_id and account_id are required"))
		return
	}

	job, created, err := s.store.EnqueueJob(r.Context(), s.queue, models.JobTypeContextRefresh,
		map[string]any{"provider_id": req.ProviderID, "account_id": req.AccountID},
		fmt.Sprintf("context_refresh:%s:%s", req.ProviderID, req.AccountID), 3)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"job_id":  models.MustRecordIDString(job.ID),
		"created": created,
	})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := s.store.ListLeads(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := s.store.GetLead(r.Context(), r.PathValue("id"))
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListJobs(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}
