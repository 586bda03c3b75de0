package scout

import (
	"context"
	"errors"
	"fmt"

	"github.com/raphaelgruber/leadscout/internal/jobs"
	"github.com/raphaelgruber/leadscout/internal/llm"
	"github.com/raphaelgruber/leadscout/internal/models"
	"github.com/raphaelgruber/leadscout/internal/provider"
)

// Refresher is the context-refresh surface used by the context_refresh job.
type Refresher interface {
	Refresh(ctx context.Context, providerID, accountExternalID string) (*models.UserContextSummary, error)
}

// RegisterHandlers binds the pipeline job types to the worker pool.
func RegisterHandlers(pool *jobs.Pool, svc *Service, refresher Refresher) {
	pool.Register(models.JobTypeWatchRun, svc.handleWatchRun)
	pool.Register(models.JobTypeAnalyzePost, svc.handleAnalyzePost)
	pool.Register(models.JobTypeContextRefresh, func(ctx context.Context, job *models.Job) error {
		providerID, err := payloadString(job, "provider_id")
		if err != nil {
			return jobs.Permanent(err)
		}
		accountID, err := payloadString(job, "account_id")
		if err != nil {
			return jobs.Permanent(err)
		}
		_, err = refresher.Refresh(ctx, providerID, accountID)
		if errors.Is(err, provider.ErrGone) {
			return jobs.Permanent(err)
		}
		return err
	})
}

func (s *Service) handleWatchRun(ctx context.Context, job *models.Job) error {
	watchID, err := payloadString(job, "watch_id")
	if err != nil {
		return jobs.Permanent(err)
	}

	_, err = s.ExecuteRun(ctx, watchID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRunInProgress):
		// The running run covers this trigger.
		return nil
	case errors.Is(err, provider.ErrGone):
		return jobs.Permanent(err)
	default:
		if !provider.Retryable(err) {
			return jobs.Permanent(err)
		}
		return err
	}
}

func (s *Service) handleAnalyzePost(ctx context.Context, job *models.Job) error {
	postID, err := payloadString(job, "post_id")
	if err != nil {
		return jobs.Permanent(err)
	}

	_, err = s.ReanalyzePost(ctx, postID)
	if errors.Is(err, llm.ErrFatalAPI) {
		return jobs.Permanent(err)
	}
	return err
}

func payloadString(job *models.Job, key string) (string, error) {
	v, ok := job.Payload[key]
	if !ok {
		return "", fmt.Errorf("job payload missing %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("job payload %q is not a non-empty string", key)
	}
	return s, nil
}
