package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/leadscout/internal/models"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

type failure struct {
	jobID     string
	errMsg    string
	retryable bool
	nextRunAt time.Time
}

// memLedger hands out a scripted list of jobs and records outcomes.
type memLedger struct {
	mu        sync.Mutex
	pending   []*models.Job
	orphaned  []*models.Job
	completed []string
	failed    []failure
	resumes   int
}

func (l *memLedger) ClaimJob(ctx context.Context, queue string) (*models.Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return nil, nil
	}
	job := l.pending[0]
	l.pending = l.pending[1:]
	job.Status = models.JobRunning
	job.Attempts++
	return job, nil
}

func (l *memLedger) CompleteJob(ctx context.Context, jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, jobID)
	return nil
}

func (l *memLedger) FailJob(ctx context.Context, jobID, errMsg string, retryable bool, nextRunAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, failure{jobID, errMsg, retryable, nextRunAt})
	return nil
}

func (l *memLedger) ResumeOrphanedJobs(ctx context.Context, queue string) ([]models.Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resumes++
	var resumed []models.Job
	for _, job := range l.orphaned {
		job.Status = models.JobRetrying
		l.pending = append(l.pending, job)
		resumed = append(resumed, *job)
	}
	l.orphaned = nil
	return resumed, nil
}

func (l *memLedger) snapshot() ([]string, []failure) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.completed...), append([]failure(nil), l.failed...)
}

func testJob(id, jobType string) *models.Job {
	return &models.Job{
		ID:          surrealmodels.RecordID{Table: "job", ID: id},
		QueueName:   "default",
		JobType:     jobType,
		Payload:     map[string]any{},
		MaxAttempts: 3,
	}
}

// runPool runs the pool until the ledger drains or the deadline hits.
func runPool(t *testing.T, pool *Pool, ledger *memLedger, expect int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	deadline := time.After(3 * time.Second)
	for {
		completed, failed := ledger.snapshot()
		if len(completed)+len(failed) >= expect {
			break
		}
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatalf("pool did not process %d jobs in time (completed %d, failed %d)", expect, len(completed), len(failed))
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestPoolCompletesSuccessfulJob(t *testing.T) {
	ledger := &memLedger{pending: []*models.Job{testJob("j1", "noop")}}
	pool := NewPool(ledger, "default", 1, 10*time.Millisecond)
	pool.Register("noop", func(ctx context.Context, job *models.Job) error { return nil })

	runPool(t, pool, ledger, 1)

	completed, failed := ledger.snapshot()
	if len(completed) != 1 || completed[0] != "j1" {
		t.Errorf("completed = %v, want [j1]", completed)
	}
	if len(failed) != 0 {
		t.Errorf("failed = %v, want none", failed)
	}
}

func TestPoolRetriesTransientFailure(t *testing.T) {
	ledger := &memLedger{pending: []*models.Job{testJob("j1", "flaky")}}
	pool := NewPool(ledger, "default", 1, 10*time.Millisecond)
	pool.Register("flaky", func(ctx context.Context, job *models.Job) error {
		return errors.New("provider timeout")
	})

	runPool(t, pool, ledger, 1)

	_, failed := ledger.snapshot()
	if len(failed) != 1 {
		t.Fatalf("failed = %v, want one entry", failed)
	}
	if !failed[0].retryable {
		t.Error("transient failure must be retryable")
	}
	if !failed[0].nextRunAt.After(time.Now().Add(10 * time.Second)) {
		t.Errorf("nextRunAt = %v, expected backoff into the future", failed[0].nextRunAt)
	}
}

func TestPoolDoesNotRetryPermanentFailure(t *testing.T) {
	ledger := &memLedger{pending: []*models.Job{testJob("j1", "doomed")}}
	pool := NewPool(ledger, "default", 1, 10*time.Millisecond)
	pool.Register("doomed", func(ctx context.Context, job *models.Job) error {
		return Permanent(fmt.Errorf("post gone"))
	})

	runPool(t, pool, ledger, 1)

	_, failed := ledger.snapshot()
	if len(failed) != 1 {
		t.Fatalf("failed = %v, want one entry", failed)
	}
	if failed[0].retryable {
		t.Error("permanent failure must not be retryable")
	}
}

func TestPoolRecoversFromHandlerPanic(t *testing.T) {
	ledger := &memLedger{pending: []*models.Job{
		testJob("j1", "panicky"),
		testJob("j2", "noop"),
	}}
	pool := NewPool(ledger, "default", 1, 10*time.Millisecond)
	pool.Register("panicky", func(ctx context.Context, job *models.Job) error { panic("boom") })
	pool.Register("noop", func(ctx context.Context, job *models.Job) error { return nil })

	runPool(t, pool, ledger, 2)

	completed, failed := ledger.snapshot()
	if len(failed) != 1 || failed[0].retryable {
		t.Errorf("panic must record one non-retryable failure, got %v", failed)
	}
	// The worker survives the panic and processes the next job.
	if len(completed) != 1 || completed[0] != "j2" {
		t.Errorf("completed = %v, want [j2]", completed)
	}
}

func TestPoolResumesOrphanedJobsOnStartup(t *testing.T) {
	orphan := testJob("j1", "noop")
	orphan.Status = models.JobRunning
	ledger := &memLedger{orphaned: []*models.Job{orphan}}
	pool := NewPool(ledger, "default", 1, 10*time.Millisecond)
	pool.Register("noop", func(ctx context.Context, job *models.Job) error { return nil })

	runPool(t, pool, ledger, 1)

	ledger.mu.Lock()
	resumes := ledger.resumes
	ledger.mu.Unlock()
	if resumes != 1 {
		t.Errorf("resume sweeps = %d, want 1", resumes)
	}
	completed, _ := ledger.snapshot()
	if len(completed) != 1 || completed[0] != "j1" {
		t.Errorf("completed = %v, want the orphan requeued and finished", completed)
	}
}

func TestPoolFailsUnknownJobType(t *testing.T) {
	ledger := &memLedger{pending: []*models.Job{testJob("j1", "mystery")}}
	pool := NewPool(ledger, "default", 1, 10*time.Millisecond)

	runPool(t, pool, ledger, 1)

	_, failed := ledger.snapshot()
	if len(failed) != 1 || failed[0].retryable {
		t.Errorf("unknown type must fail terminally, got %v", failed)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second, Factor: 2.0}

	if d := b.Delay(1); d != time.Second {
		t.Errorf("Delay(1) = %v, want 1s", d)
	}
	if d := b.Delay(3); d != 4*time.Second {
		t.Errorf("Delay(3) = %v, want 4s", d)
	}
	if d := b.Delay(10); d != 10*time.Second {
		t.Errorf("Delay(10) = %v, want capped at 10s", d)
	}
}

func TestBackoffJitterStaysInBounds(t *testing.T) {
	b := Backoff{Base: time.Second, Max: time.Minute, Factor: 2.0, Jitter: 0.2}

	for i := 0; i < 100; i++ {
		d := b.Delay(2)
		if d < 1600*time.Millisecond || d > 2400*time.Millisecond {
			t.Fatalf("Delay(2) = %v, want within ±20%% of 2s", d)
		}
	}
}

func TestPermanentWrapping(t *testing.T) {
	base := errors.New("nope")
	if !IsPermanent(Permanent(base)) {
		t.Error("Permanent error not detected")
	}
	if IsPermanent(base) {
		t.Error("plain error misclassified as permanent")
	}
	if !errors.Is(Permanent(base), base) {
		t.Error("Permanent must preserve the error chain")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must be nil")
	}
}
