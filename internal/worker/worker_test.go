package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/pkg/queue"
)

type chanQueue struct {
	jobs    chan *queue.Job
	mu      sync.Mutex
	retried []*queue.Job
}

func (q *chanQueue) Dequeue(ctx context.Context) (*queue.Job, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case j := <-q.jobs:
		return j, queue.QueueReports, nil
	}
}

func (q *chanQueue) Retry(_ context.Context, _ string, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	q.retried = append(q.retried, job)
	return nil
}

func (q *chanQueue) retries() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.retried)
}

type fakeExporter struct {
	mu    sync.Mutex
	fail  bool
	calls []string
}

func (f *fakeExporter) Export(_ context.Context, sessionID uuid.UUID, jobID string) (*models.SessionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, jobID)
	if f.fail {
		return nil, errors.New("s3 down")
	}
	return &models.SessionReport{SessionID: sessionID, JobID: jobID, S3Key: "reports/k.json"}, nil
}

func (f *fakeExporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func reportJob(t *testing.T) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypeReportExport, queue.ReportExportPayload{SessionID: uuid.New()})
	require.NoError(t, err)
	return job
}

func TestProcess(t *testing.T) {
	exp := &fakeExporter{}
	p := NewReportProcessor(exp, &chanQueue{}, nil)

	job := reportJob(t)
	require.NoError(t, p.Process(context.Background(), job))
	assert.Equal(t, []string{job.ID}, exp.calls)

	assert.Error(t, p.Process(context.Background(), &queue.Job{Type: "email"}))
	assert.Error(t, p.Process(context.Background(), &queue.Job{Type: queue.JobTypeReportExport, Payload: []byte("{")}))
}

func TestRun_RetriesFailedJobs(t *testing.T) {
	exp := &fakeExporter{fail: true}
	q := &chanQueue{jobs: make(chan *queue.Job, 1)}
	p := NewReportProcessor(exp, q, nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	q.jobs <- reportJob(t)
	assert.Eventually(t, func() bool { return q.retries() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, exp.count())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
