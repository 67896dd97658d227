package reports

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/pkg/queue"
	"github.com/aura-pulse/backend/pkg/response"
)

type fakeSource struct {
	session      models.Session
	participants []models.Participant
}

func (f fakeSource) Snapshot(_ context.Context, id uuid.UUID) (*models.Session, []models.Participant, error) {
	if id != f.session.ID {
		return nil, nil, models.ErrSessionNotFound
	}
	s := f.session
	return &s, f.participants, nil
}

type fakeBucket struct {
	objects map[string][]byte
	fail    bool
}

func (b *fakeBucket) UploadReport(_ context.Context, key string, body []byte) (string, error) {
	if b.fail {
		return "", errors.New("s3 unavailable")
	}
	b.objects[key] = body
	return "https://reports.example/" + key, nil
}

func (b *fakeBucket) DeleteReport(_ context.Context, key string) error {
	delete(b.objects, key)
	return nil
}

func (b *fakeBucket) PresignedReportURL(_ context.Context, key string) (string, error) {
	return "https://signed.example/" + key, nil
}

type memStore struct {
	rows []models.SessionReport
	err  error
}

func (m *memStore) Create(_ context.Context, rep *models.SessionReport) error {
	if m.err != nil {
		return m.err
	}
	rep.ID = uuid.New()
	rep.CreatedAt = time.Now()
	m.rows = append(m.rows, *rep)
	return nil
}

func (m *memStore) LatestBySession(_ context.Context, id uuid.UUID) (*models.SessionReport, error) {
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].SessionID == id {
			r := m.rows[i]
			return &r, nil
		}
	}
	return nil, ErrNoReport
}

type fakeJobs struct{ payloads []queue.ReportExportPayload }

func (f *fakeJobs) EnqueueReportExport(_ context.Context, p queue.ReportExportPayload) (string, error) {
	f.payloads = append(f.payloads, p)
	return "job-9", nil
}

func completed(sessionID uuid.UUID, innovation int) models.Participant {
	p := models.Participant{ID: uuid.New(), SessionID: sessionID, Name: "p"}
	_ = p.Complete(models.PreferenceScores{Innovation: innovation}, time.Now())
	return p
}

func TestExporter_UploadsAndRecords(t *testing.T) {
	sid := uuid.New()
	src := fakeSource{
		session:      models.Session{ID: sid, Code: "K7QW3M", Name: "Expo"},
		participants: []models.Participant{completed(sid, 80), completed(sid, 60), {ID: uuid.New(), SessionID: sid}},
	}
	bucket := &fakeBucket{objects: map[string][]byte{}}
	store := &memStore{}

	rep, err := NewExporter(src, bucket, store, nil).Export(context.Background(), sid, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "reports/"+sid.String()+"/job-1.json", rep.S3Key)
	require.Len(t, store.rows, 1)

	var doc Document
	require.NoError(t, json.Unmarshal(bucket.objects[rep.S3Key], &doc))
	assert.Equal(t, int64(len(bucket.objects[rep.S3Key])), rep.SizeBytes)
	assert.Equal(t, 3, doc.Analytics.Total)
	assert.Equal(t, 2, doc.Analytics.CompletedCount)
	assert.Equal(t, 70, doc.Analytics.Averages.Innovation)
	assert.Equal(t, 67, doc.Analytics.ResponseRate)
}

func TestExporter_Errors(t *testing.T) {
	sid := uuid.New()
	bucket := &fakeBucket{objects: map[string][]byte{}}
	store := &memStore{}
	exp := NewExporter(fakeSource{session: models.Session{ID: sid}}, bucket, store, nil)

	_, err := exp.Export(context.Background(), uuid.New(), "job-1")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	bucket.fail = true
	_, err = exp.Export(context.Background(), sid, "job-2")
	assert.Error(t, err)
	assert.Empty(t, store.rows)
}

func TestExporter_RemovesObjectWhenRecordFails(t *testing.T) {
	sid := uuid.New()
	bucket := &fakeBucket{objects: map[string][]byte{}}
	store := &memStore{err: errors.New("db down")}

	_, err := NewExporter(fakeSource{session: models.Session{ID: sid}}, bucket, store, nil).Export(context.Background(), sid, "job-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record report")
	assert.Empty(t, bucket.objects)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sid := uuid.New()
	store := &memStore{}
	jobs := &fakeJobs{}
	h := NewHandler(store, &fakeBucket{}, jobs, nil)
	r := gin.New()
	r.GET("/api/sessions/:id/report", h.GetLatest)
	r.POST("/api/sessions/:id/report", h.Request)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/"+sid.String()+"/report", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/sessions/"+sid.String()+"/report", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, jobs.payloads, 1)
	assert.Equal(t, sid, jobs.payloads[0].SessionID)

	require.NoError(t, store.Create(context.Background(), &models.SessionReport{SessionID: sid, JobID: "job-9", S3Key: "reports/x/job-9.json"}))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/"+sid.String()+"/report", nil))
	require.Equal(t, http.StatusOK, w.Code)
	env, err := response.Decode[ReportResponse](w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/reports/x/job-9.json", env.Data.DownloadURL)
	assert.Equal(t, "job-9", env.Data.JobID)
}
