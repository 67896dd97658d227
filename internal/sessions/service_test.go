package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-pulse/backend/internal/events"
	"github.com/aura-pulse/backend/internal/middleware"
	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/pkg/queue"
	"github.com/aura-pulse/backend/pkg/response"
)

type memSessions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.Session
}

func (m *memSessions) Create(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.Code == s.Code {
			return models.ErrCodeTaken
		}
	}
	s.CreatedAt = time.Now().UTC()
	m.rows[s.ID] = s.Clone()
	return nil
}

func (m *memSessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	c := s.Clone()
	return &c, nil
}

func (m *memSessions) GetByCode(_ context.Context, code string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.Code == code {
			c := s.Clone()
			return &c, nil
		}
	}
	return nil, models.ErrSessionNotFound
}

func (m *memSessions) ListByAdmin(_ context.Context, adminID uuid.UUID) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.rows {
		if s.CreatedBy == adminID {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (m *memSessions) Update(_ context.Context, id uuid.UUID, patch models.SessionPatch) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if s.EndedAt != nil {
		if patch.IsActive != nil && *patch.IsActive {
			return nil, models.ErrSessionInactive
		}
		patch.EndedAt = nil
	}
	patch.ApplyTo(&s)
	m.rows[id] = s
	c := s.Clone()
	return &c, nil
}

func (m *memSessions) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return models.ErrSessionNotFound
	}
	delete(m.rows, id)
	return nil
}

type memParticipants struct {
	rows []models.Participant
}

func (m *memParticipants) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	out := []models.Participant{}
	for _, p := range m.rows {
		if p.SessionID == sessionID {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (m *memParticipants) Delete(_ context.Context, sessionID, id uuid.UUID) error {
	for i, p := range m.rows {
		if p.ID == id && p.SessionID == sessionID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return models.ErrParticipantNotFound
}

type spy struct {
	mu      sync.Mutex
	events  []events.Event
	closed  []uuid.UUID
	reports []queue.ReportExportPayload
	failQ   bool
}

func (s *spy) Publish(ev events.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *spy) Teardown(id uuid.UUID) {
	s.mu.Lock()
	s.closed = append(s.closed, id)
	s.mu.Unlock()
}

func (s *spy) EnqueueReportExport(_ context.Context, p queue.ReportExportPayload) (string, error) {
	if s.failQ {
		return "", errors.New("redis down")
	}
	s.mu.Lock()
	s.reports = append(s.reports, p)
	s.mu.Unlock()
	return "job-1", nil
}

type fixture struct {
	router       *gin.Engine
	svc          *Service
	sessions     *memSessions
	participants *memParticipants
	spy          *spy
	adminID      uuid.UUID
	role         models.Role
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{
		sessions:     &memSessions{rows: map[uuid.UUID]models.Session{}},
		participants: &memParticipants{},
		spy:          &spy{},
		adminID:      uuid.New(),
		role:         models.RoleAdmin,
	}
	f.svc = NewService(f.sessions, f.participants, f.spy, f.spy, f.spy, nil)
	h := NewHandler(f.svc, nil)

	f.router = gin.New()
	f.router.GET("/api/sessions/code/:code", h.GetByCode)
	api := f.router.Group("/api/sessions", func(c *gin.Context) {
		c.Set(middleware.ContextAdminID, f.adminID)
		c.Set(middleware.ContextAdminRole, string(f.role))
		c.Next()
	})
	api.POST("", h.Create)
	api.GET("", h.List)
	api.GET("/:id", h.Viewer(), h.GetByID)
	api.PATCH("/:id/active", h.Owner(), h.SetActive)
	api.POST("/:id/end", h.Owner(), h.End)
	api.DELETE("/:id", h.Owner(), h.Delete)
	api.DELETE("/:id/participants/:pid", h.Owner(), h.RemoveParticipant)
	api.GET("/:id/snapshot", h.Viewer(), h.Snapshot)
	return f
}

func do[T any](t *testing.T, r *gin.Engine, method, path string, body any) (int, response.Envelope[T]) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, &buf))
	env, err := response.Decode[T](w.Body.Bytes())
	require.NoError(t, err)
	return w.Code, env
}

func (f *fixture) create(t *testing.T) models.Session {
	t.Helper()
	code, env := do[models.Session](t, f.router, http.MethodPost, "/api/sessions", CreateRequest{Name: "Expo"})
	require.Equal(t, http.StatusCreated, code)
	return env.Data
}

func TestCreate_RetriesOnCodeCollision(t *testing.T) {
	f := newFixture(t)
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	f.svc.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	first := f.create(t)
	second := f.create(t)
	assert.Equal(t, "AAAAAA", first.Code)
	assert.Equal(t, "BBBBBB", second.Code)
	assert.True(t, second.IsActive)
	assert.Equal(t, f.adminID, second.CreatedBy)
}

func TestCreate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	f.svc.newCode = func() (string, error) { return "AAAAAA", nil }
	f.create(t)
	code, env := do[models.Session](t, f.router, http.MethodPost, "/api/sessions", CreateRequest{Name: "Again"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, env.Success)
}

func TestEnd_PublishesAndQueuesReport(t *testing.T) {
	f := newFixture(t)
	s := f.create(t)

	code, env := do[EndResult](t, f.router, http.MethodPost, "/api/sessions/"+s.ID.String()+"/end", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.False(t, env.Data.IsActive)
	require.NotNil(t, env.Data.EndedAt)

	require.Len(t, f.spy.events, 1)
	upd, ok := f.spy.events[0].(events.SessionUpdated)
	require.True(t, ok)
	require.NotNil(t, upd.Patch.IsActive)
	assert.False(t, *upd.Patch.IsActive)
	assert.Equal(t, []queue.ReportExportPayload{{SessionID: s.ID, RequestedBy: f.adminID}}, f.spy.reports)

	code, _ = do[models.Session](t, f.router, http.MethodGet, "/api/sessions/code/"+s.Code, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestEnd_QueueFailureStillEnds(t *testing.T) {
	f := newFixture(t)
	f.spy.failQ = true
	s := f.create(t)
	code, env := do[EndResult](t, f.router, http.MethodPost, "/api/sessions/"+s.ID.String()+"/end", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, env.Data.IsActive)
}

func TestSetActive(t *testing.T) {
	f := newFixture(t)
	s := f.create(t)
	off := false
	code, env := do[models.Session](t, f.router, http.MethodPatch, "/api/sessions/"+s.ID.String()+"/active", SetActiveRequest{IsActive: &off})
	require.Equal(t, http.StatusOK, code)
	assert.False(t, env.Data.IsActive)
	assert.Nil(t, env.Data.EndedAt)

	code, _ = do[models.Session](t, f.router, http.MethodPatch, "/api/sessions/"+s.ID.String()+"/active", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSetActive_EndedSessionStaysEnded(t *testing.T) {
	f := newFixture(t)
	s := f.create(t)
	code, _ := do[EndResult](t, f.router, http.MethodPost, "/api/sessions/"+s.ID.String()+"/end", nil)
	require.Equal(t, http.StatusOK, code)
	published := len(f.spy.events)

	on := true
	code, env := do[models.Session](t, f.router, http.MethodPatch, "/api/sessions/"+s.ID.String()+"/active", SetActiveRequest{IsActive: &on})
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.Success)
	assert.Len(t, f.spy.events, published)

	stored, err := f.sessions.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.NotNil(t, stored.EndedAt)
}

func TestOnlyCreatorManagesSession(t *testing.T) {
	f := newFixture(t)
	s := f.create(t)
	base := "/api/sessions/" + s.ID.String()
	off := false
	pid := uuid.New()
	f.participants.rows = []models.Participant{{ID: pid, SessionID: s.ID, Name: "Ana"}}

	f.adminID = uuid.New()
	cases := []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, base, nil},
		{http.MethodGet, base + "/snapshot", nil},
		{http.MethodPatch, base + "/active", SetActiveRequest{IsActive: &off}},
		{http.MethodPost, base + "/end", nil},
		{http.MethodDelete, base + "/participants/" + pid.String(), nil},
		{http.MethodDelete, base, nil},
	}
	for _, tc := range cases {
		code, env := do[any](t, f.router, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusForbidden, code, "%s %s", tc.method, tc.path)
		assert.False(t, env.Success)
	}
	assert.Empty(t, f.spy.events)
	assert.Empty(t, f.spy.closed)
	assert.Len(t, f.participants.rows, 1)

	f.role = models.RoleObserver
	code, _ := do[SnapshotResponse](t, f.router, http.MethodGet, base+"/snapshot", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do[EndResult](t, f.router, http.MethodPost, base+"/end", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestDelete_ClosesStreams(t *testing.T) {
	f := newFixture(t)
	s := f.create(t)
	code, _ := do[any](t, f.router, http.MethodDelete, "/api/sessions/"+s.ID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []uuid.UUID{s.ID}, f.spy.closed)

	code, _ = do[any](t, f.router, http.MethodDelete, "/api/sessions/"+s.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Len(t, f.spy.closed, 1)
}

func TestRemoveParticipantAndSnapshot(t *testing.T) {
	f := newFixture(t)
	s := f.create(t)
	ana := models.Participant{ID: uuid.New(), SessionID: s.ID, Name: "Ana"}
	ben := models.Participant{ID: uuid.New(), SessionID: s.ID, Name: "Ben"}
	f.participants.rows = []models.Participant{ana, ben}

	code, _ := do[any](t, f.router, http.MethodDelete, "/api/sessions/"+s.ID.String()+"/participants/"+ana.ID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, f.spy.events, 1)
	assert.Equal(t, events.ParticipantLeft{SessionID: s.ID, ParticipantID: ana.ID}, f.spy.events[0])

	code, _ = do[any](t, f.router, http.MethodDelete, "/api/sessions/"+s.ID.String()+"/participants/"+ana.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, snap := do[SnapshotResponse](t, f.router, http.MethodGet, "/api/sessions/"+s.ID.String()+"/snapshot", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, s.ID, snap.Data.Session.ID)
	require.Len(t, snap.Data.Participants, 1)
	assert.Equal(t, "Ben", snap.Data.Participants[0].Name)
}

func TestNotFoundAndBadID(t *testing.T) {
	f := newFixture(t)
	code, _ := do[any](t, f.router, http.MethodGet, "/api/sessions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do[any](t, f.router, http.MethodGet, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do[any](t, f.router, http.MethodGet, "/api/sessions/code/ZZZZZZ", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
