package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-pulse/backend/internal/events"
	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/pkg/queue"
	"github.com/aura-pulse/backend/pkg/utils"
)

// maxCodeAttempts bounds retries when a generated code collides.
const maxCodeAttempts = 5

// Store is the session persistence the service needs.
type Store interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetByCode(ctx context.Context, code string) (*models.Session, error)
	ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]models.Session, error)
	// Update fails with models.ErrSessionInactive when the patch reactivates an ended session.
	Update(ctx context.Context, id uuid.UUID, patch models.SessionPatch) (*models.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ParticipantStore lists and removes a session's participants.
type ParticipantStore interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
	Delete(ctx context.Context, sessionID, id uuid.UUID) error
}

// Publisher delivers domain events to every viewer of a session.
type Publisher interface {
	Publish(ev events.Event)
}

// StreamCloser tears down every open stream of a session, on every instance.
type StreamCloser interface {
	Teardown(sessionID uuid.UUID)
}

// ReportQueue schedules the final report for an ended session.
type ReportQueue interface {
	EnqueueReportExport(ctx context.Context, payload queue.ReportExportPayload) (string, error)
}

// Service implements the admin side of sessions.
type Service struct {
	store        Store
	participants ParticipantStore
	pub          Publisher
	streams      StreamCloser
	reports      ReportQueue
	logger       *zap.Logger
	now          func() time.Time
	newCode      func() (string, error)
}

// NewService creates a session service. reports may be nil when no queue is configured.
func NewService(store Store, participants ParticipantStore, pub Publisher, streams StreamCloser, reports ReportQueue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		participants: participants,
		pub:          pub,
		streams:      streams,
		reports:      reports,
		logger:       logger,
		now:          time.Now,
		newCode:      utils.GenerateSessionCode,
	}
}

// Create starts a new active session owned by adminID.
func (s *Service) Create(ctx context.Context, adminID uuid.UUID, name string) (*models.Session, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, err
		}
		session := &models.Session{
			ID:        uuid.New(),
			Code:      code,
			Name:      strings.TrimSpace(name),
			IsActive:  true,
			CreatedBy: adminID,
		}
		err = s.store.Create(ctx, session)
		if errors.Is(err, models.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		s.logger.Info("session created", zap.String("session_id", session.ID.String()), zap.String("code", code))
		return session, nil
	}
	return nil, models.ErrCodeTaken
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return s.store.GetByID(ctx, id)
}

// GetByCode returns a session by join code.
func (s *Service) GetByCode(ctx context.Context, code string) (*models.Session, error) {
	return s.store.GetByCode(ctx, utils.NormalizeSessionCode(code))
}

// List returns the admin's sessions.
func (s *Service) List(ctx context.Context, adminID uuid.UUID) ([]models.Session, error) {
	return s.store.ListByAdmin(ctx, adminID)
}

// SetActive toggles whether participants may join and answer. An ended session stays ended:
// reactivating it fails with models.ErrSessionInactive.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Session, error) {
	patch := models.SessionPatch{IsActive: &active}
	session, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.pub.Publish(events.SessionUpdated{SessionID: id, Patch: patch})
	return session, nil
}

// End soft-ends the session and queues its final report.
func (s *Service) End(ctx context.Context, id, requestedBy uuid.UUID) (*models.Session, error) {
	inactive := false
	at := s.now().UTC()
	session, err := s.store.Update(ctx, id, models.SessionPatch{IsActive: &inactive, EndedAt: &at})
	if err != nil {
		return nil, err
	}
	s.pub.Publish(events.SessionUpdated{
		SessionID: id,
		Patch:     models.SessionPatch{IsActive: &inactive, EndedAt: session.EndedAt},
	})
	if s.reports != nil {
		jobID, err := s.reports.EnqueueReportExport(ctx, queue.ReportExportPayload{SessionID: id, RequestedBy: requestedBy})
		if err != nil {
			// Ending still succeeds; POST /report re-queues the export.
			s.logger.Error("enqueue report export", zap.String("session_id", id.String()), zap.Error(err))
		} else {
			s.logger.Info("report export queued", zap.String("session_id", id.String()), zap.String("job_id", jobID))
		}
	}
	return session, nil
}

// Delete hard-deletes the session and closes its streams.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.streams.Teardown(id)
	s.logger.Info("session deleted", zap.String("session_id", id.String()))
	return nil
}

// RemoveParticipant deletes a participant and tells viewers.
func (s *Service) RemoveParticipant(ctx context.Context, sessionID, participantID uuid.UUID) error {
	if err := s.participants.Delete(ctx, sessionID, participantID); err != nil {
		return err
	}
	s.pub.Publish(events.ParticipantLeft{SessionID: sessionID, ParticipantID: participantID})
	return nil
}

// Snapshot returns the session and its participants in join order.
func (s *Service) Snapshot(ctx context.Context, id uuid.UUID) (*models.Session, []models.Participant, error) {
	session, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	participants, err := s.participants.ListBySession(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list participants: %w", err)
	}
	return session, participants, nil
}
