package participants

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-pulse/backend/internal/events"
	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/internal/scoring"
	"github.com/aura-pulse/backend/pkg/utils"
)

// Store is the participant persistence the service needs.
type Store interface {
	Create(ctx context.Context, p *models.Participant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	// SaveAnswer merges one answer into the stored map and returns the result. publish is called
	// with the merged map before the write becomes visible to the next writer of the same participant.
	SaveAnswer(ctx context.Context, id uuid.UUID, index int, a models.Answer, publish func(map[int]models.Answer)) (map[int]models.Answer, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, scores models.PreferenceScores, at time.Time) error
}

// SessionLookup resolves the session a participant acts on.
type SessionLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetByCode(ctx context.Context, code string) (*models.Session, error)
}

// Publisher delivers domain events to every viewer of a session.
type Publisher interface {
	Publish(ev events.Event)
}

// Service implements the participant side of a session: join, answer, complete.
// Every accepted write is persisted first, then published.
type Service struct {
	store    Store
	sessions SessionLookup
	pub      Publisher
	scorer   scoring.Scorer
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a participant service.
func NewService(store Store, sessions SessionLookup, pub Publisher, scorer scoring.Scorer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scorer == nil {
		scorer = scoring.LikertScorer{}
	}
	return &Service{store: store, sessions: sessions, pub: pub, scorer: scorer, logger: logger, now: time.Now}
}

// Join adds a participant to the active session with the given code.
func (s *Service) Join(ctx context.Context, code, name, cohort string) (*models.Participant, error) {
	if !models.ValidCohort(cohort) {
		return nil, models.ErrInvalidCohort
	}
	session, err := s.sessions.GetByCode(ctx, utils.NormalizeSessionCode(code))
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, models.ErrSessionInactive
	}
	p := &models.Participant{
		ID:        uuid.New(),
		SessionID: session.ID,
		Name:      strings.TrimSpace(name),
		Cohort:    cohort,
		Answers:   map[int]models.Answer{},
		JoinedAt:  s.now().UTC(),
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create participant: %w", err)
	}
	s.pub.Publish(events.ParticipantJoined{SessionID: session.ID, Participant: p.Clone()})
	s.logger.Info("participant joined", zap.String("session_id", session.ID.String()), zap.String("participant_id", p.ID.String()))
	return p, nil
}

// SaveAnswer records one answer. It fails with models.ErrAlreadyCompleted once the participant completed.
func (s *Service) SaveAnswer(ctx context.Context, participantID uuid.UUID, index int, a models.Answer) (*models.Participant, error) {
	p, err := s.activeParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if err := p.SaveAnswer(index, a); err != nil {
		return nil, err
	}
	answers, err := s.store.SaveAnswer(ctx, p.ID, index, a, func(merged map[int]models.Answer) {
		patch := models.ParticipantPatch{Answers: merged}
		s.pub.Publish(events.ParticipantUpdated{SessionID: p.SessionID, ParticipantID: p.ID, Patch: patch})
	})
	if err != nil {
		return nil, err
	}
	p.Answers = answers
	return p, nil
}

// Complete scores the participant's answers once and marks them completed.
func (s *Service) Complete(ctx context.Context, participantID uuid.UUID) (*models.Participant, error) {
	p, err := s.activeParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	scores := s.scorer.Score(p.Answers)
	if err := p.Complete(scores, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.MarkCompleted(ctx, p.ID, *p.Scores, *p.CompletedAt); err != nil {
		return nil, err
	}
	s.pub.Publish(events.ParticipantCompleted{
		SessionID:     p.SessionID,
		ParticipantID: p.ID,
		Scores:        *p.Scores,
		CompletedAt:   *p.CompletedAt,
	})
	s.logger.Info("participant completed", zap.String("session_id", p.SessionID.String()), zap.String("participant_id", p.ID.String()))
	return p, nil
}

func (s *Service) activeParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Completed {
		return nil, models.ErrAlreadyCompleted
	}
	session, err := s.sessions.GetByID(ctx, p.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, models.ErrSessionInactive
	}
	return p, nil
}
