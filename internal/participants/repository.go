package participants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-pulse/backend/internal/models"
)

// Repository handles participant persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participant repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const participantColumns = `id, session_id, name, cohort, answers, completed, preference_scores, joined_at, completed_at`

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	var answers, scores []byte
	err := row.Scan(&p.ID, &p.SessionID, &p.Name, &p.Cohort, &answers, &p.Completed, &scores, &p.JoinedAt, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrParticipantNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &p.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	if len(scores) > 0 {
		var s models.PreferenceScores
		if err := json.Unmarshal(scores, &s); err != nil {
			return nil, fmt.Errorf("decode scores: %w", err)
		}
		p.Scores = &s
	}
	return &p, nil
}

// Create inserts a new participant.
func (r *Repository) Create(ctx context.Context, p *models.Participant) error {
	answers, err := json.Marshal(p.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	const q = `INSERT INTO participants (id, session_id, name, cohort, answers, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.pool.Exec(ctx, q, p.ID, p.SessionID, p.Name, p.Cohort, answers, p.JoinedAt)
	return err
}

// GetByID returns a participant by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	return scanParticipant(r.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id))
}

// ListBySession returns a session's participants in join order.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = $1 ORDER BY joined_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// SaveAnswer merges one answer into the answers of a participant that has not completed
// and returns the merged map. publish runs before the transaction commits, while the row is
// locked, so updates to one participant are announced in the order they were written.
func (r *Repository) SaveAnswer(ctx context.Context, id uuid.UUID, index int, a models.Answer, publish func(map[int]models.Answer)) (map[int]models.Answer, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode answer: %w", err)
	}
	const q = `UPDATE participants
		SET answers = COALESCE(answers, '{}'::jsonb) || jsonb_build_object($2::text, $3::jsonb)
		WHERE id = $1 AND completed = FALSE
		RETURNING answers`
	var answers map[int]models.Answer
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var merged []byte
		err := tx.QueryRow(ctx, q, id, strconv.Itoa(index), raw).Scan(&merged)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missingOrCompleted(ctx, id)
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(merged, &answers); err != nil {
			return fmt.Errorf("decode answers: %w", err)
		}
		if publish != nil {
			publish(answers)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return answers, nil
}

// MarkCompleted stores the final scores once. A second call returns models.ErrAlreadyCompleted.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, scores models.PreferenceScores, at time.Time) error {
	raw, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE participants SET completed = TRUE, preference_scores = $2, completed_at = $3 WHERE id = $1 AND completed = FALSE`,
		id, raw, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrCompleted(ctx, id)
	}
	return nil
}

// Delete removes a participant from a session.
func (r *Repository) Delete(ctx context.Context, sessionID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM participants WHERE id = $1 AND session_id = $2`, id, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrParticipantNotFound
	}
	return nil
}

func (r *Repository) missingOrCompleted(ctx context.Context, id uuid.UUID) error {
	var completed bool
	err := r.pool.QueryRow(ctx, `SELECT completed FROM participants WHERE id = $1`, id).Scan(&completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrParticipantNotFound
	}
	if err != nil {
		return err
	}
	return models.ErrAlreadyCompleted
}
