package sessions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-pulse/backend/internal/models"
)

const uniqueViolation = "23505"

// Repository handles session persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionColumns = `id, code, name, is_active, COALESCE(created_by, '00000000-0000-0000-0000-000000000000'::uuid), created_at, ended_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.IsActive, &s.CreatedBy, &s.CreatedAt, &s.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new session. A duplicate code returns models.ErrCodeTaken.
func (r *Repository) Create(ctx context.Context, s *models.Session) error {
	const q = `INSERT INTO sessions (id, code, name, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q, s.ID, s.Code, s.Name, s.IsActive, s.CreatedBy).Scan(&s.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return models.ErrCodeTaken
	}
	return err
}

// GetByID returns a session by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// GetByCode returns a session by its join code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE code = $1`, code))
}

// ListByAdmin returns sessions created by an admin, newest first.
func (r *Repository) ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE created_by = $1 ORDER BY created_at DESC`, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// Update applies a partial update and returns the stored session.
// Reactivating an ended session fails with models.ErrSessionInactive.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, patch models.SessionPatch) (*models.Session, error) {
	const q = `UPDATE sessions SET
		name = COALESCE($2, name),
		is_active = COALESCE($3, is_active),
		ended_at = COALESCE(ended_at, $4)
		WHERE id = $1 AND NOT (COALESCE($3::boolean, FALSE) AND ended_at IS NOT NULL)
		RETURNING ` + sessionColumns
	session, err := scanSession(r.pool.QueryRow(ctx, q, id, patch.Name, patch.IsActive, patch.EndedAt))
	if !errors.Is(err, models.ErrSessionNotFound) {
		return session, err
	}
	var ended bool
	err = r.pool.QueryRow(ctx, `SELECT ended_at IS NOT NULL FROM sessions WHERE id = $1`, id).Scan(&ended)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, models.ErrSessionNotFound
	case err != nil:
		return nil, err
	case ended:
		return nil, models.ErrSessionInactive
	}
	return nil, models.ErrSessionNotFound
}

// Delete removes a session and, by cascade, its participants and logs.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}
