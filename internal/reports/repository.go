package reports

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-pulse/backend/internal/models"
)

// ErrNoReport is returned when a session has no exported report yet.
var ErrNoReport = errors.New("no report for session")

// Repository handles session_reports.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a report repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create records an uploaded report. Re-recording the same job is a no-op.
func (r *Repository) Create(ctx context.Context, rep *models.SessionReport) error {
	const q = `INSERT INTO session_reports (session_id, job_id, s3_key, s3_url, size_bytes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, rep.SessionID, rep.JobID, rep.S3Key, rep.S3URL, rep.SizeBytes)
	return err
}

// LatestBySession returns the most recent report of a session.
func (r *Repository) LatestBySession(ctx context.Context, sessionID uuid.UUID) (*models.SessionReport, error) {
	const q = `SELECT id, session_id, job_id, s3_key, s3_url, size_bytes, created_at
		FROM session_reports WHERE session_id = $1 ORDER BY created_at DESC LIMIT 1`
	var rep models.SessionReport
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&rep.ID, &rep.SessionID, &rep.JobID, &rep.S3Key, &rep.S3URL, &rep.SizeBytes, &rep.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoReport
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}
