package viewerlog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-pulse/backend/internal/models"
)

// Repository handles viewer_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a viewer log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LogJoin inserts a row when a presenter stream opens.
func (r *Repository) LogJoin(ctx context.Context, sessionID uuid.UUID, adminID *uuid.UUID, connectionID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO viewer_logs (session_id, admin_id, connection_id, connected_at) VALUES ($1, $2, $3, NOW())`,
		sessionID, adminID, connectionID)
	return err
}

// LogLeave closes the open row for a connection and records its duration.
func (r *Repository) LogLeave(ctx context.Context, sessionID uuid.UUID, connectionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE viewer_logs SET disconnect_at = NOW(), watch_seconds = GREATEST(0, EXTRACT(EPOCH FROM (NOW() - connected_at))::BIGINT)
		 WHERE session_id = $1 AND connection_id = $2 AND disconnect_at IS NULL`,
		sessionID, connectionID)
	return err
}

// ListBySession returns a session's presenter connections, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.ViewerLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, admin_id, connection_id, connected_at, disconnect_at, watch_seconds
		 FROM viewer_logs WHERE session_id = $1 ORDER BY connected_at DESC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ViewerLog{}
	for rows.Next() {
		var v models.ViewerLog
		if err := rows.Scan(&v.ID, &v.SessionID, &v.AdminID, &v.ConnectionID, &v.ConnectedAt, &v.DisconnectAt, &v.WatchSeconds); err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, rows.Err()
}
