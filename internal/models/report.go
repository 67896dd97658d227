package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionReport is an exported analytics report stored in object storage.
type SessionReport struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	JobID     string    `json:"job_id"`
	S3Key     string    `json:"s3_key"`
	S3URL     string    `json:"s3_url"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// ViewerLog tracks one presenter stream connection.
type ViewerLog struct {
	ID           uuid.UUID  `json:"id"`
	SessionID    uuid.UUID  `json:"session_id"`
	AdminID      *uuid.UUID `json:"admin_id,omitempty"`
	ConnectionID string     `json:"connection_id"`
	ConnectedAt  time.Time  `json:"connected_at"`
	DisconnectAt *time.Time `json:"disconnected_at,omitempty"`
	WatchSeconds int64      `json:"watch_seconds"`
}
