package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-pulse/backend/internal/analytics"
	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/pkg/storage"
)

// SnapshotSource loads a session and its participants.
type SnapshotSource interface {
	Snapshot(ctx context.Context, sessionID uuid.UUID) (*models.Session, []models.Participant, error)
}

// Uploader stores a report body under key and returns its URL.
type Uploader interface {
	UploadReport(ctx context.Context, key string, body []byte) (string, error)
	DeleteReport(ctx context.Context, key string) error
}

// Store records uploaded reports.
type Store interface {
	Create(ctx context.Context, rep *models.SessionReport) error
	LatestBySession(ctx context.Context, sessionID uuid.UUID) (*models.SessionReport, error)
}

// Document is the JSON body of an exported report.
type Document struct {
	Session      models.Session       `json:"session"`
	GeneratedAt  time.Time            `json:"generated_at"`
	Analytics    analytics.Result     `json:"analytics"`
	Participants []models.Participant `json:"participants"`
}

// Exporter aggregates a session and uploads the result.
type Exporter struct {
	source     SnapshotSource
	uploader   Uploader
	store      Store
	aggregator *analytics.Aggregator
	logger     *zap.Logger
	now        func() time.Time
}

// NewExporter creates a report exporter.
func NewExporter(source SnapshotSource, uploader Uploader, store Store, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		source:     source,
		uploader:   uploader,
		store:      store,
		aggregator: analytics.Default(),
		logger:     logger,
		now:        time.Now,
	}
}

// Export builds the report for sessionID and uploads it under the job's key.
func (e *Exporter) Export(ctx context.Context, sessionID uuid.UUID, jobID string) (*models.SessionReport, error) {
	session, participants, err := e.source.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	doc := Document{
		Session:      *session,
		GeneratedAt:  e.now().UTC(),
		Analytics:    e.aggregator.Aggregate(*session, participants),
		Participants: participants,
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	key := storage.ReportKey(sessionID.String(), jobID)
	url, err := e.uploader.UploadReport(ctx, key, body)
	if err != nil {
		return nil, fmt.Errorf("upload report: %w", err)
	}
	rep := &models.SessionReport{
		SessionID: sessionID,
		JobID:     jobID,
		S3Key:     key,
		S3URL:     url,
		SizeBytes: int64(len(body)),
	}
	if err := e.store.Create(ctx, rep); err != nil {
		// Unrecorded objects are never served; remove it so retries start clean.
		if derr := e.uploader.DeleteReport(ctx, key); derr != nil {
			e.logger.Warn("delete orphaned report", zap.String("s3_key", key), zap.Error(derr))
		}
		return nil, fmt.Errorf("record report: %w", err)
	}
	e.logger.Info("report exported", zap.String("session_id", sessionID.String()), zap.String("s3_key", key), zap.Int("bytes", len(body)))
	return rep, nil
}
