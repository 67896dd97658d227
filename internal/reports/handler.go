package reports

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-pulse/backend/internal/middleware"
	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/pkg/queue"
	"github.com/aura-pulse/backend/pkg/response"
)

// Presigner signs download links for report objects.
type Presigner interface {
	PresignedReportURL(ctx context.Context, key string) (string, error)
}

// Enqueuer schedules report exports.
type Enqueuer interface {
	EnqueueReportExport(ctx context.Context, payload queue.ReportExportPayload) (string, error)
}

// ReportResponse is the data of GET /api/sessions/:id/report.
type ReportResponse struct {
	models.SessionReport
	DownloadURL string `json:"download_url"`
}

// Handler handles report endpoints. presigner and jobs may be nil when S3 or Redis is not configured.
type Handler struct {
	store     Store
	presigner Presigner
	jobs      Enqueuer
	logger    *zap.Logger
}

// NewHandler creates a report handler.
func NewHandler(store Store, presigner Presigner, jobs Enqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, presigner: presigner, jobs: jobs, logger: logger}
}

// GetLatest handles GET /api/sessions/:id/report.
func (h *Handler) GetLatest(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	rep, err := h.store.LatestBySession(c.Request.Context(), sessionID)
	if errors.Is(err, ErrNoReport) {
		response.NotFound(c, "no report yet")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load report")
		return
	}
	out := ReportResponse{SessionReport: *rep, DownloadURL: rep.S3URL}
	if h.presigner != nil {
		url, err := h.presigner.PresignedReportURL(c.Request.Context(), rep.S3Key)
		if err != nil {
			h.logger.Warn("presign report", zap.String("s3_key", rep.S3Key), zap.Error(err))
		} else {
			out.DownloadURL = url
		}
	}
	response.OK(c, out)
}

// Request handles POST /api/sessions/:id/report: queue a fresh export.
func (h *Handler) Request(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	if h.jobs == nil {
		response.ServiceUnavailable(c, "report export is not configured")
		return
	}
	jobID, err := h.jobs.EnqueueReportExport(c.Request.Context(), queue.ReportExportPayload{
		SessionID:   sessionID,
		RequestedBy: middleware.AdminID(c),
	})
	if err != nil {
		h.logger.Error("enqueue report export", zap.String("session_id", sessionID.String()), zap.Error(err))
		response.Internal(c, "failed to queue report")
		return
	}
	response.Accepted(c, gin.H{"job_id": jobID})
}
