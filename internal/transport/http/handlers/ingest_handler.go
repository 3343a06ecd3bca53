package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apmDomain "brokle/internal/core/domain/apm"
	"brokle/internal/transport/http/middleware"
	"brokle/pkg/response"
)

// IngestHandler serves the write endpoints: trace batches, error reports,
// and deploy markers.
type IngestHandler struct {
	svc    apmDomain.APMService
	logger *slog.Logger
}

// NewIngestHandler constructs an IngestHandler.
func NewIngestHandler(svc apmDomain.APMService, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{svc: svc, logger: logger}
}

// Traces handles POST /ingest/v1/traces.
func (h *IngestHandler) Traces(c *gin.Context) {
	var req apmDomain.OTLPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid OTLP request body")
		return
	}

	projectID := middleware.ProjectIDFromContext(c)
	n, err := h.svc.IngestSpans(c.Request.Context(), projectID, &req)
	if err != nil {
		h.logger.Error("ingest spans failed", "error", err, "project_id", projectID)
		response.Error(c, err)
		return
	}

	response.Accepted(c, gin.H{"spans_ingested": n})
}

// Error handles POST /ingest/errors.
func (h *IngestHandler) Error(c *gin.Context) {
	var in apmDomain.IncomingError
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid error report body")
		return
	}

	projectID := middleware.ProjectIDFromContext(c)
	id, err := h.svc.IngestError(c.Request.Context(), projectID, &in)
	if err != nil {
		h.logger.Error("ingest error failed", "error", err, "project_id", projectID)
		response.Error(c, err)
		return
	}

	response.Accepted(c, gin.H{"id": id.String()})
}

// errorBatchRequest is the body shape for POST /ingest/errors/batch.
type errorBatchRequest struct {
	Errors []*apmDomain.IncomingError `json:"errors"`
}

// ErrorBatch handles POST /ingest/errors/batch: 202 unless every item failed.
func (h *IngestHandler) ErrorBatch(c *gin.Context) {
	var body errorBatchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid error batch body")
		return
	}

	projectID := middleware.ProjectIDFromContext(c)
	succeeded, failed := h.svc.IngestErrorsBatch(c.Request.Context(), projectID, body.Errors)

	if succeeded == 0 && failed > 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"succeeded": succeeded, "failed": failed})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"succeeded": succeeded, "failed": failed})
}

// Deploy handles POST /ingest/deploys.
func (h *IngestHandler) Deploy(c *gin.Context) {
	var in apmDomain.IncomingDeploy
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid deploy marker body")
		return
	}

	projectID := middleware.ProjectIDFromContext(c)
	id, err := h.svc.IngestDeploy(c.Request.Context(), projectID, &in)
	if err != nil {
		h.logger.Error("ingest deploy failed", "error", err, "project_id", projectID)
		response.Error(c, err)
		return
	}

	response.Accepted(c, gin.H{"id": id.String()})
}
