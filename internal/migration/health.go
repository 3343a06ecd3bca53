package migration

import (
	"context"
	"log/slog"
	"time"
)

// HealthService reports on the embedded store's schema health (SPEC_FULL
// SUPPLEMENTED FEATURES). It is not wired into /healthz, which
// handlers.HealthHandler serves from a database ping.
type HealthService struct {
	manager *Manager
	logger  *slog.Logger
}

// HealthCheckResponse is the schema health report GetHealthStatus returns.
type HealthCheckResponse struct {
	Status          string          `json:"status"`
	Timestamp       time.Time       `json:"timestamp"`
	Database        MigrationStatus `json:"database"`
	Recommendations []string        `json:"recommendations,omitempty"`
}

func NewHealthService(manager *Manager, logger *slog.Logger) *HealthService {
	return &HealthService{manager: manager, logger: logger}
}

// GetHealthStatus reports the schema's migration state and recommends
// remediation when the database is dirty.
func (h *HealthService) GetHealthStatus(ctx context.Context) HealthCheckResponse {
	status, err := h.manager.Status()
	resp := HealthCheckResponse{Timestamp: time.Now().UTC(), Database: status}

	switch {
	case err != nil:
		resp.Status = "error"
		resp.Recommendations = append(resp.Recommendations, "schema version could not be determined: "+err.Error())
	case status.IsDirty:
		resp.Status = "degraded"
		resp.Recommendations = append(resp.Recommendations,
			"the schema is marked dirty; inspect the last migration and clear the dirty flag in the migrations version table once corrected")
	default:
		resp.Status = "healthy"
	}

	return resp
}
