package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"brokle/internal/config"
)

// healthPinger is the subset of *database.SQLiteDB health checking needs.
type healthPinger interface {
	Health() error
}

// HealthHandler serves /healthz.
type HealthHandler struct {
	cfg       *config.Config
	db        healthPinger
	startedAt time.Time
}

// NewHealthHandler constructs a HealthHandler. startedAt is the
// process-wide monotonic start time used for uptime reporting.
func NewHealthHandler(cfg *config.Config, db healthPinger, startedAt time.Time) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, startedAt: startedAt}
}

// Check reports process and database health.
func (h *HealthHandler) Check(c *gin.Context) {
	if err := h.db.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"name":       h.cfg.App.Name,
		"version":    h.cfg.App.Version,
		"uptime_sec": int64(time.Since(h.startedAt).Seconds()),
	})
}
