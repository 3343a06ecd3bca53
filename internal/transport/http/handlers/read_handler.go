package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apmDomain "brokle/internal/core/domain/apm"
	"brokle/internal/transport/http/middleware"
	"brokle/pkg/response"
	"brokle/pkg/ulid"
)

// ReadHandler serves the trace, error, and analytics read endpoints.
type ReadHandler struct {
	svc    apmDomain.APMService
	logger *slog.Logger
}

// NewReadHandler constructs a ReadHandler.
func NewReadHandler(svc apmDomain.APMService, logger *slog.Logger) *ReadHandler {
	return &ReadHandler{svc: svc, logger: logger}
}

// ListTraces handles GET /traces.
func (h *ReadHandler) ListTraces(c *gin.Context) {
	f := apmDomain.TraceFilter{
		ProjectID: middleware.ProjectIDFromContext(c),
		RootType:  c.Query("root_type"),
		Search:    c.Query("search"),
		Sort:      c.DefaultQuery("sort", "recent"),
	}
	if since := parseSince(c); since != nil {
		f.Since = since
	}
	if v, err := strconv.ParseInt(c.Query("min_duration_ms"), 10, 64); err == nil {
		f.MinDuration = v
	}
	page, limit := response.ParsePaginationParams(c.Query("page"), c.Query("limit"))
	f.Limit = limit
	f.Offset = (page - 1) * limit

	items, err := h.svc.ListTraces(c.Request.Context(), f)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

// GetTrace handles GET /traces/:id.
func (h *ReadHandler) GetTrace(c *gin.Context) {
	view, err := h.svc.GetTrace(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if view == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trace not found"})
		return
	}
	response.Success(c, view)
}

// NPlusOne handles GET /traces/:id/n-plus-one.
func (h *ReadHandler) NPlusOne(c *gin.Context) {
	issues, err := h.svc.DetectNPlusOne(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, issues)
}

// ListErrors handles GET /errors.
func (h *ReadHandler) ListErrors(c *gin.Context) {
	f := apmDomain.ErrorFilter{
		ProjectID: middleware.ProjectIDFromContext(c),
		Status:    c.Query("status"),
		Search:    c.Query("search"),
		SortBy:    c.DefaultQuery("sort", "last_seen"),
	}
	if since := parseSince(c); since != nil {
		f.Since = since
	}
	page, limit := response.ParsePaginationParams(c.Query("page"), c.Query("limit"))
	f.Limit = limit
	f.Offset = (page - 1) * limit

	groups, err := h.svc.ListErrors(c.Request.Context(), f)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, groups)
}

// GetError handles GET /errors/:id.
func (h *ReadHandler) GetError(c *gin.Context) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid error group id")
		return
	}

	group, err := h.svc.GetError(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if group == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "error group not found"})
		return
	}
	response.Success(c, group)
}

// ErrorOccurrences handles GET /errors/:id/occurrences.
func (h *ReadHandler) ErrorOccurrences(c *gin.Context) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid error group id")
		return
	}

	limit := 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}

	occurrences, err := h.svc.ListOccurrences(c.Request.Context(), id, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, occurrences)
}

// ErrorTrend handles GET /errors/:id/trend.
func (h *ReadHandler) ErrorTrend(c *gin.Context) {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid error group id")
		return
	}

	trend, err := h.svc.ErrorTrend24h(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, trend)
}

// RouteSummaries handles GET /analytics/routes.
func (h *ReadHandler) RouteSummaries(c *gin.Context) {
	since := sinceOrDefault(c, 24*time.Hour)
	sortKey := apmDomain.RouteSummarySort(c.DefaultQuery("sort", string(apmDomain.SortAvg)))

	summaries, err := h.svc.RouteSummaries(c.Request.Context(), middleware.ProjectIDFromContext(c), since, sortKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summaries)
}

// DashboardStats handles GET /analytics/stats: count_since, latency_stats,
// and hourly_stats combined into one payload.
func (h *ReadHandler) DashboardStats(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := middleware.ProjectIDFromContext(c)
	since := sinceOrDefault(c, 24*time.Hour)

	count, err := h.svc.CountSince(ctx, projectID, since)
	if err != nil {
		response.Error(c, err)
		return
	}
	latency, err := h.svc.LatencyStats(ctx, projectID, since)
	if err != nil {
		response.Error(c, err)
		return
	}
	hourly, err := h.svc.HourlyStats(ctx, projectID, 24)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{
		"count_since":  count,
		"latency":      latency,
		"hourly_stats": hourly,
	})
}

// SlowTraces handles GET /analytics/slow-traces.
func (h *ReadHandler) SlowTraces(c *gin.Context) {
	threshold := int64(500)
	if v, err := strconv.ParseInt(c.Query("threshold_ms"), 10, 64); err == nil && v > 0 {
		threshold = v
	}
	limit := 20
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}

	items, err := h.svc.SlowTraces(c.Request.Context(), middleware.ProjectIDFromContext(c), threshold, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

// ListDeploys handles GET /deploys.
func (h *ReadHandler) ListDeploys(c *gin.Context) {
	limit := 50
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}

	deploys, err := h.svc.ListDeploys(c.Request.Context(), middleware.ProjectIDFromContext(c), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, deploys)
}

// LatestDeploy handles GET /deploys/latest.
func (h *ReadHandler) LatestDeploy(c *gin.Context) {
	deploy, err := h.svc.LatestDeploy(c.Request.Context(), middleware.ProjectIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if deploy == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no deploys recorded"})
		return
	}
	response.Success(c, deploy)
}

func parseSince(c *gin.Context) *time.Time {
	raw := c.Query("since")
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func sinceOrDefault(c *gin.Context, d time.Duration) time.Time {
	if t := parseSince(c); t != nil {
		return *t
	}
	return time.Now().UTC().Add(-d)
}
