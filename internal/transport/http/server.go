// Package http wires the Gin engine: middleware, ingest/read routes, and
// the health/metrics endpoints.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"brokle/internal/config"
	apmDomain "brokle/internal/core/domain/apm"
	"brokle/internal/transport/http/handlers"
	"brokle/internal/transport/http/middleware"
)

// Server wraps the Gin engine and the stdlib http.Server it's bound to.
type Server struct {
	config   *config.Config
	logger   *slog.Logger
	handlers *handlers.Handlers
	projects apmDomain.ProjectRepository
	rpc      http.Handler
	engine   *gin.Engine
	server   *http.Server
}

// NewServer constructs a Server. Routes are registered but the listener
// isn't opened until Start. rpc serves the JSON-RPC tool interface's HTTP
// POST transport at /rpc; pass nil to omit the route.
func NewServer(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers, projects apmDomain.ProjectRepository, rpc http.Handler) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSAllowedOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type", "X-API-Key", "X-Request-ID"}
	engine.Use(cors.New(corsConfig))

	s := &Server{config: cfg, logger: logger, handlers: h, projects: projects, rpc: rpc, engine: engine}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger(s.logger))
	s.engine.Use(middleware.Recovery(s.logger))
	s.engine.Use(middleware.Metrics())

	s.engine.GET("/healthz", s.handlers.Health.Check)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if s.rpc != nil {
		s.engine.POST("/rpc", gin.WrapH(s.rpc))
	}

	ingest := s.engine.Group("/ingest")
	ingest.Use(maxBodyBytes(s.config.Ingest.MaxBodyBytes))
	ingest.Use(middleware.ProjectAuth(s.projects, s.config.Ingest.EnableProjects))
	{
		ingest.POST("/v1/traces", s.handlers.Ingest.Traces)
		ingest.POST("/errors", s.handlers.Ingest.Error)
		ingest.POST("/errors/batch", s.handlers.Ingest.ErrorBatch)
		ingest.POST("/deploys", s.handlers.Ingest.Deploy)
	}

	api := s.engine.Group("/api/v1")
	api.Use(middleware.ProjectAuth(s.projects, s.config.Ingest.EnableProjects))
	{
		traces := api.Group("/traces")
		traces.GET("", s.handlers.Read.ListTraces)
		traces.GET("/:id", s.handlers.Read.GetTrace)
		traces.GET("/:id/n-plus-one", s.handlers.Read.NPlusOne)

		errs := api.Group("/errors")
		errs.GET("", s.handlers.Read.ListErrors)
		errs.GET("/:id", s.handlers.Read.GetError)
		errs.GET("/:id/occurrences", s.handlers.Read.ErrorOccurrences)
		errs.GET("/:id/trend", s.handlers.Read.ErrorTrend)

		analytics := api.Group("/analytics")
		analytics.GET("/routes", s.handlers.Read.RouteSummaries)
		analytics.GET("/stats", s.handlers.Read.DashboardStats)
		analytics.GET("/slow-traces", s.handlers.Read.SlowTraces)

		deploys := api.Group("/deploys")
		deploys.GET("", s.handlers.Read.ListDeploys)
		deploys.GET("/latest", s.handlers.Read.LatestDeploy)
	}
}

// maxBodyBytes caps ingest request bodies at limit
// (IngestConfig.MaxBodyBytes, 10 MiB by default).
func maxBodyBytes(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// Start opens the listener. Blocks until Shutdown closes it.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.engine,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.logger.Info("starting HTTP server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
