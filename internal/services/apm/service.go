package apm

import (
	"log/slog"

	apmDomain "brokle/internal/core/domain/apm"
)

// service composes the ingestion, error, trace, analytics, and deploy
// services into the full contract exposed to HTTP and JSON-RPC
// collaborators (C10).
type service struct {
	*ingestionService
	*errorService
	*traceService
	*analyticsService
	*deployService
}

var _ apmDomain.APMService = (*service)(nil)

// New wires the five component services over a shared repository set.
func New(
	spans apmDomain.SpanRepository,
	errorGroups apmDomain.ErrorGroupRepository,
	deploys apmDomain.DeployRepository,
	transactor Transactor,
	logger *slog.Logger,
) apmDomain.APMService {
	errSvc := newErrorService(errorGroups, transactor, logger)

	return &service{
		ingestionService: newIngestionService(spans, errSvc, logger),
		errorService:     errSvc,
		traceService:     newTraceService(spans),
		analyticsService: newAnalyticsService(spans),
		deployService:    newDeployService(deploys),
	}
}
