package apm

import (
	"log/slog"

	"brokle/internal/config"
	apmDomain "brokle/internal/core/domain/apm"
)

// Scheduler owns every periodic background task and starts/stops them
// independently, so a stall in one never blocks another.
type Scheduler struct {
	rollup    *RollupWorker
	retention *RetentionWorker
}

// NewScheduler wires the rollup and retention workers. Session cleanup,
// named in the rollup/retention design as a task that "shares the
// scheduler pattern," is not scheduled here: it operates on a cookie
// session store that this system does not implement.
func NewScheduler(
	logger *slog.Logger,
	cfg *config.Config,
	spans apmDomain.SpanRepository,
	errorGroups apmDomain.ErrorGroupRepository,
	rollupRepo apmDomain.RollupRepository,
	deployRepo apmDomain.DeployRepository,
	db vacuumer,
) *Scheduler {
	return &Scheduler{
		rollup:    NewRollupWorker(logger, spans, rollupRepo),
		retention: NewRetentionWorker(logger, cfg, spans, errorGroups, rollupRepo, deployRepo, db),
	}
}

// Start launches all tasks.
func (s *Scheduler) Start() {
	s.rollup.Start()
	s.retention.Start()
}

// Stop halts all tasks.
func (s *Scheduler) Stop() {
	s.rollup.Stop()
	s.retention.Stop()
}
