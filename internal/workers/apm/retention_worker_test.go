package apm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokle/internal/config"
	apmDomain "brokle/internal/core/domain/apm"
	"brokle/pkg/ulid"
)

func testRetentionConfig() *config.Config {
	return &config.Config{
		Retention: config.RetentionConfig{SpansDays: 7, ErrorsDays: 30, HourlyRollupsDays: 90},
	}
}

func TestRetentionWorker_DeletesPastWindow(t *testing.T) {
	now := time.Now().UTC()

	spanRepo := &fakeSpanRepository{}
	spanRepo.spans = append(spanRepo.spans,
		&apmDomain.Span{TraceID: "old", SpanID: "s1", HappenedAt: now.AddDate(0, 0, -10).Format(apmDomain.SortableTimeFormat)},
		&apmDomain.Span{TraceID: "new", SpanID: "s2", HappenedAt: now.Format(apmDomain.SortableTimeFormat)},
	)

	errRepo := &fakeErrorGroupRepository{}
	errRepo.occurrences = append(errRepo.occurrences,
		&apmDomain.ErrorOccurrence{ID: ulid.New(), Timestamp: now.AddDate(0, 0, -40)},
		&apmDomain.ErrorOccurrence{ID: ulid.New(), Timestamp: now},
	)

	rollupRepo := &fakeRollupRepository{}
	rollupRepo.hourly = append(rollupRepo.hourly,
		&apmDomain.HourlyRollup{Hour: now.AddDate(0, 0, -100)},
		&apmDomain.HourlyRollup{Hour: now},
	)

	deployRepo := &fakeDeployRepository{}
	deployRepo.deploys = append(deployRepo.deploys,
		&apmDomain.Deploy{ID: ulid.New(), Timestamp: now.AddDate(0, 0, -200)},
		&apmDomain.Deploy{ID: ulid.New(), Timestamp: now},
	)

	vac := &fakeVacuumer{}
	w := NewRetentionWorker(testLogger(), testRetentionConfig(), spanRepo, errRepo, rollupRepo, deployRepo, vac)

	w.run()

	require.Len(t, spanRepo.spans, 1)
	assert.Equal(t, "new", spanRepo.spans[0].TraceID)

	require.Len(t, errRepo.occurrences, 1)
	require.Len(t, rollupRepo.hourly, 1)
	require.Len(t, deployRepo.deploys, 1)
}

func TestRetentionWorker_VacuumsOnlyOnSunday(t *testing.T) {
	vac := &fakeVacuumer{}
	w := NewRetentionWorker(testLogger(), testRetentionConfig(), &fakeSpanRepository{}, &fakeErrorGroupRepository{}, &fakeRollupRepository{}, &fakeDeployRepository{}, vac)

	w.run()

	expected := time.Now().UTC().Weekday() == time.Sunday
	assert.Equal(t, expected, vac.called)
}
