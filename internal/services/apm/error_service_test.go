package apm

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apmDomain "brokle/internal/core/domain/apm"
	"brokle/pkg/ulid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIngestError_ExactFingerprintMatch(t *testing.T) {
	repo := &fakeErrorGroupRepository{}
	svc := newErrorService(repo, fakeTransactor{}, testLogger())
	ctx := context.Background()

	_, err := svc.IngestError(ctx, "p1", &apmDomain.IncomingError{
		ExceptionClass: "RuntimeError", Message: "boom", Fingerprint: "custom-fp",
		Backtrace: []string{"/app/models/user.rb:1:in `go'"},
	})
	require.NoError(t, err)
	require.Len(t, repo.groups, 1)
	assert.Equal(t, int64(1), repo.groups[0].OccurrenceCount)

	_, err = svc.IngestError(ctx, "p1", &apmDomain.IncomingError{
		ExceptionClass: "RuntimeError", Message: "boom again", Fingerprint: "custom-fp",
		Backtrace: []string{"/app/models/user.rb:1:in `go'"},
	})
	require.NoError(t, err)
	require.Len(t, repo.groups, 1)
	assert.Equal(t, int64(2), repo.groups[0].OccurrenceCount)
	require.Len(t, repo.occurrences, 2)
}

func TestIngestError_LocationSimilarityMerge(t *testing.T) {
	repo := &fakeErrorGroupRepository{}
	svc := newErrorService(repo, fakeTransactor{}, testLogger())
	ctx := context.Background()

	backtrace := []string{"/app/models/user.rb:42:in `lookup'"}

	_, err := svc.IngestError(ctx, "p1", &apmDomain.IncomingError{
		ExceptionClass: "ActiveRecord::RecordNotFound",
		Message:        "Couldn't find User with 'id'=123",
		Backtrace:      backtrace,
	})
	require.NoError(t, err)
	require.Len(t, repo.groups, 1)

	// Same location, similar-enough message (S4) -> merges into the same group.
	_, err = svc.IngestError(ctx, "p1", &apmDomain.IncomingError{
		ExceptionClass: "ActiveRecord::RecordNotFound",
		Message:        "Couldn't find User with 'id'=456",
		Backtrace:      backtrace,
	})
	require.NoError(t, err)
	require.Len(t, repo.groups, 1)
	assert.Equal(t, int64(2), repo.groups[0].OccurrenceCount)
}

func TestIngestError_NewGroupOnDistinctLocation(t *testing.T) {
	repo := &fakeErrorGroupRepository{}
	svc := newErrorService(repo, fakeTransactor{}, testLogger())
	ctx := context.Background()

	_, err := svc.IngestError(ctx, "p1", &apmDomain.IncomingError{
		ExceptionClass: "RuntimeError", Message: "a",
		Backtrace: []string{"/app/models/user.rb:1:in `go'"},
	})
	require.NoError(t, err)

	_, err = svc.IngestError(ctx, "p1", &apmDomain.IncomingError{
		ExceptionClass: "RuntimeError", Message: "b",
		Backtrace: []string{"/app/models/order.rb:2:in `go'"},
	})
	require.NoError(t, err)

	assert.Len(t, repo.groups, 2)
}

func TestIngestError_RequiresExceptionClass(t *testing.T) {
	svc := newErrorService(&fakeErrorGroupRepository{}, fakeTransactor{}, testLogger())
	_, err := svc.IngestError(context.Background(), "p1", &apmDomain.IncomingError{Message: "x"})
	require.Error(t, err)

	var apmErr *apmDomain.Error
	require.ErrorAs(t, err, &apmErr)
	assert.Equal(t, apmDomain.KindInvalidInput, apmErr.Kind)
}

func TestIngestErrorsBatch_PartialFailure(t *testing.T) {
	svc := newErrorService(&fakeErrorGroupRepository{}, fakeTransactor{}, testLogger())

	succeeded, failed := svc.IngestErrorsBatch(context.Background(), "p1", []*apmDomain.IncomingError{
		{ExceptionClass: "RuntimeError", Message: "ok"},
		{Message: "missing class"},
	})
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
}

func TestErrorTrend24h_ZeroFilledAndAligned(t *testing.T) {
	repo := &fakeErrorGroupRepository{}
	svc := newErrorService(repo, fakeTransactor{}, testLogger())

	trend, err := svc.ErrorTrend24h(context.Background(), ulid.New())
	require.NoError(t, err)
	assert.Len(t, trend, 24)
	for _, c := range trend {
		assert.Equal(t, int64(0), c)
	}
}

var _ = time.Now
