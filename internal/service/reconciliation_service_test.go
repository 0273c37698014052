package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/unipass-integrity-api/internal/dto"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	"github.com/noah-isme/unipass-integrity-api/internal/projection"
	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
)

var eventStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// seedWorkshop builds one event with three students:
// S1 registered and scanned twice, S2 registered only, S3 walked in without registering.
func seedWorkshop() *fakeDB {
	db := newFakeDB()
	db.addEvent("E1", eventStart, 2*time.Hour)
	for _, id := range []string{"S1", "S2", "S3"} {
		db.addStudent(id)
	}
	db.register("S1", "E1", eventStart.Add(-48*time.Hour))
	db.register("S2", "E1", eventStart.Add(-24*time.Hour))
	db.scan("A1", "S1", "E1", eventStart.Add(5*time.Minute), models.ScanSourceQR)
	db.scan("A2", "S1", "E1", eventStart.Add(7*time.Minute), models.ScanSourceQR)
	db.scan("A3", "S3", "E1", eventStart.Add(10*time.Minute), models.ScanSourceAdminOverride)
	db.roles = append(db.roles, models.RoleAssignment{StudentID: "S1", EventID: "E1", Role: models.RoleTypeVolunteer})
	return db
}

func newReconciliationService(db *fakeDB, cache *CacheService) *ReconciliationService {
	return NewReconciliationService(newFactLoader(db), projection.New(nil), cache, nil, nil, ReconciliationConfig{Parallelism: 2}, nil)
}

func TestParticipationDuplicateScans(t *testing.T) {
	svc := newReconciliationService(seedWorkshop(), nil)

	rec, err := svc.Participation(context.Background(), "E1", "S1")
	require.NoError(t, err)
	require.Equal(t, 90, rec.TrustScore)
	require.Equal(t, models.StatusAttendedNoCertificate, rec.Status)
	require.ElementsMatch(t, []models.ConflictFlag{models.FlagAttendedNotCertified, models.FlagDuplicateAttendance}, rec.ConflictFlags)
	require.NotNil(t, rec.AuthoritativeScanID)
	require.Equal(t, "A1", *rec.AuthoritativeScanID)
	require.Equal(t, []string{"A2"}, rec.DuplicateScanIDs)
	require.True(t, rec.Roles.Has(models.RoleTypeVolunteer))
}

func TestParticipationIsIdempotent(t *testing.T) {
	svc := newReconciliationService(seedWorkshop(), nil)

	first, err := svc.Participation(context.Background(), "E1", "S3")
	require.NoError(t, err)
	second, err := svc.Participation(context.Background(), "E1", "S3")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 75, first.TrustScore)
}

func TestParticipationUnknownEventOrStudent(t *testing.T) {
	svc := newReconciliationService(seedWorkshop(), nil)

	_, err := svc.Participation(context.Background(), "missing", "S1")
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Participation(context.Background(), "E1", "missing")
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestEventConflicts(t *testing.T) {
	svc := newReconciliationService(seedWorkshop(), nil)

	report, err := svc.Conflicts(context.Background(), "E1")
	require.NoError(t, err)
	require.Equal(t, 3, report.Total)
	require.Len(t, report.Conflicts, 3)
	require.Equal(t, "S1", report.Conflicts[0].StudentID)
	require.Equal(t, models.StatusRegisteredOnly, report.Conflicts[1].Status)
	require.Equal(t, 95, report.Conflicts[1].TrustScore)
}

func TestEventReportCacheFollowsFacts(t *testing.T) {
	db := seedWorkshop()
	repo := newMemoryCache()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	svc := newReconciliationService(db, cache)

	first, err := svc.Event(context.Background(), "E1")
	require.NoError(t, err)
	require.Len(t, repo.keys(), 1)

	again, err := svc.Event(context.Background(), "E1")
	require.NoError(t, err)
	require.Equal(t, first.Records, again.Records)
	require.Len(t, repo.keys(), 1)

	// upstream rows change without any engine write
	db.mu.Lock()
	db.registrations = nil
	db.mu.Unlock()

	fresh, err := svc.Event(context.Background(), "E1")
	require.NoError(t, err)
	require.True(t, fresh.Records[0].HasFlag(models.FlagAttendedNotRegistered))
	require.Len(t, repo.keys(), 2)

	db.mu.Lock()
	db.scans[0].Invalidated = true
	db.mu.Unlock()

	invalidated, err := svc.Event(context.Background(), "E1")
	require.NoError(t, err)
	require.NotEqual(t, fresh.Records[0].TrustScore, invalidated.Records[0].TrustScore)

	cache.InvalidateEvent(context.Background(), "E1")
	require.Empty(t, repo.keys())
}

func TestEventReportWithoutCacheSkipsWatermark(t *testing.T) {
	db := seedWorkshop()
	svc := newReconciliationService(db, nil)

	_, err := svc.Event(context.Background(), "missing")
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	report, err := svc.Event(context.Background(), "E1")
	require.NoError(t, err)
	require.Len(t, report.Records, 3)
}

func TestBatchKeepsRequestOrder(t *testing.T) {
	db := seedWorkshop()
	db.addEvent("E2", eventStart.Add(24*time.Hour), time.Hour)
	db.register("S2", "E2", eventStart)
	svc := newReconciliationService(db, nil)

	out, err := svc.Batch(context.Background(), dto.EventBatchRequest{EventIDs: []string{"E2", "E1"}})
	require.NoError(t, err)
	require.Len(t, out.Events, 2)
	require.Equal(t, "E2", out.Events[0].EventID)
	require.Len(t, out.Events[0].Records, 1)
	require.Equal(t, "E1", out.Events[1].EventID)
	require.Len(t, out.Events[1].Records, 3)
}

func TestBatchValidationAndFailure(t *testing.T) {
	svc := newReconciliationService(seedWorkshop(), nil)

	_, err := svc.Batch(context.Background(), dto.EventBatchRequest{})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Batch(context.Background(), dto.EventBatchRequest{EventIDs: []string{"E1", "missing"}})
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
