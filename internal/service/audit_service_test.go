package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/unipass-integrity-api/internal/dto"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
)

func newAuditService(db *fakeDB, now time.Time) *AuditService {
	svc := NewAuditService(fakeAudit{db}, fakeScans{db}, newFactLoader(db), nil, nil, nil, nil, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func TestRecordValidation(t *testing.T) {
	svc := newAuditService(seedWorkshop(), eventStart)
	target := models.AuditTarget{Type: models.AuditTargetAttendance, ID: "A1", EventID: "E1", StudentID: "S1"}

	_, err := svc.Record(context.Background(), dto.RecordAuditRequest{
		ActionType:  models.AuditActionInvalidation,
		Target:      target,
		PerformedBy: "admin-1",
	})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Record(context.Background(), dto.RecordAuditRequest{
		ActionType:  models.AuditActionInvalidation,
		Target:      models.AuditTarget{Type: "badge", ID: "X"},
		PerformedBy: "admin-1",
		Reason:      "bad badge",
	})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	entry, err := svc.Record(context.Background(), dto.RecordAuditRequest{
		ActionType:  models.AuditActionInvalidation,
		Target:      target,
		OldState:    models.ScanState{},
		NewState:    models.ScanState{Invalidated: true},
		PerformedBy: "admin-1",
		Reason:      "scanned twice",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.Sequence)
	require.Len(t, entry.RecordHash, 64)
}

func TestInvalidateScanOnce(t *testing.T) {
	db := seedWorkshop()
	svc := newAuditService(db, eventStart.Add(time.Hour))

	scan, err := svc.InvalidateScan(context.Background(), "A2", dto.InvalidateScanRequest{Reason: "duplicate scan"}, "organizer-1")
	require.NoError(t, err)
	require.True(t, scan.Invalidated)

	_, err = svc.InvalidateScan(context.Background(), "A2", dto.InvalidateScanRequest{Reason: "duplicate scan"}, "organizer-1")
	require.True(t, appErrors.Is(err, appErrors.ErrAlreadyInvalidated))

	_, err = svc.InvalidateScan(context.Background(), "missing", dto.InvalidateScanRequest{Reason: "duplicate scan"}, "organizer-1")
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	history, err := svc.History(context.Background(), "E1", "S1")
	require.NoError(t, err)
	require.Len(t, history.Entries, 1)
	require.Equal(t, models.AuditSummary{TotalChanges: 1, Invalidations: 1}, history.Summary)

	rec, err := newReconciliationService(db, nil).Participation(context.Background(), "E1", "S1")
	require.NoError(t, err)
	require.Equal(t, 100, rec.TrustScore)
	require.Empty(t, rec.DuplicateScanIDs)
}

func TestCorrectOverridesProjection(t *testing.T) {
	db := seedWorkshop()
	svc := newAuditService(db, eventStart.Add(time.Hour))
	registered := true

	rec, err := svc.Correct(context.Background(), "E1", "S3", dto.CorrectionRequest{Registered: &registered, Reason: "registered on paper"}, "admin-1")
	require.NoError(t, err)
	require.True(t, rec.Registered)
	require.False(t, rec.HasFlag(models.FlagAttendedNotRegistered))
	require.Equal(t, 100, rec.TrustScore)

	again, err := newReconciliationService(db, nil).Participation(context.Background(), "E1", "S3")
	require.NoError(t, err)
	require.Equal(t, rec.TrustScore, again.TrustScore)

	_, err = svc.Correct(context.Background(), "E1", "S3", dto.CorrectionRequest{Registered: &registered, Reason: "no-op"}, "admin-1")
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Correct(context.Background(), "E1", "S3", dto.CorrectionRequest{Reason: "nothing"}, "admin-1")
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSnapshotAtReplaysLedger(t *testing.T) {
	db := seedWorkshop()
	invalidatedAt := eventStart.Add(6 * time.Hour)
	svc := newAuditService(db, invalidatedAt)

	_, err := svc.InvalidateScan(context.Background(), "A3", dto.InvalidateScanRequest{Reason: "override not approved"}, "admin-1")
	require.NoError(t, err)

	before, err := svc.SnapshotAt(context.Background(), "E1", "S3", eventStart.Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, before.EntriesApplied)
	require.True(t, before.Reconciliation.Attended)
	require.Equal(t, models.StatusAttendedNoCertificate, before.Reconciliation.Status)

	after, err := svc.SnapshotAt(context.Background(), "E1", "S3", invalidatedAt.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, after.EntriesApplied)
	require.False(t, after.Reconciliation.Attended)
	require.Equal(t, models.StatusInvalidated, after.Reconciliation.Status)

	_, err = svc.SnapshotAt(context.Background(), "E1", "S3", time.Time{})
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestCompareSnapshotsReportsInvalidation(t *testing.T) {
	db := seedWorkshop()
	invalidatedAt := eventStart.Add(6 * time.Hour)
	svc := newAuditService(db, invalidatedAt)

	_, err := svc.InvalidateScan(context.Background(), "A3", dto.InvalidateScanRequest{Reason: "override not approved"}, "admin-1")
	require.NoError(t, err)

	from := eventStart.Add(time.Hour)
	to := from.Add(72 * time.Hour)
	cmp, err := svc.CompareSnapshots(context.Background(), "E1", "S3", from, to)
	require.NoError(t, err)
	require.Equal(t, 3, cmp.ElapsedDays)
	require.Zero(t, cmp.From.EntriesApplied)
	require.Equal(t, 1, cmp.To.EntriesApplied)
	require.Equal(t, models.FieldChange{From: true, To: false}, cmp.Changes["attended"])
	require.Equal(t, models.FieldChange{From: string(models.StatusAttendedNoCertificate), To: string(models.StatusInvalidated)}, cmp.Changes["canonical_status"])
	require.NotContains(t, cmp.Changes, "student_id")

	same, err := svc.CompareSnapshots(context.Background(), "E1", "S3", from, from)
	require.NoError(t, err)
	require.Empty(t, same.Changes)

	_, err = svc.CompareSnapshots(context.Background(), "E1", "S3", to, from)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	_, err = svc.CompareSnapshots(context.Background(), "E1", "S3", time.Time{}, to)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	_, err = svc.CompareSnapshots(context.Background(), "missing", "S3", from, to)
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestVerifyChainDetectsEdits(t *testing.T) {
	db := seedWorkshop()
	svc := newAuditService(db, eventStart.Add(time.Hour))
	for _, id := range []string{"A1", "A2", "A3"} {
		_, err := svc.InvalidateScan(context.Background(), id, dto.InvalidateScanRequest{Reason: "cleanup run"}, "admin-1")
		require.NoError(t, err)
	}

	report, err := svc.VerifyChain(context.Background())
	require.NoError(t, err)
	require.True(t, report.Valid)
	require.Equal(t, 3, report.EntriesHashed)

	db.audit[1].Reason = "edited later"
	report, err = svc.VerifyChain(context.Background())
	require.NoError(t, err)
	require.False(t, report.Valid)
	require.Equal(t, int64(2), *report.BrokenAt)
}

func TestEventSummary(t *testing.T) {
	db := seedWorkshop()
	svc := newAuditService(db, eventStart.Add(time.Hour))
	_, err := svc.InvalidateScan(context.Background(), "A2", dto.InvalidateScanRequest{Reason: "duplicate"}, "admin-1")
	require.NoError(t, err)
	_, err = svc.InvalidateScan(context.Background(), "A3", dto.InvalidateScanRequest{Reason: "override"}, "admin-1")
	require.NoError(t, err)

	summary, err := svc.EventSummary(context.Background(), "E1")
	require.NoError(t, err)
	require.Equal(t, 2, summary.StudentsAffected)
	require.Equal(t, 2, summary.Summary.Invalidations)
}
