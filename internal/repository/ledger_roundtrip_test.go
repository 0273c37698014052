package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/unipass-integrity-api/internal/ledger"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

var auditCols = []string{"seq", "id", "action_type", "target_type", "target_id", "event_id", "student_id", "performed_by", "created_at", "old_state", "new_state", "reason", "prev_hash", "record_hash"}

// jsonbText renders a document the way Postgres prints a JSONB value: keys ordered by
// length then bytes, with ": " and ", " separators.
func jsonbText(t *testing.T, raw models.JSONState) []byte {
	t.Helper()
	if len(raw) == 0 {
		return nil
	}
	var doc interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	var buf bytes.Buffer
	writeJSONB(t, &buf, doc)
	return buf.Bytes()
}

func writeJSONB(t *testing.T, buf *bytes.Buffer, v interface{}) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) < len(keys[j])
			}
			return keys[i] < keys[j]
		})
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeJSONB(t, buf, k)
			buf.WriteString(": ")
			writeJSONB(t, buf, val[k])
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeJSONB(t, buf, item)
		}
		buf.WriteByte(']')
	default:
		out, err := json.Marshal(val)
		require.NoError(t, err)
		buf.Write(out)
	}
}

func storedAuditRow(t *testing.T, rows *sqlmock.Rows, e models.AuditEntry) *sqlmock.Rows {
	t.Helper()
	return rows.AddRow(e.Sequence, e.ID, string(e.ActionType), string(e.TargetType), e.TargetID, e.EventID, e.StudentID,
		e.PerformedBy, e.Timestamp, jsonbText(t, e.OldState), jsonbText(t, e.NewState), e.Reason, e.PrevHash, e.RecordHash)
}

func TestRevocationEntryReplaysAgainstStoredCertificate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	certs := NewCertificateRepository(db)
	audit := NewAuditRepository(db)
	issuedAt := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(certCols).AddRow("c1", "S1", "E1", issuedAt, "hash", false, nil, nil, nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates")).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditAppend(mock, "", 1)
	mock.ExpectCommit()

	entry := &models.AuditEntry{PerformedBy: "admin-1", Reason: "issued by mistake", Timestamp: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	revoked, err := certs.RevokeWithAudit(context.Background(), "c1", entry)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(certCols).AddRow("c1", "S1", "E1", issuedAt, "hash", true, "issued by mistake", *revoked.RevokedAt, "admin-1"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_entries WHERE event_id = $1 AND student_id = $2")).
		WithArgs("E1", "S1").
		WillReturnRows(storedAuditRow(t, sqlmock.NewRows(auditCols), *entry))

	stored, err := certs.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	entries, err := audit.ListByStudent(context.Background(), "E1", "S1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotEqual(t, string(entry.NewState), string(entries[0].NewState))

	var before, after models.CertificateState
	require.NoError(t, entries[0].OldState.Decode(&before))
	require.NoError(t, entries[0].NewState.Decode(&after))
	require.False(t, before.Revoked)
	require.Equal(t, stored.Revoked, after.Revoked)
	require.Equal(t, *stored.RevocationReason, *after.RevocationReason)
	require.True(t, stored.RevokedAt.Equal(*after.RevokedAt))

	report := ledger.VerifyChain(entries)
	require.True(t, report.Valid, report.Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidationEntryReplaysAgainstStoredScan(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	scans := NewAttendanceRepository(db)
	audit := NewAuditRepository(db)
	scannedAt := time.Date(2026, 5, 4, 8, 5, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(scanCols).AddRow("s1", "S1", "E1", scannedAt, "qr_scan", false, nil, nil, nil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_scans")).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditAppend(mock, "", 1)
	mock.ExpectCommit()

	entry := &models.AuditEntry{PerformedBy: "admin-1", Reason: "proxy attendance", Timestamp: time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)}
	invalidated, err := scans.InvalidateWithAudit(context.Background(), "s1", entry)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_scans WHERE id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(scanCols).AddRow("s1", "S1", "E1", scannedAt, "qr_scan", true, "proxy attendance", *invalidated.InvalidatedAt, "admin-1"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_entries WHERE event_id = $1 AND student_id = $2")).
		WithArgs("E1", "S1").
		WillReturnRows(storedAuditRow(t, sqlmock.NewRows(auditCols), *entry))

	stored, err := scans.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	entries, err := audit.ListByStudent(context.Background(), "E1", "S1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var before, after models.ScanState
	require.NoError(t, entries[0].OldState.Decode(&before))
	require.NoError(t, entries[0].NewState.Decode(&after))
	require.Equal(t, models.ScanState{}, before)
	require.Equal(t, stored.State(), after)

	report := ledger.VerifyChain(entries)
	require.True(t, report.Valid, report.Message)
	require.NoError(t, mock.ExpectationsWereMet())
}
