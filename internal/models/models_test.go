package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoleSetIsSetValued(t *testing.T) {
	set := NewRoleSet(RoleTypeVolunteer, RoleTypeParticipant, RoleTypeVolunteer, RoleType("CHEF"))
	require.Len(t, set, 2)
	require.True(t, set.Has(RoleTypeVolunteer))
	require.False(t, set.Has(RoleType("CHEF")))

	raw, err := json.Marshal(set)
	require.NoError(t, err)
	require.JSONEq(t, `["PARTICIPANT","VOLUNTEER"]`, string(raw))

	var decoded RoleSet
	require.NoError(t, json.Unmarshal([]byte(`["JUDGE","MENTOR"]`), &decoded))
	require.Equal(t, []RoleType{RoleTypeJudge, RoleTypeMentor}, decoded.Sorted())
}

func TestOrganizerEventRole(t *testing.T) {
	require.True(t, RoleTypeOrganizer.Valid())
	require.Equal(t, "ORGANIZER", string(RoleTypeOrganizer))
	require.Equal(t, []RoleType{RoleTypeOrganizer}, NewRoleSet(RoleTypeOrganizer, RoleType("CAPTAIN")).Sorted())
}

func TestJSONStateKeepsBytesVerbatim(t *testing.T) {
	var state JSONState
	require.NoError(t, state.Scan([]byte(`{"b":1, "a":2}`)))
	require.Equal(t, `{"b":1, "a":2}`, string(state))

	value, err := state.Value()
	require.NoError(t, err)
	require.Equal(t, `{"b":1, "a":2}`, value)

	require.NoError(t, state.Scan(nil))
	require.Nil(t, state)
	require.Error(t, state.Scan(42))
}

func TestThresholdBucketing(t *testing.T) {
	th := AnomalyThresholds{High: -0.6, Medium: -0.3}

	sev, ok := th.Bucket(-0.75)
	require.True(t, ok)
	require.Equal(t, SeverityHigh, sev)

	sev, ok = th.Bucket(-0.6)
	require.True(t, ok)
	require.Equal(t, SeverityHigh, sev)

	sev, ok = th.Bucket(-0.31)
	require.True(t, ok)
	require.Equal(t, SeverityMedium, sev)

	_, ok = th.Bucket(0.1)
	require.False(t, ok)
}

func TestSummarizeGroupsByAction(t *testing.T) {
	summary := Summarize([]AuditEntry{
		{ActionType: AuditActionRevocation},
		{ActionType: AuditActionInvalidation},
		{ActionType: AuditActionInvalidation},
		{ActionType: AuditActionCorrection},
	})
	require.Equal(t, AuditSummary{TotalChanges: 4, Revocations: 1, Invalidations: 2, Corrections: 1}, summary)
}

func TestSummarizeAnomalies(t *testing.T) {
	anomalies := []ScanAnomaly{
		{AnomalyDetection: AnomalyDetection{Severity: SeverityHigh}, Source: ScanSourceAdminOverride},
		{AnomalyDetection: AnomalyDetection{Severity: SeverityMedium}, Source: ScanSourceQR},
	}
	summary := SummarizeAnomalies(6, anomalies)
	require.Equal(t, 2, summary.TotalAnomalies)
	require.Equal(t, 33.33, summary.AnomalyRate)
	require.Equal(t, SeverityCounts{High: 1, Medium: 1}, summary.BySeverity)
	require.Equal(t, SourceCounts{QRScan: 1, AdminOverride: 1}, summary.BySource)
	require.Equal(t, 1, summary.RequiresReview)

	require.Zero(t, SummarizeAnomalies(0, nil).AnomalyRate)
}
