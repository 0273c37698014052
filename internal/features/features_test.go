package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

var start = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func event(id string, at time.Time, length time.Duration) models.Event {
	return models.Event{ID: id, Title: id, StartTime: at, EndTime: at.Add(length)}
}

func TestExtractLateScanFlag(t *testing.T) {
	ev := event("E1", start, time.Hour)
	scan := models.AttendanceScan{ID: "s1", StudentID: "S1", EventID: "E1", ScannedAt: start.Add(55 * time.Minute), Source: models.ScanSourceQR}

	v := NewExtractor(0).Extract(ScanContext{Scan: scan, Event: ev, History: []models.AttendanceScan{scan}})
	m := v.Map()

	require.Equal(t, 55.0, m[TimeAfterStart])
	require.Equal(t, 60.0, m[EventDuration])
	require.Equal(t, 1.0, m[LateScanFlag])
	require.Equal(t, 0.0, m[IsAdminOverride])
	require.Equal(t, FirstScanMinutes, m[TimeSinceLastScan])
	require.Equal(t, NoPriorEventDays, m[DaysSinceLastEvent])
	require.Equal(t, 1.0, m[ScanFrequency])
	require.Equal(t, 0.0, m[AttendanceRate])

	onTime := scan
	onTime.ScannedAt = start.Add(20 * time.Minute)
	v = NewExtractor(0).Extract(ScanContext{Scan: onTime, Event: ev})
	require.Equal(t, 0.0, v[7])
}

func TestExtractEarlyScanIsNegative(t *testing.T) {
	ev := event("E1", start, time.Hour)
	scan := models.AttendanceScan{ID: "s1", EventID: "E1", ScannedAt: start.Add(-15 * time.Minute), Source: models.ScanSourceAdminOverride}

	v := NewExtractor(0.5).Extract(ScanContext{Scan: scan, Event: ev})
	require.Equal(t, -15.0, v[0])
	require.Equal(t, 1.0, v[3])
	require.Equal(t, 0.0, v[7])
}

func TestExtractUsesHistoryAndIgnoresInvalidated(t *testing.T) {
	prevEvent := event("E0", start.Add(-72*time.Hour), 2*time.Hour)
	otherEvent := event("E9", start.Add(-240*time.Hour), time.Hour)
	ev := event("E1", start, time.Hour)

	prevScan := models.AttendanceScan{ID: "p1", EventID: "E0", ScannedAt: prevEvent.StartTime.Add(10 * time.Minute), Source: models.ScanSourceQR}
	invalid := models.AttendanceScan{ID: "p2", EventID: "E1", ScannedAt: start.Add(2 * time.Minute), Source: models.ScanSourceQR, Invalidated: true}
	scan := models.AttendanceScan{ID: "s1", EventID: "E1", ScannedAt: start.Add(5 * time.Minute), Source: models.ScanSourceQR}

	sc := ScanContext{
		Scan:    scan,
		Event:   ev,
		History: []models.AttendanceScan{invalid, prevScan, scan},
		Registrations: []models.Registration{
			{EventID: "E0", RegisteredAt: prevEvent.StartTime.Add(-24 * time.Hour)},
			{EventID: "E9", RegisteredAt: otherEvent.StartTime.Add(-24 * time.Hour)},
			{EventID: "E1", RegisteredAt: start.Add(-24 * time.Hour)},
			{EventID: "E5", RegisteredAt: start.Add(24 * time.Hour)},
		},
		Events: map[string]models.Event{"E0": prevEvent, "E9": otherEvent},
	}

	m := NewExtractor(0).Extract(sc).Map()

	require.InDelta(t, 2.0/4.0, m[ScanFrequency], 1e-9)
	require.InDelta(t, 0.5, m[AttendanceRate], 1e-9)
	require.InDelta(t, 72*60.0-5, m[TimeSinceLastScan], 1e-9)
	require.InDelta(t, 3.0, m[DaysSinceLastEvent], 1e-9)
}

func TestExtractTimeSinceLastScan(t *testing.T) {
	ev := event("E1", start, time.Hour)
	prev := models.AttendanceScan{ID: "p1", EventID: "E0", ScannedAt: start.Add(-90 * time.Minute), Source: models.ScanSourceQR}
	scan := models.AttendanceScan{ID: "s1", EventID: "E1", ScannedAt: start, Source: models.ScanSourceQR}

	v := NewExtractor(0).Extract(ScanContext{Scan: scan, Event: ev, History: []models.AttendanceScan{prev}})
	require.Equal(t, 90.0, v[4])
	require.InDelta(t, 90.0/60.0/24.0, v[6], 1e-9)
}

func TestExtractIsPure(t *testing.T) {
	ev := event("E1", start, time.Hour)
	history := []models.AttendanceScan{
		{ID: "b", EventID: "E0", ScannedAt: start.Add(-time.Hour)},
		{ID: "a", EventID: "E0", ScannedAt: start.Add(-2 * time.Hour)},
	}
	scan := models.AttendanceScan{ID: "s1", EventID: "E1", ScannedAt: start}

	x := NewExtractor(0)
	first := x.Extract(ScanContext{Scan: scan, Event: ev, History: history})
	second := x.Extract(ScanContext{Scan: scan, Event: ev, History: history})

	require.Equal(t, first, second)
	require.Equal(t, "b", history[0].ID)
}
