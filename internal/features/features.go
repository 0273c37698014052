// Package features turns an attendance scan and its history into the vector the anomaly model scores.
package features

import (
	"sort"
	"time"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

// Feature names in vector order.
const (
	TimeAfterStart     = "time_after_start"
	ScanFrequency      = "scan_frequency"
	AttendanceRate     = "attendance_rate"
	IsAdminOverride    = "is_admin_override"
	TimeSinceLastScan  = "time_since_last_scan"
	EventDuration      = "event_duration"
	DaysSinceLastEvent = "days_since_last_event"
	LateScanFlag       = "late_scan_flag"
)

// Dimensions is the length of every feature vector.
const Dimensions = 8

const (
	// FirstScanMinutes is reported for a student's first scan and caps every other gap.
	FirstScanMinutes = 10080.0
	// NoPriorEventDays is reported when the student has no earlier attended event.
	NoPriorEventDays = 365.0
	// DefaultLateFraction marks a scan late past half of the event duration.
	DefaultLateFraction = 0.5
)

// Names lists the features in vector order.
var Names = [Dimensions]string{
	TimeAfterStart,
	ScanFrequency,
	AttendanceRate,
	IsAdminOverride,
	TimeSinceLastScan,
	EventDuration,
	DaysSinceLastEvent,
	LateScanFlag,
}

// Vector is one extracted sample.
type Vector [Dimensions]float64

// Map returns the vector keyed by feature name.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, Dimensions)
	for i, name := range Names {
		out[name] = v[i]
	}
	return out
}

// ScanContext carries everything extraction needs for one scan.
type ScanContext struct {
	Scan  models.AttendanceScan
	Event models.Event
	// History holds the student's scans across all events. It may include Scan itself.
	History []models.AttendanceScan
	// Registrations holds the student's registrations across all events.
	Registrations []models.Registration
	// Events resolves event ids referenced by History. Missing events fall back to scan times.
	Events map[string]models.Event
}

// Extractor computes feature vectors. It is safe for concurrent use.
type Extractor struct {
	lateFraction float64
}

// NewExtractor builds an extractor. A non-positive fraction selects DefaultLateFraction.
func NewExtractor(lateFraction float64) *Extractor {
	if lateFraction <= 0 {
		lateFraction = DefaultLateFraction
	}
	return &Extractor{lateFraction: lateFraction}
}

// Extract computes the vector for sc. Inputs are never modified.
func (x *Extractor) Extract(sc ScanContext) Vector {
	var v Vector

	scan := sc.Scan
	history := priorValidScans(sc)

	afterStart := minutes(scan.ScannedAt.Sub(sc.Event.StartTime))
	duration := minutes(sc.Event.Duration())

	v[0] = afterStart
	v[1] = scanFrequency(sc)
	v[2] = attendanceRate(sc, history)
	if scan.Source == models.ScanSourceAdminOverride {
		v[3] = 1
	}
	v[4] = timeSinceLastScan(scan, history)
	v[5] = duration
	v[6] = daysSinceLastEvent(sc, history)
	if afterStart > duration*x.lateFraction {
		v[7] = 1
	}

	return v
}

// priorValidScans returns the valid scans strictly before the current one, oldest first.
func priorValidScans(sc ScanContext) []models.AttendanceScan {
	out := make([]models.AttendanceScan, 0, len(sc.History))
	for _, s := range sc.History {
		if !s.Counts() || s.ID == sc.Scan.ID {
			continue
		}
		if s.ScannedAt.Before(sc.Scan.ScannedAt) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScannedAt.Before(out[j].ScannedAt) })
	return out
}

func scanFrequency(sc ScanContext) float64 {
	count := 0
	for _, s := range sc.History {
		if !s.Counts() || s.ID == sc.Scan.ID {
			continue
		}
		if !s.ScannedAt.After(sc.Scan.ScannedAt) {
			count++
		}
	}
	count++ // the scan being scored

	registrations := len(sc.Registrations)
	if registrations < 1 {
		registrations = 1
	}
	return float64(count) / float64(registrations)
}

func attendanceRate(sc ScanContext, prior []models.AttendanceScan) float64 {
	attended := make(map[string]struct{}, len(prior))
	for _, s := range prior {
		attended[s.EventID] = struct{}{}
	}

	registered, hits := 0, 0
	for _, r := range sc.Registrations {
		if r.EventID == sc.Scan.EventID || !r.RegisteredAt.Before(sc.Scan.ScannedAt) {
			continue
		}
		registered++
		if _, ok := attended[r.EventID]; ok {
			hits++
		}
	}
	if registered == 0 {
		return 0
	}
	return float64(hits) / float64(registered)
}

func timeSinceLastScan(scan models.AttendanceScan, prior []models.AttendanceScan) float64 {
	if len(prior) == 0 {
		return FirstScanMinutes
	}
	gap := minutes(scan.ScannedAt.Sub(prior[len(prior)-1].ScannedAt))
	if gap > FirstScanMinutes {
		return FirstScanMinutes
	}
	return gap
}

func daysSinceLastEvent(sc ScanContext, prior []models.AttendanceScan) float64 {
	var (
		last  time.Time
		found bool
	)
	for _, s := range prior {
		if s.EventID == sc.Scan.EventID {
			continue
		}
		start := s.ScannedAt
		if ev, ok := sc.Events[s.EventID]; ok {
			start = ev.StartTime
		}
		if !start.Before(sc.Event.StartTime) {
			continue
		}
		if !found || start.After(last) {
			last, found = start, true
		}
	}
	if !found {
		return NoPriorEventDays
	}
	return sc.Event.StartTime.Sub(last).Hours() / 24
}

func minutes(d time.Duration) float64 {
	return d.Minutes()
}
