// Package fraud runs read-only heuristic rules over one event's ledger state.
package fraud

import (
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

// Config tunes the rules.
type Config struct {
	OverrideRatioThreshold float64
	OverrideMinScans       int
	BurstWindow            time.Duration
	BurstMinCertificates   int
	RapidScanThreshold     int
	RapidScanUniqueRatio   float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		OverrideRatioThreshold: 0.5,
		OverrideMinScans:       3,
		BurstWindow:            time.Minute,
		BurstMinCertificates:   50,
		RapidScanThreshold:     10,
		RapidScanUniqueRatio:   0.8,
	}
}

// Input is everything the rules read for one event.
type Input struct {
	Event         models.Event
	Registrations []models.Registration
	Scans         []models.AttendanceScan
	Certificates  []models.Certificate
	Verifications []models.CertificateVerification
	// Records is the reconciliation output of the event.
	Records []models.Reconciliation
	// Totals holds cross-event scan counts keyed by student.
	Totals map[string]models.ScanCounts
}

// Rule inspects input and reports alerts. Rules never modify input.
type Rule func(in Input, cfg Config) []models.FraudAlert

// Rules lists every heuristic in evaluation order.
var Rules = []Rule{
	DuplicateCertificates,
	OrphanCertificates,
	PrematureCertificates,
	RevokedStillInUse,
	OverrideAbuse,
	BulkIssuance,
	RapidScans,
}

// Run evaluates every rule and returns the deduplicated report.
func Run(in Input, cfg Config) models.FraudReport {
	var alerts []models.FraudAlert
	for _, rule := range Rules {
		alerts = append(alerts, rule(in, cfg)...)
	}
	alerts = Dedupe(alerts)
	Sort(alerts)
	return models.FraudReport{EventID: in.Event.ID, Alerts: alerts, Summary: Summarize(alerts)}
}

type alertKey struct {
	typ     models.FraudType
	student string
	event   string
}

// Dedupe keeps the first alert for each (type, student_id, event_id).
func Dedupe(alerts []models.FraudAlert) []models.FraudAlert {
	seen := make(map[alertKey]struct{}, len(alerts))
	out := make([]models.FraudAlert, 0, len(alerts))
	for _, a := range alerts {
		k := alertKey{typ: a.Type, student: a.StudentID, event: a.EventID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}

var severityRank = map[models.Severity]int{
	models.SeverityHigh:   0,
	models.SeverityMedium: 1,
	models.SeverityLow:    2,
}

// Sort orders alerts by severity, then type, then student.
func Sort(alerts []models.FraudAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] < severityRank[b.Severity]
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.StudentID < b.StudentID
	})
}

// Summarize counts alerts by severity.
func Summarize(alerts []models.FraudAlert) models.FraudSummary {
	summary := models.FraudSummary{TotalAlerts: len(alerts), CriticalTypes: []models.FraudType{}}
	critical := make(map[models.FraudType]struct{})
	for _, a := range alerts {
		switch a.Severity {
		case models.SeverityHigh:
			summary.High++
			critical[a.Type] = struct{}{}
		case models.SeverityMedium:
			summary.Medium++
		case models.SeverityLow:
			summary.Low++
		}
	}
	for t := range critical {
		summary.CriticalTypes = append(summary.CriticalTypes, t)
	}
	sort.Slice(summary.CriticalTypes, func(i, j int) bool { return summary.CriticalTypes[i] < summary.CriticalTypes[j] })
	return summary
}

func liveCertificates(certs []models.Certificate) []models.Certificate {
	out := make([]models.Certificate, 0, len(certs))
	for _, c := range certs {
		if !c.Revoked {
			out = append(out, c)
		}
	}
	return out
}

// DuplicateCertificates flags students holding more than one live certificate.
func DuplicateCertificates(in Input, _ Config) []models.FraudAlert {
	byStudent := make(map[string][]string)
	for _, c := range liveCertificates(in.Certificates) {
		byStudent[c.StudentID] = append(byStudent[c.StudentID], c.ID)
	}

	var alerts []models.FraudAlert
	for student, ids := range byStudent {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		alerts = append(alerts, models.FraudAlert{
			Type:           models.FraudDuplicateCertificate,
			Severity:       models.SeverityHigh,
			StudentID:      student,
			EventID:        in.Event.ID,
			Description:    fmt.Sprintf("student holds %d live certificates for the same event", len(ids)),
			Evidence:       map[string]interface{}{"certificate_ids": ids, "count": len(ids)},
			Recommendation: "Revoke the duplicate certificates and keep the earliest issued one",
		})
	}
	return alerts
}

// OrphanCertificates flags live certificates whose holder has no valid attendance.
func OrphanCertificates(in Input, _ Config) []models.FraudAlert {
	attended := make(map[string]bool, len(in.Records))
	for _, r := range in.Records {
		attended[r.StudentID] = r.Attended
	}

	var alerts []models.FraudAlert
	for _, c := range liveCertificates(in.Certificates) {
		if attended[c.StudentID] {
			continue
		}
		alerts = append(alerts, models.FraudAlert{
			Type:           models.FraudOrphanCertificate,
			Severity:       models.SeverityHigh,
			StudentID:      c.StudentID,
			EventID:        in.Event.ID,
			Description:    "certificate issued without a valid attendance record",
			Evidence:       map[string]interface{}{"certificate_id": c.ID, "issued_at": c.IssuedAt},
			Recommendation: "Verify attendance manually or revoke the certificate",
		})
	}
	return alerts
}

// PrematureCertificates flags live certificates issued before the event ended.
func PrematureCertificates(in Input, _ Config) []models.FraudAlert {
	var alerts []models.FraudAlert
	for _, c := range liveCertificates(in.Certificates) {
		if !c.IssuedAt.Before(in.Event.EndTime) {
			continue
		}
		alerts = append(alerts, models.FraudAlert{
			Type:      models.FraudPrematureCertificate,
			Severity:  models.SeverityHigh,
			StudentID: c.StudentID,
			EventID:   in.Event.ID,
			Description: fmt.Sprintf("certificate issued %s before the event ended",
				in.Event.EndTime.Sub(c.IssuedAt).Round(time.Minute)),
			Evidence: map[string]interface{}{
				"certificate_id": c.ID,
				"issued_at":      c.IssuedAt,
				"event_end":      in.Event.EndTime,
			},
			Recommendation: "Review the issuance and revoke if it was not authorised",
		})
	}
	return alerts
}

// RevokedStillInUse flags verification attempts made after a certificate was revoked.
func RevokedStillInUse(in Input, _ Config) []models.FraudAlert {
	revoked := make(map[string]models.Certificate)
	for _, c := range in.Certificates {
		if c.Revoked {
			revoked[c.ID] = c
		}
	}

	attempts := make(map[string][]time.Time)
	for _, v := range in.Verifications {
		c, ok := revoked[v.CertificateID]
		if !ok {
			continue
		}
		if c.RevokedAt != nil && v.VerifiedAt.Before(*c.RevokedAt) {
			continue
		}
		attempts[c.ID] = append(attempts[c.ID], v.VerifiedAt)
	}

	ids := make([]string, 0, len(attempts))
	for id := range attempts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var alerts []models.FraudAlert
	for _, id := range ids {
		c, times := revoked[id], attempts[id]
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		reason := ""
		if c.RevocationReason != nil {
			reason = *c.RevocationReason
		}
		alerts = append(alerts, models.FraudAlert{
			Type:        models.FraudRevokedStillInUse,
			Severity:    models.SeverityMedium,
			StudentID:   c.StudentID,
			EventID:     in.Event.ID,
			Description: fmt.Sprintf("revoked certificate was verified %d times after revocation", len(times)),
			Evidence: map[string]interface{}{
				"certificate_id":    c.ID,
				"attempts":          len(times),
				"last_attempt_at":   times[len(times)-1],
				"revocation_reason": reason,
			},
			Recommendation: "Contact the holder and the verifying party about the withdrawn certificate",
		})
	}
	return alerts
}

// OverrideAbuse flags attendees whose scans are mostly manual overrides.
func OverrideAbuse(in Input, cfg Config) []models.FraudAlert {
	present := make(map[string]struct{})
	for _, s := range in.Scans {
		if s.Counts() {
			present[s.StudentID] = struct{}{}
		}
	}

	var alerts []models.FraudAlert
	for student := range present {
		totals := in.Totals[student]
		if totals.Total < cfg.OverrideMinScans || totals.Total == 0 {
			continue
		}
		ratio := float64(totals.Overrides) / float64(totals.Total)
		if ratio <= cfg.OverrideRatioThreshold {
			continue
		}
		alerts = append(alerts, models.FraudAlert{
			Type:        models.FraudOverrideAbuse,
			Severity:    models.SeverityMedium,
			StudentID:   student,
			EventID:     in.Event.ID,
			Description: fmt.Sprintf("%.0f%% of the student's scans are manual overrides", ratio*100),
			Evidence: map[string]interface{}{
				"override_scans": totals.Overrides,
				"total_scans":    totals.Total,
				"ratio":          ratio,
			},
			Recommendation: "Audit the staff accounts performing the overrides",
		})
	}
	return alerts
}

// BulkIssuance flags an implausibly dense burst of issuance.
func BulkIssuance(in Input, cfg Config) []models.FraudAlert {
	live := liveCertificates(in.Certificates)
	if len(live) == 0 || cfg.BurstWindow <= 0 || cfg.BurstMinCertificates <= 0 {
		return nil
	}
	times := make([]time.Time, len(live))
	for i, c := range live {
		times[i] = c.IssuedAt
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	best, bestStart := 0, 0
	lo := 0
	for hi := range times {
		for times[hi].Sub(times[lo]) >= cfg.BurstWindow {
			lo++
		}
		if n := hi - lo + 1; n > best {
			best, bestStart = n, lo
		}
	}
	if best < cfg.BurstMinCertificates {
		return nil
	}

	registrants := len(in.Registrations)
	severity := models.SeverityLow
	if best > registrants {
		severity = models.SeverityMedium
	}
	return []models.FraudAlert{{
		Type:        models.FraudBulkAnomaly,
		Severity:    severity,
		StudentID:   models.AllStudents,
		EventID:     in.Event.ID,
		Description: fmt.Sprintf("%d certificates issued within %s", best, cfg.BurstWindow),
		Evidence: map[string]interface{}{
			"certificates_in_window": best,
			"window_start":           times[bestStart],
			"registrants":            registrants,
		},
		Recommendation: "Confirm the batch issuance was authorised",
	}}
}

// RapidScans flags minutes with many scans from few distinct students.
func RapidScans(in Input, cfg Config) []models.FraudAlert {
	if cfg.RapidScanThreshold <= 0 {
		return nil
	}
	type bucket struct {
		count    int
		students map[string]struct{}
	}
	buckets := make(map[time.Time]*bucket)
	for _, s := range in.Scans {
		if !s.Counts() {
			continue
		}
		minute := s.ScannedAt.UTC().Truncate(time.Minute)
		b, ok := buckets[minute]
		if !ok {
			b = &bucket{students: make(map[string]struct{})}
			buckets[minute] = b
		}
		b.count++
		b.students[s.StudentID] = struct{}{}
	}

	var minutes []time.Time
	maxScans := 0
	for minute, b := range buckets {
		if b.count <= cfg.RapidScanThreshold {
			continue
		}
		if float64(len(b.students))/float64(b.count) >= cfg.RapidScanUniqueRatio {
			continue
		}
		minutes = append(minutes, minute)
		if b.count > maxScans {
			maxScans = b.count
		}
	}
	if len(minutes) == 0 {
		return nil
	}
	sort.Slice(minutes, func(i, j int) bool { return minutes[i].Before(minutes[j]) })

	return []models.FraudAlert{{
		Type:        models.FraudRapidScans,
		Severity:    models.SeverityMedium,
		StudentID:   models.AllStudents,
		EventID:     in.Event.ID,
		Description: fmt.Sprintf("%d minutes had more than %d scans from repeated students", len(minutes), cfg.RapidScanThreshold),
		Evidence: map[string]interface{}{
			"minutes":   minutes,
			"max_scans": maxScans,
		},
		Recommendation: "Check the scanner devices for replayed QR codes",
	}}
}
