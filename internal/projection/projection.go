// Package projection derives trust-scored participation views from the raw fact streams.
package projection

import (
	"sort"

	"github.com/noah-isme/unipass-integrity-api/internal/models"
)

// MaxTrustScore is the score of a pair with no conflicts.
const MaxTrustScore = 100

// Penalties maps each conflict flag to the points it removes from the trust score.
type Penalties map[models.ConflictFlag]int

// DefaultPenalties is the production penalty table.
func DefaultPenalties() Penalties {
	return Penalties{
		models.FlagAttendedNotRegistered: 25,
		models.FlagCertifiedNotAttended:  20,
		models.FlagDuplicateAttendance:   10,
		models.FlagRegisteredNotAttended: 5,
		models.FlagAttendedNotCertified:  0,
	}
}

// Score applies the table to a set of flags, floored at zero.
func (p Penalties) Score(flags []models.ConflictFlag) int {
	score := MaxTrustScore
	for _, f := range flags {
		score -= p[f]
	}
	if score < 0 {
		return 0
	}
	return score
}

// Facts are the source rows of one (student, event) pair.
type Facts struct {
	StudentID    string
	EventID      string
	Registered   bool
	Scans        []models.AttendanceScan
	Certificates []models.Certificate
	Roles        []models.RoleType
	// Corrections are participation corrections recorded in the audit ledger for this pair.
	Corrections []models.AuditEntry
}

// Projector reconciles facts. It holds no state between calls.
type Projector struct {
	penalties Penalties
}

// New builds a projector. A nil table selects DefaultPenalties.
func New(penalties Penalties) *Projector {
	if penalties == nil {
		penalties = DefaultPenalties()
	}
	return &Projector{penalties: penalties}
}

// Reconcile computes the view of one pair.
func (p *Projector) Reconcile(f Facts) models.Reconciliation {
	valid := validScans(f.Scans)

	rec := models.Reconciliation{
		ParticipationRecord: models.ParticipationRecord{
			StudentID:  f.StudentID,
			EventID:    f.EventID,
			Registered: f.Registered,
			Attended:   len(valid) > 0,
			Roles:      models.NewRoleSet(f.Roles...),
		},
		ValidScanCount: len(valid),
	}

	if len(valid) > 0 {
		id := valid[0].ID
		rec.AuthoritativeScanID = &id
		for _, s := range valid[1:] {
			rec.DuplicateScanIDs = append(rec.DuplicateScanIDs, s.ID)
		}
	}

	if state, ok := latestCorrection(f.Corrections); ok {
		rec.Registered = state.Registered
		rec.Attended = state.Attended
	}

	live, revoked := splitCertificates(f.Certificates)
	if live != nil {
		id := live.ID
		rec.CertificateID = &id
		rec.Certified = true
	} else if revoked != nil {
		id := revoked.ID
		rec.CertificateID = &id
		rec.CertificateRevoked = true
	}

	rec.ConflictFlags = flags(rec.ParticipationRecord, len(valid))
	rec.TrustScore = p.penalties.Score(rec.ConflictFlags)
	rec.Status = status(rec, len(f.Scans))

	return rec
}

// ReconcileEvent reconciles every pair of one event, sorted by student id.
func (p *Projector) ReconcileEvent(eventID string, facts []Facts) models.EventReconciliation {
	out := models.EventReconciliation{EventID: eventID, Records: make([]models.Reconciliation, 0, len(facts))}
	for _, f := range facts {
		rec := p.Reconcile(f)
		if len(rec.ConflictFlags) > 0 {
			out.Conflicted++
		}
		out.Records = append(out.Records, rec)
	}
	sort.Slice(out.Records, func(i, j int) bool { return out.Records[i].StudentID < out.Records[j].StudentID })
	return out
}

func flags(r models.ParticipationRecord, validScans int) []models.ConflictFlag {
	raised := map[models.ConflictFlag]bool{
		models.FlagRegisteredNotAttended: r.Registered && !r.Attended,
		models.FlagAttendedNotRegistered: r.Attended && !r.Registered,
		models.FlagCertifiedNotAttended:  r.Certified && !r.Attended,
		models.FlagAttendedNotCertified:  r.Attended && !r.Certified,
		models.FlagDuplicateAttendance:   validScans > 1,
	}
	out := make([]models.ConflictFlag, 0, 2)
	for _, f := range models.AllConflictFlags {
		if raised[f] {
			out = append(out, f)
		}
	}
	return out
}

func status(r models.Reconciliation, totalScans int) models.CanonicalStatus {
	switch {
	case r.Certified:
		return models.StatusCertified
	case r.CertificateRevoked:
		return models.StatusInvalidated
	case r.Attended:
		return models.StatusAttendedNoCertificate
	case totalScans > 0:
		return models.StatusInvalidated
	case r.Registered:
		return models.StatusRegisteredOnly
	default:
		return models.StatusUnknown
	}
}

// validScans returns the non-invalidated scans ordered by time, ties broken by id.
func validScans(scans []models.AttendanceScan) []models.AttendanceScan {
	out := make([]models.AttendanceScan, 0, len(scans))
	for _, s := range scans {
		if s.Counts() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScannedAt.Equal(out[j].ScannedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScannedAt.Before(out[j].ScannedAt)
	})
	return out
}

// splitCertificates picks the earliest live certificate and the latest revoked one.
func splitCertificates(certs []models.Certificate) (live, revoked *models.Certificate) {
	for i := range certs {
		c := &certs[i]
		if c.Revoked {
			if revoked == nil || c.IssuedAt.After(revoked.IssuedAt) {
				revoked = c
			}
			continue
		}
		if live == nil || c.IssuedAt.Before(live.IssuedAt) {
			live = c
		}
	}
	return live, revoked
}

func latestCorrection(entries []models.AuditEntry) (models.ParticipationState, bool) {
	var (
		latest *models.AuditEntry
		state  models.ParticipationState
	)
	for i := range entries {
		e := &entries[i]
		if e.ActionType != models.AuditActionCorrection || e.TargetType != models.AuditTargetParticipation {
			continue
		}
		if latest == nil || e.Sequence > latest.Sequence {
			latest = e
		}
	}
	if latest == nil {
		return state, false
	}
	if err := latest.NewState.Decode(&state); err != nil {
		return state, false
	}
	return state, true
}
