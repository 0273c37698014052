package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/unipass-integrity-api/internal/ledger"
	"github.com/noah-isme/unipass-integrity-api/internal/models"
	"github.com/noah-isme/unipass-integrity-api/internal/repository"
	appErrors "github.com/noah-isme/unipass-integrity-api/pkg/errors"
)

// fakeDB is an in-memory fact store shared by the repository fakes below.
type fakeDB struct {
	mu            sync.Mutex
	events        map[string]models.Event
	students      map[string]models.Student
	registrations []models.Registration
	roles         []models.RoleAssignment
	scans         []models.AttendanceScan
	certs         []models.Certificate
	audit         []models.AuditEntry
	verifications []models.CertificateVerification
	snapshots     []models.AnomalyModelSnapshot
	thresholds    map[string]models.AnomalyThresholds
	writes        int
	readErr       error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		events:     make(map[string]models.Event),
		students:   make(map[string]models.Student),
		thresholds: make(map[string]models.AnomalyThresholds),
	}
}

func (db *fakeDB) addEvent(id string, start time.Time, duration time.Duration) {
	db.events[id] = models.Event{ID: id, Title: "Event " + id, StartTime: start, EndTime: start.Add(duration)}
}

func (db *fakeDB) addStudent(id string) {
	db.students[id] = models.Student{ID: id, Name: "Student " + id}
}

func (db *fakeDB) register(studentID, eventID string, at time.Time) {
	db.registrations = append(db.registrations, models.Registration{StudentID: studentID, EventID: eventID, RegisteredAt: at})
}

func (db *fakeDB) scan(id, studentID, eventID string, at time.Time, source models.ScanSource) {
	db.scans = append(db.scans, models.AttendanceScan{ID: id, StudentID: studentID, EventID: eventID, ScannedAt: at, Source: source})
}

func (db *fakeDB) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.readErr
}

func (db *fakeDB) appendEntry(entry *models.AuditEntry) {
	prev := ""
	if n := len(db.audit); n > 0 {
		prev = db.audit[n-1].RecordHash
	}
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("audit-%d", len(db.audit)+1)
	}
	entry.Sequence = int64(len(db.audit) + 1)
	ledger.Seal(prev, entry)
	db.audit = append(db.audit, *entry)
}

type fakeEvents struct{ db *fakeDB }

func (f fakeEvents) GetByID(ctx context.Context, id string) (*models.Event, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.check(ctx); err != nil {
		return nil, err
	}
	e, ok := f.db.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (f fakeEvents) ListByIDs(ctx context.Context, ids []string) ([]models.Event, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Event
	for _, id := range ids {
		if e, ok := f.db.events[id]; ok {
			out = append(out, e)
		}
	}
	return out, f.db.check(ctx)
}

func (f fakeEvents) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (f fakeEvents) ListRegistrations(ctx context.Context, eventID string) ([]models.Registration, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Registration
	for _, r := range f.db.registrations {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, f.db.check(ctx)
}

func (f fakeEvents) ListRegistrationsByStudents(ctx context.Context, studentIDs []string) ([]models.Registration, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Registration
	for _, r := range f.db.registrations {
		if contains(studentIDs, r.StudentID) {
			out = append(out, r)
		}
	}
	return out, f.db.check(ctx)
}

func (f fakeEvents) ListRoles(ctx context.Context, eventID string) ([]models.RoleAssignment, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.RoleAssignment
	for _, r := range f.db.roles {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, f.db.check(ctx)
}

func (f fakeEvents) Watermark(ctx context.Context, eventID string) (*models.FactWatermark, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.check(ctx); err != nil {
		return nil, err
	}
	e, ok := f.db.events[eventID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	w := models.FactWatermark{EventStart: e.StartTime, EventEnd: e.EndTime}
	var regs, roles, scans, certs []string
	for _, r := range f.db.registrations {
		if r.EventID == eventID {
			regs = append(regs, fmt.Sprintf("%s:%d", r.StudentID, r.RegisteredAt.UnixMicro()))
		}
	}
	for _, r := range f.db.roles {
		if r.EventID == eventID {
			roles = append(roles, r.StudentID+":"+string(r.Role))
		}
	}
	for _, sc := range f.db.scans {
		if sc.EventID == eventID {
			scans = append(scans, fmt.Sprintf("%s:%s:%d:%s:%t", sc.ID, sc.StudentID, sc.ScannedAt.UnixMicro(), sc.Source, sc.Invalidated))
		}
	}
	for _, c := range f.db.certs {
		if c.EventID == eventID {
			certs = append(certs, fmt.Sprintf("%s:%s:%d:%t", c.ID, c.StudentID, c.IssuedAt.UnixMicro(), c.Revoked))
		}
	}
	for _, part := range [][]string{regs, roles, scans, certs} {
		sort.Strings(part)
	}
	w.RegistrationsDigest = strings.Join(regs, ",")
	w.RolesDigest = strings.Join(roles, ",")
	w.ScansDigest = strings.Join(scans, ",")
	w.CertificatesDigest = strings.Join(certs, ",")
	for _, a := range f.db.audit {
		if a.EventID == eventID && a.Sequence > w.LastAuditSeq {
			w.LastAuditSeq = a.Sequence
		}
	}
	return &w, nil
}

type fakeScans struct{ db *fakeDB }

func (f fakeScans) GetByID(ctx context.Context, id string) (*models.AttendanceScan, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, s := range f.db.scans {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f fakeScans) ListByEvent(ctx context.Context, eventID string) ([]models.AttendanceScan, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.AttendanceScan
	for _, s := range f.db.scans {
		if s.EventID == eventID {
			out = append(out, s)
		}
	}
	return out, f.db.check(ctx)
}

func (f fakeScans) ListByStudents(ctx context.Context, studentIDs []string) ([]models.AttendanceScan, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.AttendanceScan
	for _, s := range f.db.scans {
		if contains(studentIDs, s.StudentID) {
			out = append(out, s)
		}
	}
	return out, f.db.check(ctx)
}

func (f fakeScans) ListSince(ctx context.Context, since time.Time) ([]models.AttendanceScan, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.AttendanceScan
	for _, s := range f.db.scans {
		if s.Counts() && !s.ScannedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, f.db.check(ctx)
}

func (f fakeScans) CountsByStudents(ctx context.Context, studentIDs []string) ([]models.ScanCounts, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	counts := make(map[string]*models.ScanCounts)
	for _, s := range f.db.scans {
		if !s.Counts() || !contains(studentIDs, s.StudentID) {
			continue
		}
		c, ok := counts[s.StudentID]
		if !ok {
			c = &models.ScanCounts{StudentID: s.StudentID}
			counts[s.StudentID] = c
		}
		c.Total++
		if s.Source == models.ScanSourceAdminOverride {
			c.Overrides++
		}
	}
	out := make([]models.ScanCounts, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	return out, f.db.check(ctx)
}

func (f fakeScans) InvalidateWithAudit(ctx context.Context, scanID string, entry *models.AuditEntry) (*models.AttendanceScan, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for i := range f.db.scans {
		s := &f.db.scans[i]
		if s.ID != scanID {
			continue
		}
		if s.Invalidated {
			return nil, repository.ErrAlreadyApplied
		}
		before := s.State()
		reason, by, when := entry.Reason, entry.PerformedBy, ledger.Timestamp(entry.Timestamp)
		s.Invalidated = true
		s.InvalidationReason = &reason
		s.InvalidatedAt = &when
		s.InvalidatedBy = &by

		entry.ActionType = models.AuditActionInvalidation
		entry.TargetType = models.AuditTargetAttendance
		entry.TargetID = s.ID
		entry.EventID = s.EventID
		entry.StudentID = s.StudentID
		entry.OldState, _ = models.NewJSONState(before)
		entry.NewState, _ = models.NewJSONState(s.State())
		f.db.appendEntry(entry)
		f.db.writes++
		out := *s
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

type fakeCerts struct {
	db        *fakeDB
	createErr error
}

func (f fakeCerts) GetByID(ctx context.Context, id string) (*models.Certificate, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, c := range f.db.certs {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f fakeCerts) ListByEvent(ctx context.Context, eventID string) ([]models.Certificate, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Certificate
	for _, c := range f.db.certs {
		if c.EventID == eventID {
			out = append(out, c)
		}
	}
	return out, f.db.check(ctx)
}

func (f fakeCerts) ListByStudent(ctx context.Context, eventID, studentID string) ([]models.Certificate, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Certificate
	for _, c := range f.db.certs {
		if c.EventID == eventID && c.StudentID == studentID {
			out = append(out, c)
		}
	}
	return out, f.db.check(ctx)
}

func (f fakeCerts) Create(ctx context.Context, cert *models.Certificate) error {
	return f.CreateBatch(ctx, []models.Certificate{*cert})
}

func (f fakeCerts) CreateBatch(ctx context.Context, certs []models.Certificate) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, next := range certs {
		for _, c := range f.db.certs {
			if !c.Revoked && c.StudentID == next.StudentID && c.EventID == next.EventID {
				return repository.ErrDuplicate
			}
		}
	}
	f.db.certs = append(f.db.certs, certs...)
	f.db.writes++
	return nil
}

func (f fakeCerts) RevokeWithAudit(ctx context.Context, id string, entry *models.AuditEntry) (*models.Certificate, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for i := range f.db.certs {
		c := &f.db.certs[i]
		if c.ID != id {
			continue
		}
		if c.Revoked {
			return nil, repository.ErrAlreadyApplied
		}
		before := c.State()
		reason, by, when := entry.Reason, entry.PerformedBy, ledger.Timestamp(entry.Timestamp)
		c.Revoked = true
		c.RevocationReason = &reason
		c.RevokedAt = &when
		c.RevokedBy = &by

		entry.ActionType = models.AuditActionRevocation
		entry.TargetType = models.AuditTargetCertificate
		entry.TargetID = c.ID
		entry.EventID = c.EventID
		entry.StudentID = c.StudentID
		entry.OldState, _ = models.NewJSONState(before)
		entry.NewState, _ = models.NewJSONState(c.State())
		f.db.appendEntry(entry)
		f.db.writes++
		out := *c
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (f fakeCerts) RecordVerification(ctx context.Context, v *models.CertificateVerification) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.verifications = append(f.db.verifications, *v)
	return nil
}

func (f fakeCerts) ListVerifications(ctx context.Context, eventID string) ([]models.CertificateVerification, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.CertificateVerification
	for _, v := range f.db.verifications {
		if v.EventID == eventID {
			out = append(out, v)
		}
	}
	return out, f.db.check(ctx)
}

type fakeAudit struct{ db *fakeDB }

func (f fakeAudit) Append(ctx context.Context, entry *models.AuditEntry) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	entry.Timestamp = ledger.Timestamp(entry.Timestamp)
	f.db.appendEntry(entry)
	f.db.writes++
	return nil
}

func (f fakeAudit) ListByStudent(ctx context.Context, eventID, studentID string) ([]models.AuditEntry, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range f.db.audit {
		if e.EventID == eventID && e.StudentID == studentID {
			out = append(out, e)
		}
	}
	return out, f.db.check(ctx)
}

func (f fakeAudit) ListByEvent(ctx context.Context, eventID string) ([]models.AuditEntry, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range f.db.audit {
		if e.EventID == eventID {
			out = append(out, e)
		}
	}
	return out, f.db.check(ctx)
}

func (f fakeAudit) ListPage(ctx context.Context, afterSeq int64, limit int) ([]models.AuditEntry, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range f.db.audit {
		if e.Sequence > afterSeq && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, f.db.check(ctx)
}

type fakeAnomalyStore struct {
	db      *fakeDB
	saveErr error
}

func (f fakeAnomalyStore) SaveModel(ctx context.Context, snap *models.AnomalyModelSnapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	kept := f.db.snapshots[:0]
	for _, s := range f.db.snapshots {
		if s.TenantID != snap.TenantID {
			kept = append(kept, s)
		}
	}
	f.db.snapshots = append(kept, *snap)
	f.db.writes++
	return nil
}

func (f fakeAnomalyStore) ListActive(ctx context.Context) ([]models.AnomalyModelSnapshot, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return append([]models.AnomalyModelSnapshot(nil), f.db.snapshots...), f.db.check(ctx)
}

func (f fakeAnomalyStore) GetThresholds(ctx context.Context, tenantID string) (*models.AnomalyThresholds, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	th, ok := f.db.thresholds[tenantID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &th, nil
}

func (f fakeAnomalyStore) UpsertThresholds(ctx context.Context, th models.AnomalyThresholds) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.thresholds[th.TenantID] = th
	return nil
}

// memoryCache is a CacheRepository backed by a map of JSON documents.
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = raw
	return nil
}

func (c *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
	return nil
}

func (c *memoryCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.items))
	for k := range c.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func newFactLoader(db *fakeDB) *FactLoader {
	return NewFactLoader(fakeEvents{db}, fakeScans{db}, fakeCerts{db: db}, fakeAudit{db}, nil)
}
