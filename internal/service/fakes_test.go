package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/enrollment-engine/internal/models"
	"github.com/noah-isme/enrollment-engine/internal/repository"
	"github.com/noah-isme/enrollment-engine/pkg/jobs"
)

// memoryStore is an in-memory enrollment store. WithSectionLock serializes callers per
// section and only publishes writes when the callback succeeds.
type memoryStore struct {
	mu           sync.Mutex
	sectionLocks map[string]*sync.Mutex
	sections     map[string]models.Section
	students     map[string]models.Student
	enrollments  map[string]models.Enrollment
	seq          int

	archiveErrAfter int
	archiveErr      error
	archiveCalls    int
	archiveEmpty    int
	hasActiveCalls  int
	deleteErr       error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sectionLocks: map[string]*sync.Mutex{},
		sections:     map[string]models.Section{},
		students:     map[string]models.Student{},
		enrollments:  map[string]models.Enrollment{},
	}
}

func (m *memoryStore) addSection(section models.Section) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections[section.ID] = section
}

func (m *memoryStore) addStudent(student models.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[student.ID] = student
}

func (m *memoryStore) addEnrollment(e models.Enrollment) models.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		m.seq++
		e.ID = fmt.Sprintf("enr-%d", m.seq)
	}
	m.enrollments[e.ID] = e
	return e
}

func (m *memoryStore) get(id string) models.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enrollments[id]
}

func (m *memoryStore) rowsFor(studentID, sectionID, term string) []models.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.Enrollment
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.SectionID == sectionID && e.Term == term {
			rows = append(rows, e)
		}
	}
	return rows
}

func (m *memoryStore) countActiveLocked(sectionID, term string, overlay map[string]models.Enrollment) int {
	count := 0
	seen := map[string]bool{}
	for id, e := range overlay {
		seen[id] = true
		if e.SectionID == sectionID && e.Term == term && e.IsActive() {
			count++
		}
	}
	for id, e := range m.enrollments {
		if seen[id] {
			continue
		}
		if e.SectionID == sectionID && e.Term == term && e.IsActive() {
			count++
		}
	}
	return count
}

func (m *memoryStore) detail(e models.Enrollment) models.EnrollmentDetail {
	section := m.sections[e.SectionID]
	student := m.students[e.StudentID]
	taken := m.countActiveLocked(e.SectionID, e.Term, nil)
	return models.EnrollmentDetail{
		Enrollment:      e,
		StudentName:     student.FullName,
		StudentCode:     student.Code,
		StudentLevel:    student.AcademicLevel,
		SectionCode:     section.Code,
		SectionLevel:    section.AcademicLevel,
		SectionCapacity: section.Capacity,
		SeatsTaken:      taken,
		SeatsAvailable:  section.Capacity - taken,
	}
}

func (m *memoryStore) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []models.EnrollmentDetail
	for _, e := range m.enrollments {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Term != "" && e.Term != filter.Term {
			continue
		}
		items = append(items, m.detail(e))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, len(items), nil
}

func (m *memoryStore) ListByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.EnrollmentDetail, error) {
	return m.filter(func(e models.Enrollment) bool {
		return e.StudentID == studentID && (!activeOnly || e.IsActive())
	}), nil
}

func (m *memoryStore) ListBySection(ctx context.Context, sectionID string, activeOnly bool) ([]models.EnrollmentDetail, error) {
	return m.filter(func(e models.Enrollment) bool {
		return e.SectionID == sectionID && (!activeOnly || e.IsActive())
	}), nil
}

func (m *memoryStore) filter(keep func(models.Enrollment) bool) []models.EnrollmentDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := []models.EnrollmentDetail{}
	for _, e := range m.enrollments {
		if keep(e) {
			items = append(items, m.detail(e))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func (m *memoryStore) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *memoryStore) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d := m.detail(e)
	return &d, nil
}

func (m *memoryStore) CountActive(ctx context.Context, sectionID, term string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countActiveLocked(sectionID, term, nil), nil
}

func (m *memoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.enrollments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.enrollments, id)
	return nil
}

func (m *memoryStore) ArchiveActiveBatch(ctx context.Context, limit int, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archiveCalls++
	if m.archiveErr != nil && m.archiveCalls > m.archiveErrAfter {
		return 0, m.archiveErr
	}
	// leading empty batches stand in for rows that changed status while the batch waited
	if m.archiveEmpty > 0 {
		m.archiveEmpty--
		return 0, nil
	}
	ids := make([]string, 0)
	for id, e := range m.enrollments {
		if e.IsActive() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		e := m.enrollments[id]
		e.Withdraw(now)
		m.enrollments[id] = e
	}
	return len(ids), nil
}

func (m *memoryStore) HasActive(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasActiveCalls++
	for _, e := range m.enrollments {
		if e.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) WithSectionLock(ctx context.Context, sectionID string, fn func(repository.SectionScope) error) error {
	m.mu.Lock()
	section, ok := m.sections[sectionID]
	if !ok {
		m.mu.Unlock()
		return repository.ErrSectionNotFound
	}
	l, ok := m.sectionLocks[sectionID]
	if !ok {
		l = &sync.Mutex{}
		m.sectionLocks[sectionID] = l
	}
	m.mu.Unlock()

	l.Lock()
	defer l.Unlock()

	scope := &memoryScope{store: m, section: section, pending: map[string]models.Enrollment{}}
	if err := fn(scope); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range scope.pending {
		m.enrollments[id] = e
	}
	return nil
}

type memoryScope struct {
	store   *memoryStore
	section models.Section
	pending map[string]models.Enrollment
}

func (s *memoryScope) Section() *models.Section {
	return &s.section
}

func (s *memoryScope) lookup(match func(models.Enrollment) bool) *models.Enrollment {
	for _, e := range s.pending {
		if match(e) {
			found := e
			return &found
		}
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for id, e := range s.store.enrollments {
		if _, shadowed := s.pending[id]; shadowed {
			continue
		}
		if match(e) {
			found := e
			return &found
		}
	}
	return nil
}

func (s *memoryScope) FindByTuple(ctx context.Context, studentID, term string) (*models.Enrollment, error) {
	return s.lookup(func(e models.Enrollment) bool {
		return e.StudentID == studentID && e.SectionID == s.section.ID && e.Term == term
	}), nil
}

func (s *memoryScope) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	found := s.lookup(func(e models.Enrollment) bool { return e.ID == id && e.SectionID == s.section.ID })
	if found == nil {
		return nil, sql.ErrNoRows
	}
	return found, nil
}

func (s *memoryScope) CountActive(ctx context.Context, term string) (int, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.store.countActiveLocked(s.section.ID, term, s.pending), nil
}

func (s *memoryScope) Insert(ctx context.Context, enrollment *models.Enrollment) error {
	if existing, _ := s.FindByTuple(ctx, enrollment.StudentID, enrollment.Term); existing != nil {
		return repository.ErrDuplicateEnrollment
	}
	s.store.mu.Lock()
	s.store.seq++
	enrollment.ID = fmt.Sprintf("enr-%d", s.store.seq)
	s.store.mu.Unlock()
	s.pending[enrollment.ID] = *enrollment
	return nil
}

func (s *memoryScope) SaveState(ctx context.Context, enrollment *models.Enrollment) error {
	s.pending[enrollment.ID] = *enrollment
	return nil
}

type memoryStudents struct {
	store *memoryStore
}

func (m memoryStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	student, ok := m.store.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

func (m memoryStudents) SetEnrollmentEnabled(ctx context.Context, id string, enabled bool) error {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	student, ok := m.store.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	student.EnrollmentEnabled = enabled
	m.store.students[id] = student
	return nil
}

type studentLockerStub struct {
	mu       sync.Mutex
	calls    int
	failures int
	affected int
}

func (s *studentLockerStub) DisableAllEnrollment(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return 0, fmt.Errorf("students table locked")
	}
	return s.affected, nil
}

type termWindowStub struct {
	mu        sync.Mutex
	window    *models.TermWindow
	getErr    error
	updated   *models.TermWindow
	disables  int
	failures  int
	updateErr error
}

func (t *termWindowStub) Get(ctx context.Context) (*models.TermWindow, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.getErr != nil {
		return nil, t.getErr
	}
	if t.window == nil {
		return nil, sql.ErrNoRows
	}
	w := *t.window
	return &w, nil
}

func (t *termWindowStub) Current(ctx context.Context) (*models.TermWindow, error) {
	return t.Get(ctx)
}

func (t *termWindowStub) Update(ctx context.Context, window *models.TermWindow) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.updateErr != nil {
		return t.updateErr
	}
	w := *window
	t.updated = &w
	t.window = &w
	return nil
}

func (t *termWindowStub) DisableEnrollment(ctx context.Context, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disables++
	if t.disables <= t.failures {
		return fmt.Errorf("term_settings unavailable")
	}
	if t.window != nil {
		t.window.EnrollmentEnabled = false
	}
	return nil
}

type auditStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

type queueStub struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}
