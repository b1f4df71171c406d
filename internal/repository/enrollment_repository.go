package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/enrollment-engine/internal/models"
)

var (
	// ErrSectionNotFound is returned by WithSectionLock when the section row does not exist.
	ErrSectionNotFound = errors.New("section not found")
	// ErrDuplicateEnrollment signals a (student, section, term) unique violation.
	ErrDuplicateEnrollment = errors.New("enrollment already exists for student, section and term")
)

const enrollmentColumns = `id, student_id, section_id, term, status, enrolled_at, withdrawn_at, final_grade, notes, updated_at`

const sectionColumns = `id, course_id, instructor_id, code, capacity, academic_level, turn, classroom, active, start_date, end_date`

const enrollmentDetailSelect = `SELECT e.id, e.student_id, e.section_id, e.term, e.status, e.enrolled_at, e.withdrawn_at, e.final_grade, e.notes, e.updated_at,
	st.full_name AS student_name, st.code AS student_code, st.academic_level AS student_level,
	sec.code AS section_code, sec.academic_level AS section_level, sec.turn AS section_turn, sec.classroom AS section_classroom,
	sec.capacity AS section_capacity, sec.start_date AS section_start_date, sec.end_date AS section_end_date,
	c.code AS course_code, c.name AS course_name, i.full_name AS instructor_name,
	COALESCE(occ.taken, 0) AS seats_taken,
	GREATEST(sec.capacity - COALESCE(occ.taken, 0), 0) AS seats_available`

const enrollmentDetailFrom = `FROM enrollments e
JOIN students st ON st.id = e.student_id
JOIN sections sec ON sec.id = e.section_id
JOIN courses c ON c.id = sec.course_id
LEFT JOIN instructors i ON i.id = sec.instructor_id
LEFT JOIN LATERAL (
	SELECT COUNT(*) AS taken FROM enrollments a
	WHERE a.section_id = e.section_id AND a.term = e.term AND a.status = 'ACTIVE'
) occ ON TRUE`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria together with the total count.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)))
	}
	if filter.SectionID != "" {
		args = append(args, filter.SectionID)
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)))
	}
	if filter.Term != "" {
		args = append(args, filter.Term)
		conditions = append(conditions, fmt.Sprintf("e.term = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "st.full_name",
		"section_code": "sec.code",
		"term":         "e.term",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("%s\n%s%s ORDER BY %s %s, e.id LIMIT %d OFFSET %d", enrollmentDetailSelect, enrollmentDetailFrom, clause, orderBy, order, size, offset)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM enrollments e" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListByStudent returns every enrollment of a student, newest term first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.EnrollmentDetail, error) {
	items, err := r.listDetails(ctx, "e.student_id", studentID, activeOnly, "e.term DESC, c.name ASC")
	if err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return items, nil
}

// ListBySection returns the roster of a section across terms.
func (r *EnrollmentRepository) ListBySection(ctx context.Context, sectionID string, activeOnly bool) ([]models.EnrollmentDetail, error) {
	items, err := r.listDetails(ctx, "e.section_id", sectionID, activeOnly, "e.term DESC, st.full_name ASC")
	if err != nil {
		return nil, fmt.Errorf("list section enrollments: %w", err)
	}
	return items, nil
}

func (r *EnrollmentRepository) listDetails(ctx context.Context, column, value string, activeOnly bool, orderBy string) ([]models.EnrollmentDetail, error) {
	query := strings.Builder{}
	fmt.Fprintf(&query, "%s\n%s WHERE %s = $1", enrollmentDetailSelect, enrollmentDetailFrom, column)
	args := []interface{}{value}
	if activeOnly {
		args = append(args, models.EnrollmentStatusActive)
		fmt.Fprintf(&query, " AND e.status = $%d", len(args))
	}
	fmt.Fprintf(&query, " ORDER BY %s", orderBy)

	items := []models.EnrollmentDetail{}
	if err := r.db.SelectContext(ctx, &items, query.String(), args...); err != nil {
		return nil, err
	}
	return items, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE id = $1"
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + "\n" + enrollmentDetailFrom + " WHERE e.id = $1"
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CountActive returns the number of ACTIVE enrollments of a section for a term.
func (r *EnrollmentRepository) CountActive(ctx context.Context, sectionID, term string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND term = $2 AND status = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sectionID, term, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// Delete removes an enrollment permanently. sql.ErrNoRows is returned when nothing matched.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ArchiveActiveBatch withdraws up to limit ACTIVE enrollments in a single statement and
// reports how many rows changed. Callers loop until it returns 0.
func (r *EnrollmentRepository) ArchiveActiveBatch(ctx context.Context, limit int, now time.Time) (int, error) {
	const query = `UPDATE enrollments
SET status = $1, withdrawn_at = COALESCE(withdrawn_at, $2), updated_at = $2
WHERE id IN (
	SELECT id FROM enrollments WHERE status = $3 ORDER BY id LIMIT $4 FOR UPDATE
)`
	res, err := r.db.ExecContext(ctx, query, models.EnrollmentStatusWithdrawn, now, models.EnrollmentStatusActive, limit)
	if err != nil {
		return 0, fmt.Errorf("archive active enrollments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive active enrollments: %w", err)
	}
	return int(affected), nil
}

// HasActive reports whether any ACTIVE enrollment remains in any term.
func (r *EnrollmentRepository) HasActive(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM enrollments WHERE status = $1)`, models.EnrollmentStatusActive); err != nil {
		return false, fmt.Errorf("check active enrollments: %w", err)
	}
	return exists, nil
}

// SectionScope exposes the enrollment operations available while a section row is locked.
// Every read and write goes through the same transaction.
type SectionScope interface {
	Section() *models.Section
	FindByTuple(ctx context.Context, studentID, term string) (*models.Enrollment, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	CountActive(ctx context.Context, term string) (int, error)
	Insert(ctx context.Context, enrollment *models.Enrollment) error
	SaveState(ctx context.Context, enrollment *models.Enrollment) error
}

// WithSectionLock runs fn inside a transaction holding a row lock on the section. Seat
// checks for one section are therefore serialized while other sections proceed freely.
// The transaction commits when fn returns nil and rolls back otherwise.
func (r *EnrollmentRepository) WithSectionLock(ctx context.Context, sectionID string, fn func(SectionScope) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	scope := &sectionTx{tx: tx}
	query := "SELECT " + sectionColumns + " FROM sections WHERE id = $1 FOR UPDATE"
	if err = tx.GetContext(ctx, &scope.section, query, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrSectionNotFound
			return err
		}
		return fmt.Errorf("lock section: %w", err)
	}

	if err = fn(scope); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment transaction: %w", err)
	}
	return nil
}

type sectionTx struct {
	tx      *sqlx.Tx
	section models.Section
}

func (s *sectionTx) Section() *models.Section {
	return &s.section
}

// FindByTuple returns nil without error when the student has no row for the section and term.
func (s *sectionTx) FindByTuple(ctx context.Context, studentID, term string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE student_id = $1 AND section_id = $2 AND term = $3 FOR UPDATE"
	var enrollment models.Enrollment
	if err := s.tx.GetContext(ctx, &enrollment, query, studentID, s.section.ID, term); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

func (s *sectionTx) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := "SELECT " + enrollmentColumns + " FROM enrollments WHERE id = $1 AND section_id = $2 FOR UPDATE"
	var enrollment models.Enrollment
	if err := s.tx.GetContext(ctx, &enrollment, query, id, s.section.ID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (s *sectionTx) CountActive(ctx context.Context, term string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND term = $2 AND status = $3`
	var count int
	if err := s.tx.GetContext(ctx, &count, query, s.section.ID, term, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

func (s *sectionTx) Insert(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	const query = `INSERT INTO enrollments (id, student_id, section_id, term, status, enrolled_at, withdrawn_at, final_grade, notes, updated_at)
VALUES (:id, :student_id, :section_id, :term, :status, :enrolled_at, :withdrawn_at, :final_grade, :notes, :updated_at)`
	if _, err := s.tx.NamedExecContext(ctx, query, enrollment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEnrollment
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func (s *sectionTx) SaveState(ctx context.Context, enrollment *models.Enrollment) error {
	const query = `UPDATE enrollments SET status = :status, withdrawn_at = :withdrawn_at, final_grade = :final_grade, notes = :notes, updated_at = :updated_at
WHERE id = :id`
	if _, err := s.tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
