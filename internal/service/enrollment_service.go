package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-engine/internal/models"
	"github.com/noah-isme/enrollment-engine/internal/repository"
	appErrors "github.com/noah-isme/enrollment-engine/pkg/errors"
)

// DefaultPassingGrade is the lowest grade that completes an enrollment.
const DefaultPassingGrade = 11.0

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	ListByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.EnrollmentDetail, error)
	ListBySection(ctx context.Context, sectionID string, activeOnly bool) ([]models.EnrollmentDetail, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Delete(ctx context.Context, id string) error
	WithSectionLock(ctx context.Context, sectionID string, fn func(repository.SectionScope) error) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type termContextReader interface {
	Current(ctx context.Context) (*models.TermWindow, error)
}

// EnrollRequest describes an enrollment request for the current term.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
	Notes     string `json:"notes" validate:"max=500"`
}

// AssignGradeRequest carries the final grade of an enrollment.
type AssignGradeRequest struct {
	Grade *float64 `json:"grade" validate:"required"`
}

// SetStatusRequest is the administrative status override payload.
type SetStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=ACTIVE WITHDRAWN COMPLETED"`
}

// EnrollmentConfig tunes grading policy.
type EnrollmentConfig struct {
	PassingGrade float64
}

// EnrollmentService is the enrollment state machine. Every transition runs inside the
// section lock so seat checks and writes observe the same committed state.
type EnrollmentService struct {
	repo         enrollmentRepository
	students     studentReader
	terms        termContextReader
	audit        auditTrail
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
	passingGrade float64
	now          func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, terms termContextReader, audit auditWriter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg EnrollmentConfig) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PassingGrade <= 0 || !models.ValidGrade(cfg.PassingGrade) {
		cfg.PassingGrade = DefaultPassingGrade
	}
	return &EnrollmentService{
		repo:         repo,
		students:     students,
		terms:        terms,
		audit:        newAuditTrail(audit, logger),
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
		passingGrade: cfg.PassingGrade,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Enroll creates or reactivates the student's enrollment in a section for the current term.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (detail *models.EnrollmentDetail, err error) {
	defer func() {
		s.observe("enroll", err, zap.String("student_id", req.StudentID), zap.String("section_id", req.SectionID))
	}()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	now := s.now()
	window, err := s.terms.Current(ctx)
	if err != nil {
		return nil, translateTermError(err)
	}
	if !window.IsOpen(now) {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentWindowClosed, "enrollment window is closed")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	if !student.EnrollmentEnabled {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentWindowClosed, "student is not enabled for enrollment")
	}

	var enrollmentID string
	err = s.repo.WithSectionLock(ctx, req.SectionID, func(scope repository.SectionScope) error {
		section := scope.Section()
		if !section.AcceptsEnrollment(now) {
			return appErrors.Clone(appErrors.ErrSectionInactiveOrEnded, "section is inactive or has already ended")
		}
		if section.AcademicLevel != student.AcademicLevel {
			return appErrors.Clone(appErrors.ErrLevelMismatch, "student level does not match section level")
		}
		existing, err := scope.FindByTuple(ctx, student.ID, window.CurrentTerm)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status != models.EnrollmentStatusWithdrawn {
			return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "student already enrolled in section for term")
		}
		count, err := scope.CountActive(ctx, window.CurrentTerm)
		if err != nil {
			return err
		}
		if !SeatAvailable(count, section.Capacity) {
			return appErrors.Clone(appErrors.ErrCapacityExceeded, "section has no seats available")
		}

		if existing != nil {
			existing.Reactivate(req.Notes, now)
			enrollmentID = existing.ID
			return scope.SaveState(ctx, existing)
		}
		enrollment := models.NewEnrollment(student.ID, section.ID, window.CurrentTerm, req.Notes, now)
		if err := scope.Insert(ctx, enrollment); err != nil {
			return err
		}
		enrollmentID = enrollment.ID
		return nil
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to enroll student")
	}
	return s.loadDetail(ctx, enrollmentID)
}

// Withdraw frees the student's seat in a section for the current term.
func (s *EnrollmentService) Withdraw(ctx context.Context, studentID, sectionID string) (detail *models.EnrollmentDetail, err error) {
	defer func() {
		s.observe("withdraw", err, zap.String("student_id", studentID), zap.String("section_id", sectionID))
	}()

	if studentID == "" || sectionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id and section id are required")
	}
	now := s.now()
	window, err := s.terms.Current(ctx)
	if err != nil {
		return nil, translateTermError(err)
	}

	var enrollmentID string
	err = s.repo.WithSectionLock(ctx, sectionID, func(scope repository.SectionScope) error {
		existing, err := scope.FindByTuple(ctx, studentID, window.CurrentTerm)
		if err != nil {
			return err
		}
		if existing == nil || !existing.IsActive() {
			return appErrors.Clone(appErrors.ErrNotFound, "no active enrollment in section for current term")
		}
		if scope.Section().HasEnded(now) {
			return appErrors.Clone(appErrors.ErrSectionAlreadyEnded, "cannot withdraw from a section that has ended")
		}
		existing.Withdraw(now)
		enrollmentID = existing.ID
		return scope.SaveState(ctx, existing)
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to withdraw enrollment")
	}
	return s.loadDetail(ctx, enrollmentID)
}

// AssignGrade records the final grade and completes the enrollment when it passes after
// the section has ended.
func (s *EnrollmentService) AssignGrade(ctx context.Context, enrollmentID string, req AssignGradeRequest) (detail *models.EnrollmentDetail, err error) {
	defer func() { s.observe("assign_grade", err, zap.String("enrollment_id", enrollmentID)) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	grade := *req.Grade
	if !models.ValidGrade(grade) {
		return nil, appErrors.Clone(appErrors.ErrInvalidGrade, "grade must be between 0 and 20")
	}
	current, err := s.findEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.repo.WithSectionLock(ctx, current.SectionID, func(scope repository.SectionScope) error {
		enrollment, err := scope.FindByID(ctx, enrollmentID)
		if err != nil {
			return err
		}
		enrollment.RecordGrade(grade, s.passingGrade, scope.Section().HasEnded(now), now)
		return scope.SaveState(ctx, enrollment)
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to assign grade")
	}
	return s.loadDetail(ctx, enrollmentID)
}

// AdminSetStatus overrides the status without capacity or eligibility checks.
func (s *EnrollmentService) AdminSetStatus(ctx context.Context, enrollmentID string, req SetStatusRequest, actor models.Actor) (detail *models.EnrollmentDetail, err error) {
	defer func() { s.observe("admin_set_status", err, zap.String("enrollment_id", enrollmentID)) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	current, err := s.findEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var before, after models.Enrollment
	err = s.repo.WithSectionLock(ctx, current.SectionID, func(scope repository.SectionScope) error {
		enrollment, err := scope.FindByID(ctx, enrollmentID)
		if err != nil {
			return err
		}
		before = *enrollment
		enrollment.OverrideStatus(req.Status, now)
		after = *enrollment
		return scope.SaveState(ctx, enrollment)
	})
	if err != nil {
		return nil, translateStoreError(err, "failed to update enrollment status")
	}
	s.audit.record(ctx, actor, models.AuditActionEnrollmentStatusOverride, models.AuditResourceEnrollment, enrollmentID,
		map[string]interface{}{"status": before.Status, "withdrawn_at": before.WithdrawnAt},
		map[string]interface{}{"status": after.Status, "withdrawn_at": after.WithdrawnAt},
	)
	return s.loadDetail(ctx, enrollmentID)
}

// Delete removes an enrollment permanently.
func (s *EnrollmentService) Delete(ctx context.Context, enrollmentID string, actor models.Actor) (err error) {
	defer func() { s.observe("delete", err, zap.String("enrollment_id", enrollmentID)) }()

	current, err := s.findEnrollment(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, enrollmentID); err != nil {
		return translateStoreError(err, "failed to delete enrollment")
	}
	s.audit.record(ctx, actor, models.AuditActionEnrollmentDelete, models.AuditResourceEnrollment, enrollmentID, current, nil)
	return nil
}

// ListMine returns the enrollments of a student.
func (s *EnrollmentService) ListMine(ctx context.Context, studentID string, activeOnly bool) ([]models.EnrollmentDetail, error) {
	items, err := s.repo.ListByStudent(ctx, studentID, activeOnly)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list student enrollments")
	}
	return items, nil
}

// ListSection returns the roster of a section.
func (s *EnrollmentService) ListSection(ctx context.Context, sectionID string, activeOnly bool) ([]models.EnrollmentDetail, error) {
	items, err := s.repo.ListBySection(ctx, sectionID, activeOnly)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list section enrollments")
	}
	return items, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment status")
	}
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// GetByID returns the enrollment snapshot.
func (s *EnrollmentService) GetByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	return s.loadDetail(ctx, id)
}

func (s *EnrollmentService) findEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) loadDetail(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment detail")
	}
	return detail, nil
}

func (s *EnrollmentService) observe(operation string, err error, fields ...zap.Field) {
	s.metrics.RecordEnrollmentOperation(operation, err)
	if err == nil {
		s.logger.Debug("enrollment operation succeeded", append(fields, zap.String("operation", operation))...)
		return
	}
	appErr := appErrors.FromError(err)
	fields = append(fields, zap.String("operation", operation), zap.String("code", appErr.Code))
	if appErr.Status >= 500 {
		s.logger.Error("enrollment operation failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Warn("enrollment operation rejected", append(fields, zap.String("reason", appErr.Message))...)
}

// translateStoreError maps errors escaping the section lock onto the error taxonomy.
// translateTermError maps a term window lookup failure; a missing singleton row means the
// deployment was never configured.
func translateTermError(err error) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrConfigurationMissing, "term window is not configured")
	default:
		return appErrors.Internal(err, "failed to load term window")
	}
}

func translateStoreError(err error, message string) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repository.ErrSectionNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "section not found")
	case errors.Is(err, repository.ErrDuplicateEnrollment):
		return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "student already enrolled in section for term")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	default:
		return appErrors.Internal(err, message)
	}
}
