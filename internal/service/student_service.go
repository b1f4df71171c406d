package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-engine/internal/models"
	appErrors "github.com/noah-isme/enrollment-engine/pkg/errors"
)

type studentEligibilityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	SetEnrollmentEnabled(ctx context.Context, id string, enabled bool) error
}

// StudentService administers per-student enrollment eligibility.
type StudentService struct {
	repo   studentEligibilityRepository
	audit  auditTrail
	logger *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentEligibilityRepository, audit auditWriter, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, audit: newAuditTrail(audit, logger), logger: logger}
}

// SetEligibility enables or disables enrollment for one student, typically after rollover.
func (s *StudentService) SetEligibility(ctx context.Context, studentID string, enabled bool, actor models.Actor) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	previous := student.EnrollmentEnabled
	if previous == enabled {
		return student, nil
	}
	if err := s.repo.SetEnrollmentEnabled(ctx, studentID, enabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to update student eligibility")
	}
	student.EnrollmentEnabled = enabled
	s.audit.record(ctx, actor, models.AuditActionStudentEligibility, models.AuditResourceStudent, studentID,
		map[string]bool{"enrollment_enabled": previous},
		map[string]bool{"enrollment_enabled": enabled},
	)
	s.logger.Info("student eligibility updated", zap.String("student_id", studentID), zap.Bool("enabled", enabled), zap.String("actor", actor.UserID))
	return student, nil
}
