package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-engine/internal/models"
	appErrors "github.com/noah-isme/enrollment-engine/pkg/errors"
)

type termWindowRepository interface {
	Get(ctx context.Context) (*models.TermWindow, error)
	Update(ctx context.Context, window *models.TermWindow) error
	DisableEnrollment(ctx context.Context, now time.Time) error
}

// UpdateTermWindowRequest replaces the term window values.
type UpdateTermWindowRequest struct {
	CurrentTerm       string     `json:"current_term" validate:"required,max=32"`
	EnrollmentEnabled bool       `json:"enrollment_enabled"`
	WindowStart       *time.Time `json:"window_start"`
	WindowEnd         *time.Time `json:"window_end"`
}

// TermContextService exposes the current term and the enrollment gate.
type TermContextService struct {
	repo      termWindowRepository
	audit     auditTrail
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewTermContextService constructs the service.
func NewTermContextService(repo termWindowRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *TermContextService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TermContextService{
		repo:      repo,
		audit:     newAuditTrail(audit, logger),
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Current fetches the term window. Callers fetch it once per operation and pass the value along.
func (s *TermContextService) Current(ctx context.Context) (*models.TermWindow, error) {
	window, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConfigurationMissing, "term window is not configured")
		}
		return nil, appErrors.Internal(err, "failed to load term window")
	}
	return window, nil
}

// CurrentTerm returns the identifier of the running academic term.
func (s *TermContextService) CurrentTerm(ctx context.Context) (string, error) {
	window, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	return window.CurrentTerm, nil
}

// IsEnrollmentWindowOpen reports whether enrollment is open at now.
func (s *TermContextService) IsEnrollmentWindowOpen(ctx context.Context, now time.Time) (bool, error) {
	window, err := s.Current(ctx)
	if err != nil {
		return false, err
	}
	return window.IsOpen(now), nil
}

// Update replaces the term window values.
func (s *TermContextService) Update(ctx context.Context, req UpdateTermWindowRequest, actor models.Actor) (*models.TermWindow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term window payload")
	}
	if req.WindowStart != nil && req.WindowEnd != nil && req.WindowEnd.Before(*req.WindowStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "window_end must not be before window_start")
	}
	previous, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}

	updated := &models.TermWindow{
		CurrentTerm:       req.CurrentTerm,
		EnrollmentEnabled: req.EnrollmentEnabled,
		WindowStart:       req.WindowStart,
		WindowEnd:         req.WindowEnd,
		UpdatedAt:         s.now(),
	}
	if err := s.repo.Update(ctx, updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConfigurationMissing, "term window is not configured")
		}
		return nil, appErrors.Internal(err, "failed to update term window")
	}
	s.audit.record(ctx, actor, models.AuditActionTermWindowUpdate, models.AuditResourceTermWindow, "", previous, updated)
	s.logger.Info("term window updated",
		zap.String("term", updated.CurrentTerm),
		zap.Bool("enrollment_enabled", updated.EnrollmentEnabled),
		zap.String("actor", actor.UserID),
	)
	return updated, nil
}
