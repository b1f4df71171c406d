package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-engine/internal/dto"
	"github.com/noah-isme/enrollment-engine/internal/models"
	appErrors "github.com/noah-isme/enrollment-engine/pkg/errors"
	"github.com/noah-isme/enrollment-engine/pkg/jobs"
	"github.com/noah-isme/enrollment-engine/pkg/lock"
)

// Lockdown steps executed after enrollments are archived. They double as retry job types.
const (
	LockdownStepTerm     = "term_lockdown"
	LockdownStepStudents = "student_lockdown"
)

const rolloverLockKey = "term-rollover"

// maxEmptyBatches bounds how often an empty batch is retried while ACTIVE rows remain.
const maxEmptyBatches = 3

type enrollmentArchiver interface {
	ArchiveActiveBatch(ctx context.Context, limit int, now time.Time) (int, error)
	HasActive(ctx context.Context) (bool, error)
}

type termEnrollmentLocker interface {
	DisableEnrollment(ctx context.Context, now time.Time) error
}

type studentEnrollmentLocker interface {
	DisableAllEnrollment(ctx context.Context) (int, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// RolloverConfig tunes batching, locking and lockdown retries.
type RolloverConfig struct {
	BatchSize        int
	LockTTL          time.Duration
	LockdownAttempts int
	AttemptDelay     time.Duration
}

// RolloverService archives every active enrollment and locks enrollment at term end.
type RolloverService struct {
	enrollments enrollmentArchiver
	terms       termEnrollmentLocker
	students    studentEnrollmentLocker
	locker      lock.Locker
	queue       jobEnqueuer
	audit       auditTrail
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         RolloverConfig
	now         func() time.Time
}

// NewRolloverService constructs the coordinator. queue may be nil, in which case failed
// lockdown steps are only reported.
func NewRolloverService(enrollments enrollmentArchiver, terms termEnrollmentLocker, students studentEnrollmentLocker, locker lock.Locker, queue jobEnqueuer, audit auditWriter, metrics *MetricsService, logger *zap.Logger, cfg RolloverConfig) *RolloverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Minute
	}
	if cfg.LockdownAttempts <= 0 {
		cfg.LockdownAttempts = 3
	}
	return &RolloverService{
		enrollments: enrollments,
		terms:       terms,
		students:    students,
		locker:      locker,
		queue:       queue,
		audit:       newAuditTrail(audit, logger),
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RolloverTerm archives all ACTIVE enrollments in batches, then disables the term window
// and every student's eligibility. Archiving must finish before the lockdown starts; a
// storage failure while archiving returns the partial count and the run can be repeated.
func (s *RolloverService) RolloverTerm(ctx context.Context, actor models.Actor) (*dto.RolloverResult, error) {
	lease, err := s.locker.TryAcquire(ctx, rolloverLockKey, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, appErrors.Clone(appErrors.ErrRolloverInProgress, "a term rollover is already running")
		}
		return nil, appErrors.Internal(err, "failed to acquire rollover lock")
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			s.logger.Warn("failed to release rollover lock", zap.Error(err))
		}
	}()

	started := s.now()
	result := &dto.RolloverResult{}
	if err := s.archiveAll(ctx, lease, result); err != nil {
		s.metrics.AddRolloverArchived(result.Archived)
		s.logger.Error("rollover aborted while archiving enrollments",
			zap.Int("archived", result.Archived),
			zap.Error(err),
		)
		return result, appErrors.Internal(err, fmt.Sprintf("rollover aborted after archiving %d enrollments; run it again to resume", result.Archived))
	}
	s.metrics.AddRolloverArchived(result.Archived)

	if _, err := s.lockdown(ctx, LockdownStepTerm); err != nil {
		result.PendingSteps = append(result.PendingSteps, LockdownStepTerm)
	} else {
		result.TermLocked = true
	}
	if affected, err := s.lockdown(ctx, LockdownStepStudents); err != nil {
		result.PendingSteps = append(result.PendingSteps, LockdownStepStudents)
	} else {
		result.StudentsLocked = true
		result.StudentsAffected = affected
	}

	s.audit.record(ctx, actor, models.AuditActionTermRollover, models.AuditResourceTermWindow, "", nil, result)
	s.logger.Info("term rollover completed",
		zap.Int("archived", result.Archived),
		zap.Bool("term_locked", result.TermLocked),
		zap.Bool("students_locked", result.StudentsLocked),
		zap.Int("students_affected", result.StudentsAffected),
		zap.Strings("pending_steps", result.PendingSteps),
		zap.Duration("elapsed", s.now().Sub(started)),
		zap.String("actor", actor.UserID),
	)
	return result, nil
}

// archiveAll runs batches until none is left. An empty batch only counts as the end once
// no ACTIVE row remains, since rows changed by a concurrent operation while the batch
// waited on their locks drop out of it. The lease is extended after every batch.
func (s *RolloverService) archiveAll(ctx context.Context, lease lock.Lease, result *dto.RolloverResult) error {
	empty := 0
	for {
		archived, err := s.enrollments.ArchiveActiveBatch(ctx, s.cfg.BatchSize, s.now())
		if err != nil {
			return err
		}
		result.Archived += archived
		if err := lease.Refresh(ctx, s.cfg.LockTTL); err != nil {
			return fmt.Errorf("refresh rollover lock: %w", err)
		}
		if archived > 0 {
			empty = 0
			s.logger.Debug("rollover batch archived", zap.Int("batch", archived), zap.Int("archived", result.Archived))
			continue
		}

		remaining, err := s.enrollments.HasActive(ctx)
		if err != nil {
			return err
		}
		if !remaining {
			return nil
		}
		empty++
		if empty >= maxEmptyBatches {
			return fmt.Errorf("active enrollments remain after %d empty batches", empty)
		}
		s.logger.Warn("empty rollover batch while active enrollments remain", zap.Int("attempt", empty))
	}
}

// lockdown retries a step inline and hands it to the retry queue once the attempts run out.
func (s *RolloverService) lockdown(ctx context.Context, step string) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.LockdownAttempts; attempt++ {
		affected, err := s.runStep(ctx, step)
		if err == nil {
			return affected, nil
		}
		lastErr = err
		s.logger.Error("rollover lockdown step failed",
			zap.String("step", step),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < s.cfg.LockdownAttempts && s.cfg.AttemptDelay > 0 {
			timer := time.NewTimer(s.cfg.AttemptDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.handOff(step, ctx.Err())
				return 0, ctx.Err()
			case <-timer.C:
			}
		}
	}
	s.handOff(step, lastErr)
	return 0, lastErr
}

func (s *RolloverService) handOff(step string, cause error) {
	if s.queue == nil {
		s.alert(step, cause)
		return
	}
	if err := s.queue.Enqueue(jobs.Job{Type: step}); err != nil {
		s.alert(step, fmt.Errorf("enqueue retry: %w (cause: %v)", err, cause))
		return
	}
	s.logger.Warn("rollover lockdown step queued for retry", zap.String("step", step), zap.NamedError("cause", cause))
}

// RunLockdownJob executes a queued lockdown step. It is the retry queue handler.
func (s *RolloverService) RunLockdownJob(ctx context.Context, job jobs.Job) error {
	affected, err := s.runStep(ctx, job.Type)
	if err != nil {
		return err
	}
	s.logger.Info("rollover lockdown step recovered",
		zap.String("step", job.Type),
		zap.Int("attempt", job.Attempt),
		zap.Int("affected", affected),
	)
	return nil
}

// OnLockdownExhausted raises the alert for a step the retry queue gave up on.
func (s *RolloverService) OnLockdownExhausted(job jobs.Job, err error) {
	s.alert(job.Type, err)
}

func (s *RolloverService) alert(step string, err error) {
	s.metrics.RecordLockdownFailure(step)
	s.logger.Error("ALERT: enrollment may remain open after rollover",
		zap.String("step", step),
		zap.Error(err),
	)
}

func (s *RolloverService) runStep(ctx context.Context, step string) (int, error) {
	switch step {
	case LockdownStepTerm:
		return 0, s.terms.DisableEnrollment(ctx, s.now())
	case LockdownStepStudents:
		return s.students.DisableAllEnrollment(ctx)
	default:
		return 0, fmt.Errorf("unknown lockdown step %q", step)
	}
}
