package main

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-engine/internal/repository"
	"github.com/noah-isme/enrollment-engine/internal/service"
	"github.com/noah-isme/enrollment-engine/pkg/config"
	"github.com/noah-isme/enrollment-engine/pkg/database"
	"github.com/noah-isme/enrollment-engine/pkg/jobs"
	"github.com/noah-isme/enrollment-engine/pkg/lock"
	"github.com/noah-isme/enrollment-engine/pkg/logger"
)

const lockdownQueueName = "rollover-lockdown"

// application holds the wired services shared by the serve and rollover commands.
type application struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
	redis  *redis.Client
	queue  *jobs.Queue

	metrics     *service.MetricsService
	auth        *service.AuthService
	terms       *service.TermContextService
	enrollments *service.EnrollmentService
	ledger      *service.CapacityLedger
	rollover    *service.RolloverService
	students    *service.StudentService
}

func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, logr, nil
}

func newAuthService(cfg *config.Config, logr *zap.Logger) *service.AuthService {
	return service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
}

func openDatabase(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*sqlx.DB, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	logr.Info("database connected", zap.String("host", cfg.Database.Host), zap.String("name", cfg.Database.Name))
	return db, nil
}

// newApplication connects the stores and wires every service. The lockdown retry queue
// is created but not started.
func newApplication(ctx context.Context) (*application, error) {
	cfg, logr, err := loadRuntime()
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(ctx, cfg, logr)
	if err != nil {
		return nil, err
	}

	app := &application{cfg: cfg, logger: logr, db: db}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Enabled {
		client, err := lock.NewRedis(cfg.Redis)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.redis = client
		locker = lock.NewRedisLocker(client)
		logr.Info("redis rollover lock enabled", zap.String("addr", cfg.Redis.Addr()))
	}

	if cfg.Metrics.Enabled {
		app.metrics = service.NewMetricsService()
	}

	validate := validator.New()
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	termRepo := repository.NewTermWindowRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	app.auth = newAuthService(cfg, logr)
	app.terms = service.NewTermContextService(termRepo, auditRepo, validate, logr.Named("term"))
	app.enrollments = service.NewEnrollmentService(enrollmentRepo, studentRepo, app.terms, auditRepo, app.metrics, validate, logr.Named("enrollment"), service.EnrollmentConfig{
		PassingGrade: cfg.Enrollment.PassingGrade,
	})
	app.ledger = service.NewCapacityLedger(enrollmentRepo, sectionRepo)
	app.students = service.NewStudentService(studentRepo, auditRepo, logr.Named("student"))

	// The queue and the coordinator refer to each other; the closures resolve app.rollover lazily.
	app.queue = jobs.NewQueue(lockdownQueueName, func(ctx context.Context, job jobs.Job) error {
		return app.rollover.RunLockdownJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Rollover.RetryWorkers,
		MaxRetries: cfg.Rollover.RetryMax,
		RetryDelay: cfg.Rollover.RetryDelay,
		Logger:     logr.Named("jobs"),
		OnExhausted: func(job jobs.Job, err error) {
			app.rollover.OnLockdownExhausted(job, err)
		},
	})
	app.rollover = service.NewRolloverService(enrollmentRepo, termRepo, studentRepo, locker, app.queue, auditRepo, app.metrics, logr.Named("rollover"), service.RolloverConfig{
		BatchSize:        cfg.Rollover.BatchSize,
		LockTTL:          cfg.Rollover.LockTTL,
		LockdownAttempts: cfg.Rollover.LockdownAttempts,
		AttemptDelay:     cfg.Rollover.RetryDelay,
	})

	return app, nil
}

// Close releases the stores and flushes the logger.
func (a *application) Close() {
	if a.queue != nil {
		a.queue.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
