package database

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationDir = "migrations"

// Migrator applies the embedded goose migrations.
type Migrator struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMigrator prepares goose for the postgres dialect using the embedded scripts.
func NewMigrator(db *sql.DB, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	goose.SetBaseFS(migrationFS)
	goose.SetLogger(&gooseLogger{sugar: logger.Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	return &Migrator{db: db, logger: logger}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	current, err := goose.GetDBVersion(m.db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	m.logger.Info("applying migrations", zap.Int64("from_version", current))
	if err := goose.Up(m.db, migrationDir); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	final, err := goose.GetDBVersion(m.db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	m.logger.Info("migrations applied", zap.Int64("version", final))
	return nil
}

// Down rolls back the given number of migrations.
func (m *Migrator) Down(steps int) error {
	if steps <= 0 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		if err := goose.Down(m.db, migrationDir); err != nil {
			return fmt.Errorf("migrate down (step %d): %w", i+1, err)
		}
	}
	return nil
}

// Status prints the migration status through the configured logger.
func (m *Migrator) Status() error {
	if err := goose.Status(m.db, migrationDir); err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return nil
}

type gooseLogger struct {
	sugar *zap.SugaredLogger
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.sugar.Fatalf(format, v...)
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}
