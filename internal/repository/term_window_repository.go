package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/enrollment-engine/internal/models"
)

const termWindowID = 1

// TermWindowRepository persists the term window singleton.
type TermWindowRepository struct {
	db *sqlx.DB
}

// NewTermWindowRepository instantiates the repository.
func NewTermWindowRepository(db *sqlx.DB) *TermWindowRepository {
	return &TermWindowRepository{db: db}
}

// Get returns the singleton. sql.ErrNoRows means the row was never seeded.
func (r *TermWindowRepository) Get(ctx context.Context) (*models.TermWindow, error) {
	const query = `SELECT id, current_term, enrollment_enabled, window_start, window_end, updated_at FROM term_settings WHERE id = $1`
	var window models.TermWindow
	if err := r.db.GetContext(ctx, &window, query, termWindowID); err != nil {
		return nil, err
	}
	return &window, nil
}

// Update overwrites the singleton with the provided values.
func (r *TermWindowRepository) Update(ctx context.Context, window *models.TermWindow) error {
	window.ID = termWindowID
	if window.UpdatedAt.IsZero() {
		window.UpdatedAt = time.Now().UTC()
	}
	const query = `UPDATE term_settings SET current_term = :current_term, enrollment_enabled = :enrollment_enabled,
window_start = :window_start, window_end = :window_end, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, window)
	if err != nil {
		return fmt.Errorf("update term window: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update term window: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DisableEnrollment turns the global enrollment flag off.
func (r *TermWindowRepository) DisableEnrollment(ctx context.Context, now time.Time) error {
	const query = `UPDATE term_settings SET enrollment_enabled = FALSE, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, termWindowID, now)
	if err != nil {
		return fmt.Errorf("disable term enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("disable term enrollment: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
