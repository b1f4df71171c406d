package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/enrollment-engine/internal/models"
)

// StudentRepository reads student level and eligibility and toggles the eligibility flag.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository instantiates the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID fetches a student by id.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, code, full_name, academic_level, enrollment_enabled FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// SetEnrollmentEnabled updates the eligibility flag of a single student.
func (r *StudentRepository) SetEnrollmentEnabled(ctx context.Context, id string, enabled bool) error {
	const query = `UPDATE students SET enrollment_enabled = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, enabled)
	if err != nil {
		return fmt.Errorf("update student eligibility: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update student eligibility: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DisableAllEnrollment clears the eligibility flag of every student still enabled.
func (r *StudentRepository) DisableAllEnrollment(ctx context.Context) (int, error) {
	const query = `UPDATE students SET enrollment_enabled = FALSE WHERE enrollment_enabled`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("disable student enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("disable student enrollment: %w", err)
	}
	return int(affected), nil
}
