package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/enrollment-engine/internal/models"
)

// SectionRepository reads sections owned by the course catalogue.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// FindByID returns a section by id.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	query := "SELECT " + sectionColumns + " FROM sections WHERE id = $1"
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}
