package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/enrollment-engine/internal/models"
	appErrors "github.com/noah-isme/enrollment-engine/pkg/errors"
)

type activeCounter interface {
	CountActive(ctx context.Context, sectionID, term string) (int, error)
}

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

// SeatAvailable is the single definition of a free seat.
func SeatAvailable(activeCount, capacity int) bool {
	return activeCount < capacity
}

// CapacityLedger answers seat questions for read-side callers. Writers re-check inside the
// section lock with SeatAvailable instead of trusting these answers.
type CapacityLedger struct {
	counter  activeCounter
	sections sectionReader
}

// NewCapacityLedger constructs the ledger.
func NewCapacityLedger(counter activeCounter, sections sectionReader) *CapacityLedger {
	return &CapacityLedger{counter: counter, sections: sections}
}

// ActiveCount returns the number of ACTIVE enrollments of a section for a term.
func (l *CapacityLedger) ActiveCount(ctx context.Context, sectionID, term string) (int, error) {
	count, err := l.counter.CountActive(ctx, sectionID, term)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to count active enrollments")
	}
	return count, nil
}

// HasSeat reports whether the section still has room for term.
func (l *CapacityLedger) HasSeat(ctx context.Context, sectionID, term string) (bool, error) {
	occupancy, err := l.Occupancy(ctx, sectionID, term)
	if err != nil {
		return false, err
	}
	return SeatAvailable(occupancy.Taken, occupancy.Capacity), nil
}

// Occupancy returns capacity and seat usage of a section for term.
func (l *CapacityLedger) Occupancy(ctx context.Context, sectionID, term string) (*models.Occupancy, error) {
	section, err := l.sections.FindByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Internal(err, "failed to load section")
	}
	taken, err := l.ActiveCount(ctx, sectionID, term)
	if err != nil {
		return nil, err
	}
	available := section.Capacity - taken
	if available < 0 {
		available = 0
	}
	return &models.Occupancy{
		SectionID: sectionID,
		Term:      term,
		Capacity:  section.Capacity,
		Taken:     taken,
		Available: available,
	}, nil
}
