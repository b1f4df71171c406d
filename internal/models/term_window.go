package models

import "time"

// TermWindow is the singleton holding the current term and the global enrollment gate.
type TermWindow struct {
	ID                int        `db:"id" json:"-"`
	CurrentTerm       string     `db:"current_term" json:"current_term"`
	EnrollmentEnabled bool       `db:"enrollment_enabled" json:"enrollment_enabled"`
	WindowStart       *time.Time `db:"window_start" json:"window_start,omitempty"`
	WindowEnd         *time.Time `db:"window_end" json:"window_end,omitempty"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// IsOpen reports whether enrollment is allowed at now: the flag must be on and now must
// fall inside whichever window bounds are set.
func (w *TermWindow) IsOpen(now time.Time) bool {
	if !w.EnrollmentEnabled {
		return false
	}
	if w.WindowStart != nil && now.Before(*w.WindowStart) {
		return false
	}
	if w.WindowEnd != nil && now.After(*w.WindowEnd) {
		return false
	}
	return true
}
