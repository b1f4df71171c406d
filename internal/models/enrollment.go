package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// Grade scale bounds.
const (
	MinGrade = 0.0
	MaxGrade = 20.0
)

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusActive, EnrollmentStatusWithdrawn, EnrollmentStatusCompleted:
		return true
	}
	return false
}

// Enrollment is a student's seat in a section for one term. At most one row exists per
// (student, section, term); it cycles between ACTIVE and WITHDRAWN and stops at COMPLETED.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	SectionID   string           `db:"section_id" json:"section_id"`
	Term        string           `db:"term" json:"term"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	WithdrawnAt *time.Time       `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
	FinalGrade  *float64         `db:"final_grade" json:"final_grade,omitempty"`
	Notes       string           `db:"notes" json:"notes"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// NewEnrollment returns a fresh ACTIVE enrollment; EnrolledAt is never changed afterwards.
func NewEnrollment(studentID, sectionID, term, notes string, now time.Time) *Enrollment {
	return &Enrollment{
		StudentID:  studentID,
		SectionID:  sectionID,
		Term:       term,
		Status:     EnrollmentStatusActive,
		EnrolledAt: now,
		Notes:      notes,
		UpdatedAt:  now,
	}
}

// IsActive reports whether the enrollment occupies a seat.
func (e *Enrollment) IsActive() bool {
	return e.Status == EnrollmentStatusActive
}

// Reactivate turns a WITHDRAWN row back into ACTIVE.
func (e *Enrollment) Reactivate(notes string, now time.Time) {
	e.Status = EnrollmentStatusActive
	e.WithdrawnAt = nil
	e.Notes = notes
	e.UpdatedAt = now
}

// Withdraw frees the seat. An existing WithdrawnAt is kept.
func (e *Enrollment) Withdraw(now time.Time) {
	e.Status = EnrollmentStatusWithdrawn
	if e.WithdrawnAt == nil {
		at := now
		e.WithdrawnAt = &at
	}
	e.UpdatedAt = now
}

// RecordGrade stores the final grade and completes the enrollment when the grade passes
// and the section has already ended. COMPLETED rows keep their status.
func (e *Enrollment) RecordGrade(grade, passing float64, sectionEnded bool, now time.Time) {
	g := grade
	e.FinalGrade = &g
	e.UpdatedAt = now
	if e.Status == EnrollmentStatusCompleted {
		return
	}
	if grade >= passing && sectionEnded {
		e.Status = EnrollmentStatusCompleted
		e.WithdrawnAt = nil
	}
}

// OverrideStatus applies an administrative status change without any business checks.
func (e *Enrollment) OverrideStatus(status EnrollmentStatus, now time.Time) {
	if status == EnrollmentStatusWithdrawn {
		e.Withdraw(now)
		return
	}
	e.Status = status
	e.WithdrawnAt = nil
	e.UpdatedAt = now
}

// ValidGrade reports whether grade lies on the 0-20 scale.
func ValidGrade(grade float64) bool {
	return grade >= MinGrade && grade <= MaxGrade
}

// EnrollmentDetail is the read-side snapshot handed to callers, enriched with
// student, section, course and instructor display fields.
type EnrollmentDetail struct {
	Enrollment
	StudentName      string        `db:"student_name" json:"student_name"`
	StudentCode      string        `db:"student_code" json:"student_code"`
	StudentLevel     AcademicLevel `db:"student_level" json:"student_level"`
	SectionCode      string        `db:"section_code" json:"section_code"`
	SectionLevel     AcademicLevel `db:"section_level" json:"section_level"`
	SectionTurn      string        `db:"section_turn" json:"section_turn"`
	SectionClassroom string        `db:"section_classroom" json:"section_classroom"`
	SectionCapacity  int           `db:"section_capacity" json:"section_capacity"`
	SectionStartDate time.Time     `db:"section_start_date" json:"section_start_date"`
	SectionEndDate   time.Time     `db:"section_end_date" json:"section_end_date"`
	CourseCode       string        `db:"course_code" json:"course_code"`
	CourseName       string        `db:"course_name" json:"course_name"`
	InstructorName   *string       `db:"instructor_name" json:"instructor_name,omitempty"`
	SeatsTaken       int           `db:"seats_taken" json:"seats_taken"`
	SeatsAvailable   int           `db:"seats_available" json:"seats_available"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	Term      string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
