package models

import "time"

// Section is a scheduled instance of a course. The engine only reads it.
type Section struct {
	ID            string        `db:"id" json:"id"`
	CourseID      string        `db:"course_id" json:"course_id"`
	InstructorID  *string       `db:"instructor_id" json:"instructor_id,omitempty"`
	Code          string        `db:"code" json:"code"`
	Capacity      int           `db:"capacity" json:"capacity"`
	AcademicLevel AcademicLevel `db:"academic_level" json:"academic_level"`
	Turn          string        `db:"turn" json:"turn"`
	Classroom     string        `db:"classroom" json:"classroom"`
	Active        bool          `db:"active" json:"active"`
	StartDate     time.Time     `db:"start_date" json:"start_date"`
	EndDate       time.Time     `db:"end_date" json:"end_date"`
}

// HasEnded reports whether the section's last day lies strictly before now's calendar day.
func (s *Section) HasEnded(now time.Time) bool {
	end := s.EndDate
	y, m, d := now.In(end.Location()).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, end.Location())
	ey, em, ed := end.Date()
	return time.Date(ey, em, ed, 0, 0, 0, 0, end.Location()).Before(today)
}

// AcceptsEnrollment reports whether the section can take new or reactivated students.
func (s *Section) AcceptsEnrollment(now time.Time) bool {
	return s.Active && !s.HasEnded(now)
}

// Occupancy summarises seat usage of a section for one term.
type Occupancy struct {
	SectionID string `json:"section_id"`
	Term      string `json:"term"`
	Capacity  int    `json:"capacity"`
	Taken     int    `json:"taken"`
	Available int    `json:"available"`
}
