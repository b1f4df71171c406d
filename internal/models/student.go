package models

// AcademicLevel is the closed set of school levels shared by students and sections.
type AcademicLevel string

const (
	LevelInicial    AcademicLevel = "INICIAL"
	LevelPrimaria   AcademicLevel = "PRIMARIA"
	LevelSecundaria AcademicLevel = "SECUNDARIA"
)

// Student is the slice of the student record the engine reads and, during rollover, writes.
type Student struct {
	ID                string        `db:"id" json:"id"`
	Code              string        `db:"code" json:"code"`
	FullName          string        `db:"full_name" json:"full_name"`
	AcademicLevel     AcademicLevel `db:"academic_level" json:"academic_level"`
	EnrollmentEnabled bool          `db:"enrollment_enabled" json:"enrollment_enabled"`
}
