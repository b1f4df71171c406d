package models

import "time"

// AuditAction constants represent administrative actions recorded in the audit trail.
const (
	AuditActionEnrollmentStatusOverride = "ENROLLMENT_STATUS_OVERRIDE"
	AuditActionEnrollmentDelete         = "ENROLLMENT_DELETE"
	AuditActionTermRollover             = "TERM_ROLLOVER"
	AuditActionTermWindowUpdate         = "TERM_WINDOW_UPDATE"
	AuditActionStudentEligibility       = "STUDENT_ELIGIBILITY_UPDATE"
)

// Audit resources.
const (
	AuditResourceEnrollment = "enrollment"
	AuditResourceTermWindow = "term_window"
	AuditResourceStudent    = "student"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Actor identifies who triggered an administrative mutation.
type Actor struct {
	UserID    string
	Role      UserRole
	IPAddress string
	UserAgent string
}
