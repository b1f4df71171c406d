package dto

// RolloverResult summarises a term rollover run.
type RolloverResult struct {
	Archived         int      `json:"archived"`
	TermLocked       bool     `json:"term_locked"`
	StudentsLocked   bool     `json:"students_locked"`
	StudentsAffected int      `json:"students_affected"`
	PendingSteps     []string `json:"pending_steps,omitempty"`
}

// SetEligibilityRequest toggles a student's enrollment eligibility.
type SetEligibilityRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// IssueTokenResponse is returned by the token command.
type IssueTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}
