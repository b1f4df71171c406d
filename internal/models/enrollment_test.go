package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)

func TestEnrollmentLifecycle(t *testing.T) {
	e := NewEnrollment("stu-1", "sec-1", "2025-II", "first", now)
	assert.True(t, e.IsActive())
	assert.Nil(t, e.WithdrawnAt)

	later := now.Add(time.Hour)
	e.Withdraw(later)
	assert.Equal(t, EnrollmentStatusWithdrawn, e.Status)
	require.NotNil(t, e.WithdrawnAt)
	assert.Equal(t, later, *e.WithdrawnAt)

	e.Withdraw(later.Add(time.Hour))
	assert.Equal(t, later, *e.WithdrawnAt)

	e.Reactivate("second", later.Add(2*time.Hour))
	assert.True(t, e.IsActive())
	assert.Nil(t, e.WithdrawnAt)
	assert.Equal(t, "second", e.Notes)
	assert.Equal(t, now, e.EnrolledAt)
}

func TestRecordGrade(t *testing.T) {
	e := NewEnrollment("stu-1", "sec-1", "2025-II", "", now)
	e.RecordGrade(15, 11, false, now)
	assert.Equal(t, EnrollmentStatusActive, e.Status)
	require.NotNil(t, e.FinalGrade)

	e.RecordGrade(10, 11, true, now)
	assert.Equal(t, EnrollmentStatusActive, e.Status)

	e.RecordGrade(11, 11, true, now)
	assert.Equal(t, EnrollmentStatusCompleted, e.Status)

	e.RecordGrade(5, 11, true, now)
	assert.Equal(t, EnrollmentStatusCompleted, e.Status)
	assert.Equal(t, 5.0, *e.FinalGrade)
}

func TestOverrideStatusKeepsWithdrawnAtConsistent(t *testing.T) {
	e := NewEnrollment("stu-1", "sec-1", "2025-II", "", now)
	e.OverrideStatus(EnrollmentStatusWithdrawn, now)
	require.NotNil(t, e.WithdrawnAt)

	e.OverrideStatus(EnrollmentStatusCompleted, now)
	assert.Nil(t, e.WithdrawnAt)
	assert.Equal(t, EnrollmentStatusCompleted, e.Status)
}

func TestValidGrade(t *testing.T) {
	assert.True(t, ValidGrade(0))
	assert.True(t, ValidGrade(20))
	assert.False(t, ValidGrade(-1))
	assert.False(t, ValidGrade(21))
	assert.False(t, ValidGrade(20.01))
}

func TestSectionHasEnded(t *testing.T) {
	section := Section{Active: true, EndDate: time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)}
	assert.False(t, section.HasEnded(now), "the last day itself is still running")
	assert.True(t, section.HasEnded(now.AddDate(0, 0, 1)))
	assert.True(t, section.AcceptsEnrollment(now))

	section.Active = false
	assert.False(t, section.AcceptsEnrollment(now))
}
