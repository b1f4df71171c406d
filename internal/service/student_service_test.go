package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/enrollment-engine/internal/models"
	appErrors "github.com/noah-isme/enrollment-engine/pkg/errors"
)

func TestStudentServiceSetEligibility(t *testing.T) {
	store := newMemoryStore()
	store.addStudent(models.Student{ID: "stu-1", AcademicLevel: models.LevelPrimaria, EnrollmentEnabled: false})
	audit := &auditStub{}
	svc := NewStudentService(memoryStudents{store: store}, audit, nil)
	ctx := context.Background()
	actor := models.Actor{UserID: "admin-1"}

	student, err := svc.SetEligibility(ctx, "stu-1", true, actor)
	require.NoError(t, err)
	assert.True(t, student.EnrollmentEnabled)
	assert.True(t, store.students["stu-1"].EnrollmentEnabled)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionStudentEligibility, audit.logs[0].Action)

	_, err = svc.SetEligibility(ctx, "stu-1", true, actor)
	require.NoError(t, err)
	assert.Len(t, audit.logs, 1)

	_, err = svc.SetEligibility(ctx, "ghost", true, actor)
	assertCode(t, err, appErrors.ErrNotFound)
}
