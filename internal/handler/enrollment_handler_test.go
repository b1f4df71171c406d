package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/enrollment-engine/internal/middleware"
	"github.com/noah-isme/enrollment-engine/internal/models"
	"github.com/noah-isme/enrollment-engine/internal/service"
	appErrors "github.com/noah-isme/enrollment-engine/pkg/errors"
	"github.com/noah-isme/enrollment-engine/pkg/response"
)

type enrollmentServiceMock struct {
	enrollReq    service.EnrollRequest
	enrollResp   *models.EnrollmentDetail
	enrollErr    error
	withdrawArgs [2]string
	withdrawErr  error
	gradeID      string
	gradeReq     service.AssignGradeRequest
	statusReq    service.SetStatusRequest
	actor        models.Actor
	deleteErr    error
	deletedID    string
	mineStudent  string
	mineActive   bool
	filter       models.EnrollmentFilter
	listResp     []models.EnrollmentDetail
	getErr       error
}

func (m *enrollmentServiceMock) Enroll(ctx context.Context, req service.EnrollRequest) (*models.EnrollmentDetail, error) {
	m.enrollReq = req
	return m.enrollResp, m.enrollErr
}

func (m *enrollmentServiceMock) Withdraw(ctx context.Context, studentID, sectionID string) (*models.EnrollmentDetail, error) {
	m.withdrawArgs = [2]string{studentID, sectionID}
	if m.withdrawErr != nil {
		return nil, m.withdrawErr
	}
	return detailFixture(models.EnrollmentStatusWithdrawn), nil
}

func (m *enrollmentServiceMock) AssignGrade(ctx context.Context, enrollmentID string, req service.AssignGradeRequest) (*models.EnrollmentDetail, error) {
	m.gradeID = enrollmentID
	m.gradeReq = req
	return detailFixture(models.EnrollmentStatusActive), nil
}

func (m *enrollmentServiceMock) AdminSetStatus(ctx context.Context, enrollmentID string, req service.SetStatusRequest, actor models.Actor) (*models.EnrollmentDetail, error) {
	m.statusReq = req
	m.actor = actor
	return detailFixture(req.Status), nil
}

func (m *enrollmentServiceMock) Delete(ctx context.Context, enrollmentID string, actor models.Actor) error {
	m.deletedID = enrollmentID
	m.actor = actor
	return m.deleteErr
}

func (m *enrollmentServiceMock) ListMine(ctx context.Context, studentID string, activeOnly bool) ([]models.EnrollmentDetail, error) {
	m.mineStudent = studentID
	m.mineActive = activeOnly
	return m.listResp, nil
}

func (m *enrollmentServiceMock) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	m.filter = filter
	return m.listResp, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: len(m.listResp)}, nil
}

func (m *enrollmentServiceMock) GetByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return detailFixture(models.EnrollmentStatusActive), nil
}

func detailFixture(status models.EnrollmentStatus) *models.EnrollmentDetail {
	return &models.EnrollmentDetail{
		Enrollment:  models.Enrollment{ID: "enr-1", StudentID: "stu-1", SectionID: "sec-1", Term: "2025-II", Status: status},
		StudentName: "Ana Quispe",
		SectionCode: "MAT-3A",
	}
}

func newTestContext(method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestEnrollmentHandlerEnrollUsesCallerIdentity(t *testing.T) {
	mockSvc := &enrollmentServiceMock{enrollResp: detailFixture(models.EnrollmentStatusActive)}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/enrollments", []byte(`{"section_id":"sec-1","notes":"morning"}`), studentClaims())
	handler.Enroll(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, service.EnrollRequest{StudentID: "stu-1", SectionID: "sec-1", Notes: "morning"}, mockSvc.enrollReq)

	var body struct {
		Data models.EnrollmentDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "enr-1", body.Data.ID)
	assert.Equal(t, "Ana Quispe", body.Data.StudentName)
}

func TestEnrollmentHandlerEnrollRendersDomainError(t *testing.T) {
	mockSvc := &enrollmentServiceMock{enrollErr: appErrors.Clone(appErrors.ErrCapacityExceeded, "section is full")}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/enrollments", []byte(`{"section_id":"sec-1"}`), studentClaims())
	handler.Enroll(c)

	require.Equal(t, http.StatusConflict, w.Code)
	var body response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "CAPACITY_EXCEEDED", body.Error.Code)
}

func TestEnrollmentHandlerEnrollRejectsBadPayload(t *testing.T) {
	mockSvc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/enrollments", []byte(`{"notes":"x"}`), studentClaims())
	handler.Enroll(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mockSvc.enrollReq.SectionID)
}

func TestEnrollmentHandlerEnrollWithoutClaims(t *testing.T) {
	handler := NewEnrollmentHandler(&enrollmentServiceMock{})

	c, w := newTestContext(http.MethodPost, "/enrollments", []byte(`{"section_id":"sec-1"}`), nil)
	handler.Enroll(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEnrollmentHandlerWithdraw(t *testing.T) {
	mockSvc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodDelete, "/enrollments/sections/sec-9", nil, studentClaims())
	c.Params = gin.Params{{Key: "sectionId", Value: "sec-9"}}
	handler.Withdraw(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [2]string{"stu-1", "sec-9"}, mockSvc.withdrawArgs)
}

func TestEnrollmentHandlerWithdrawEndedSection(t *testing.T) {
	mockSvc := &enrollmentServiceMock{withdrawErr: appErrors.Clone(appErrors.ErrSectionAlreadyEnded, "section already ended")}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodDelete, "/enrollments/sections/sec-9", nil, studentClaims())
	c.Params = gin.Params{{Key: "sectionId", Value: "sec-9"}}
	handler.Withdraw(c)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "SECTION_ALREADY_ENDED")
}

func TestEnrollmentHandlerListMine(t *testing.T) {
	mockSvc := &enrollmentServiceMock{listResp: []models.EnrollmentDetail{*detailFixture(models.EnrollmentStatusActive)}}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/enrollments/me?activeOnly=true", nil, studentClaims())
	handler.ListMine(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", mockSvc.mineStudent)
	assert.True(t, mockSvc.mineActive)
}

func TestEnrollmentHandlerListParsesFilters(t *testing.T) {
	mockSvc := &enrollmentServiceMock{listResp: []models.EnrollmentDetail{*detailFixture(models.EnrollmentStatusWithdrawn)}}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/enrollments?term=2025-II&status=withdrawn&page=2&limit=5&sort=enrolled_at&order=desc", nil, adminClaims())
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.EnrollmentFilter{
		Term:      "2025-II",
		Status:    models.EnrollmentStatusWithdrawn,
		Page:      2,
		PageSize:  5,
		SortBy:    "enrolled_at",
		SortOrder: "desc",
	}, mockSvc.filter)

	env := decodeEnvelope(t, w)
	assert.Contains(t, string(env["pagination"]), `"page":2`)
}

func TestEnrollmentHandlerGetNotFound(t *testing.T) {
	mockSvc := &enrollmentServiceMock{getErr: appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodGet, "/enrollments/missing", nil, adminClaims())
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnrollmentHandlerAssignGrade(t *testing.T) {
	mockSvc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodPut, "/enrollments/enr-1/grade", []byte(`{"grade":14.5}`), &models.JWTClaims{UserID: "t-1", Role: models.RoleTeacher})
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	handler.AssignGrade(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "enr-1", mockSvc.gradeID)
	require.NotNil(t, mockSvc.gradeReq.Grade)
	assert.Equal(t, 14.5, *mockSvc.gradeReq.Grade)
}

func TestEnrollmentHandlerAssignGradeMalformed(t *testing.T) {
	handler := NewEnrollmentHandler(&enrollmentServiceMock{})

	c, w := newTestContext(http.MethodPut, "/enrollments/enr-1/grade", []byte(`{"grade":"high"}`), adminClaims())
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	handler.AssignGrade(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollmentHandlerSetStatusCarriesActor(t *testing.T) {
	mockSvc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodPatch, "/enrollments/enr-1/status", []byte(`{"status":"completed"}`), adminClaims())
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	handler.SetStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.EnrollmentStatusCompleted, mockSvc.statusReq.Status)
	assert.Equal(t, "admin-1", mockSvc.actor.UserID)
	assert.Equal(t, models.RoleAdmin, mockSvc.actor.Role)
	assert.Equal(t, "handler-test", mockSvc.actor.UserAgent)
}

func TestEnrollmentHandlerDelete(t *testing.T) {
	mockSvc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(mockSvc)

	c, w := newTestContext(http.MethodDelete, "/enrollments/enr-1", nil, adminClaims())
	c.Params = gin.Params{{Key: "id", Value: "enr-1"}}
	handler.Delete(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "enr-1", mockSvc.deletedID)
}
