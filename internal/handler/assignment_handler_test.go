package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-assign-api/internal/middleware"
	"github.com/noah-isme/school-assign-api/internal/models"
	"github.com/noah-isme/school-assign-api/internal/service"
	appErrors "github.com/noah-isme/school-assign-api/pkg/errors"
)

type responseEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error map[string]interface{} `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

type fakeAssignmentRepo struct {
	pairs   map[string]models.Assignment
	byID    map[string]models.Assignment
	roster  []models.AssignmentDetail
	listErr error
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{
		pairs: map[string]models.Assignment{},
		byID:  map[string]models.Assignment{},
	}
}

func pairKey(teacherID, studentID string) string {
	return teacherID + "|" + studentID
}

func (f *fakeAssignmentRepo) Create(ctx context.Context, a *models.Assignment) error {
	key := pairKey(a.TeacherID, a.StudentID)
	if _, exists := f.pairs[key]; exists {
		return appErrors.ErrDuplicateAssignment
	}
	if a.ID == "" {
		a.ID = "assign-" + a.StudentID
	}
	f.pairs[key] = *a
	f.byID[a.ID] = *a
	return nil
}

func (f *fakeAssignmentRepo) Exists(ctx context.Context, teacherID, studentID string) (bool, error) {
	_, ok := f.pairs[pairKey(teacherID, studentID)]
	return ok, nil
}

func (f *fakeAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if a, ok := f.byID[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAssignmentRepo) ListByTeacher(ctx context.Context, teacherID string) ([]models.AssignmentDetail, error) {
	return f.roster, f.listErr
}

func (f *fakeAssignmentRepo) ListByStudent(ctx context.Context, studentID string) ([]models.AssignmentDetail, error) {
	return f.roster, f.listErr
}

func (f *fakeAssignmentRepo) ListAll(ctx context.Context) ([]models.AssignmentDetail, error) {
	var out []models.AssignmentDetail
	for _, a := range f.byID {
		out = append(out, models.AssignmentDetail{Assignment: a})
	}
	return out, f.listErr
}

func (f *fakeAssignmentRepo) Delete(ctx context.Context, id string) error {
	a, ok := f.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	delete(f.byID, id)
	delete(f.pairs, pairKey(a.TeacherID, a.StudentID))
	return nil
}

type fakeRoleResolver struct {
	roles map[string]models.UserRole
}

func (f *fakeRoleResolver) ResolveRole(ctx context.Context, id string) (models.UserRole, error) {
	if role, ok := f.roles[id]; ok {
		return role, nil
	}
	return "", sql.ErrNoRows
}

type fakeAudit struct{}

func (fakeAudit) CreateAuditLog(context.Context, *models.AuditLog) error { return nil }

func newAssignmentHandlerFixture() (*AssignmentHandler, *fakeAssignmentRepo) {
	repo := newFakeAssignmentRepo()
	users := &fakeRoleResolver{roles: map[string]models.UserRole{
		"teacher-1": models.RoleTeacher,
		"student-1": models.RoleStudent,
		"student-2": models.RoleStudent,
	}}
	svc := service.NewAssignmentService(repo, users, fakeAudit{}, nil, nil, nil, nil)
	return NewAssignmentHandler(svc), repo
}

func adminContext(rec *httptest.ResponseRecorder) *gin.Context {
	c, _ := gin.CreateTestContext(rec)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	return c
}

func TestAssignmentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAssignmentHandlerFixture()

	rec := httptest.NewRecorder()
	c := adminContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/assignments",
		strings.NewReader(`{"teacher_id":"teacher-1","student_id":"student-1"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var created models.Assignment
	require.NoError(t, json.Unmarshal(envelope.Data, &created))
	assert.Equal(t, "teacher-1", created.TeacherID)
	assert.Equal(t, "student-1", created.StudentID)
}

func TestAssignmentHandlerCreateDuplicate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo := newAssignmentHandlerFixture()
	require.NoError(t, repo.Create(context.Background(), &models.Assignment{TeacherID: "teacher-1", StudentID: "student-1"}))

	rec := httptest.NewRecorder()
	c := adminContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/assignments",
		strings.NewReader(`{"teacher_id":"teacher-1","student_id":"student-1"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "DUPLICATE_ASSIGNMENT", envelope.Error["code"])
}

func TestAssignmentHandlerCreateMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAssignmentHandlerFixture()

	rec := httptest.NewRecorder()
	c := adminContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/assignments", strings.NewReader(`{`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAssignmentHandlerBulkAssignPartialFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo := newAssignmentHandlerFixture()
	require.NoError(t, repo.Create(context.Background(), &models.Assignment{TeacherID: "teacher-1", StudentID: "student-2"}))

	rec := httptest.NewRecorder()
	c := adminContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/assignments/bulk",
		strings.NewReader(`{"teacher_id":"teacher-1","student_ids":["student-1","student-2"]}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.BulkAssign(c)

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var report models.BulkAssignReport
	require.NoError(t, json.Unmarshal(envelope.Data, &report))
	assert.Equal(t, 1, report.AssignedCount)
	assert.Len(t, report.FailedAssignments, 1)
}

func TestAssignmentHandlerRemoveNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newAssignmentHandlerFixture()

	rec := httptest.NewRecorder()
	c := adminContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/assignments/ghost", nil)
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.Remove(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
