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
)

type fakeResultRepo struct {
	rows map[string]models.Result
	seq  int
}

func newFakeResultRepo() *fakeResultRepo {
	return &fakeResultRepo{rows: map[string]models.Result{}}
}

func (f *fakeResultRepo) Create(ctx context.Context, r *models.Result) error {
	f.seq++
	if r.ID == "" {
		r.ID = "result-1"
	}
	f.rows[r.ID] = *r
	return nil
}

func (f *fakeResultRepo) FindByID(ctx context.Context, id string) (*models.Result, error) {
	if r, ok := f.rows[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeResultRepo) UpdateMarks(ctx context.Context, id string, marks int) error {
	r, ok := f.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Marks = marks
	f.rows[id] = r
	return nil
}

func (f *fakeResultRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeResultRepo) ListByStudent(ctx context.Context, studentID string) ([]models.ResultDetail, error) {
	var out []models.ResultDetail
	for _, r := range f.rows {
		if r.StudentID == studentID {
			out = append(out, models.ResultDetail{Result: r})
		}
	}
	return out, nil
}

func (f *fakeResultRepo) ListByTeacher(ctx context.Context, teacherID string) ([]models.ResultDetail, error) {
	var out []models.ResultDetail
	for _, r := range f.rows {
		if r.TeacherID == teacherID {
			out = append(out, models.ResultDetail{Result: r})
		}
	}
	return out, nil
}

type fakeAssignmentChecker struct {
	pairs map[string]bool
}

func (f *fakeAssignmentChecker) Exists(ctx context.Context, teacherID, studentID string) (bool, error) {
	return f.pairs[pairKey(teacherID, studentID)], nil
}

func newResultHandlerFixture(assigned ...string) (*ResultHandler, *fakeResultRepo) {
	repo := newFakeResultRepo()
	checker := &fakeAssignmentChecker{pairs: map[string]bool{}}
	for _, key := range assigned {
		checker.pairs[key] = true
	}
	users := &fakeRoleResolver{roles: map[string]models.UserRole{
		"teacher-1": models.RoleTeacher,
		"student-1": models.RoleStudent,
	}}
	svc := service.NewResultService(repo, checker, users, fakeAudit{}, nil, nil, nil, nil)
	return NewResultHandler(svc, nil), repo
}

func teacherContext(rec *httptest.ResponseRecorder) *gin.Context {
	c, _ := gin.CreateTestContext(rec)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})
	return c
}

func TestResultHandlerCreateAdminSentinel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newResultHandlerFixture()

	rec := httptest.NewRecorder()
	c := adminContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/results",
		strings.NewReader(`{"student_id":"student-1","subject":"Math","marks":88}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var created models.Result
	require.NoError(t, json.Unmarshal(envelope.Data, &created))
	assert.Equal(t, models.AdminTeacherSentinel, created.TeacherID)
	assert.Equal(t, 88, created.Marks)
}

func TestResultHandlerCreateMarksOutOfRange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newResultHandlerFixture(pairKey("teacher-1", "student-1"))

	rec := httptest.NewRecorder()
	c := teacherContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/results",
		strings.NewReader(`{"student_id":"student-1","subject":"Math","marks":101}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "INVALID_MARKS", envelope.Error["code"])
}

func TestResultHandlerCreateNotAssigned(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newResultHandlerFixture()

	rec := httptest.NewRecorder()
	c := teacherContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/results",
		strings.NewReader(`{"student_id":"student-1","subject":"Math","marks":70}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "NOT_ASSIGNED", envelope.Error["code"])
}

func TestResultHandlerListForStudentUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newResultHandlerFixture()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/students/student-1/results", nil)
	c.Params = gin.Params{{Key: "id", Value: "student-1"}}

	handler.ListForStudent(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResultHandlerDeleteTwiceNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, repo := newResultHandlerFixture(pairKey("teacher-1", "student-1"))
	require.NoError(t, repo.Create(context.Background(), &models.Result{
		ID: "result-1", StudentID: "student-1", TeacherID: "teacher-1", Subject: "Math", Marks: 50,
	}))

	for i, want := range []int{http.StatusNoContent, http.StatusNotFound} {
		rec := httptest.NewRecorder()
		c := adminContext(rec)
		c.Request = httptest.NewRequest(http.MethodDelete, "/results/result-1", nil)
		c.Params = gin.Params{{Key: "id", Value: "result-1"}}

		handler.Delete(c)
		c.Writer.WriteHeaderNow()

		assert.Equal(t, want, rec.Code, "attempt %d", i+1)
	}
}

func TestResultHandlerDownloadMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newResultHandlerFixture()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download", nil)

	handler.Download(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
