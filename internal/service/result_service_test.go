package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-assign-api/internal/models"
	appErrors "github.com/noah-isme/school-assign-api/pkg/errors"
)

type resultRepoStub struct {
	results map[string]*models.Result
	seq     int
}

func newResultRepoStub() *resultRepoStub {
	return &resultRepoStub{results: map[string]*models.Result{}}
}

func (s *resultRepoStub) Create(ctx context.Context, result *models.Result) error {
	s.seq++
	if result.ID == "" {
		result.ID = fmt.Sprintf("result-%d", s.seq)
	}
	cp := *result
	s.results[result.ID] = &cp
	return nil
}

func (s *resultRepoStub) FindByID(ctx context.Context, id string) (*models.Result, error) {
	if result, ok := s.results[id]; ok {
		cp := *result
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *resultRepoStub) UpdateMarks(ctx context.Context, id string, marks int) error {
	result, ok := s.results[id]
	if !ok {
		return sql.ErrNoRows
	}
	result.Marks = marks
	return nil
}

func (s *resultRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.results[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.results, id)
	return nil
}

func (s *resultRepoStub) ListByStudent(ctx context.Context, studentID string) ([]models.ResultDetail, error) {
	var out []models.ResultDetail
	for _, r := range s.results {
		if r.StudentID == studentID {
			out = append(out, models.ResultDetail{Result: *r})
		}
	}
	return out, nil
}

func (s *resultRepoStub) ListByTeacher(ctx context.Context, teacherID string) ([]models.ResultDetail, error) {
	var out []models.ResultDetail
	for _, r := range s.results {
		if r.TeacherID == teacherID {
			out = append(out, models.ResultDetail{Result: *r})
		}
	}
	return out, nil
}

type resultFixture struct {
	svc         *ResultService
	repo        *resultRepoStub
	assignments *ledgerRepoStub
}

func newResultFixture(t *testing.T) resultFixture {
	t.Helper()
	repo := newResultRepoStub()
	assignments := newLedgerRepoStub()
	svc := NewResultService(repo, assignments, defaultRoles(), &auditStub{}, nil, nil, nil, nil)
	return resultFixture{svc: svc, repo: repo, assignments: assignments}
}

func (f resultFixture) assign(t *testing.T, teacherID, studentID string) *models.Assignment {
	t.Helper()
	assignment := &models.Assignment{TeacherID: teacherID, StudentID: studentID}
	require.NoError(t, f.assignments.Create(context.Background(), assignment))
	return assignment
}

var teacherPrincipal = models.Principal{ID: "teacher-1", Role: models.RoleTeacher}

func TestResultServiceCreateByAssignedTeacher(t *testing.T) {
	f := newResultFixture(t)
	f.assign(t, "teacher-1", "student-1")

	result, err := f.svc.Create(context.Background(), teacherPrincipal, CreateResultRequest{
		StudentID: "student-1",
		Subject:   "Math",
		Marks:     88,
	})
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", result.TeacherID)
	assert.Len(t, f.repo.results, 1)
}

func TestResultServiceCreateNotAssigned(t *testing.T) {
	f := newResultFixture(t)

	_, err := f.svc.Create(context.Background(), teacherPrincipal, CreateResultRequest{
		StudentID: "student-1",
		Subject:   "Math",
		Marks:     88,
	})
	assert.ErrorIs(t, err, appErrors.ErrNotAssigned)
	assert.Empty(t, f.repo.results)
}

func TestResultServiceCreateMarksBoundaries(t *testing.T) {
	f := newResultFixture(t)
	f.assign(t, "teacher-1", "student-1")

	for _, marks := range []int{-1, 101} {
		_, err := f.svc.Create(context.Background(), teacherPrincipal, CreateResultRequest{
			StudentID: "student-1",
			Subject:   "Math",
			Marks:     marks,
		})
		assert.ErrorIs(t, err, appErrors.ErrInvalidMarks, "marks=%d", marks)
	}

	for _, marks := range []int{0, 100} {
		_, err := f.svc.Create(context.Background(), teacherPrincipal, CreateResultRequest{
			StudentID: "student-1",
			Subject:   "Math",
			Marks:     marks,
		})
		assert.NoError(t, err, "marks=%d", marks)
	}
}

func TestResultServiceCreateByAdminUsesSentinel(t *testing.T) {
	f := newResultFixture(t)

	// No assignment exists; the admin bypasses the check entirely.
	result, err := f.svc.Create(context.Background(), adminPrincipal, CreateResultRequest{
		StudentID: "student-1",
		Subject:   "Science",
		Marks:     95,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AdminTeacherSentinel, result.TeacherID)

	// A supplied teacher id is recorded as-is.
	result, err = f.svc.Create(context.Background(), adminPrincipal, CreateResultRequest{
		StudentID: "student-1",
		TeacherID: "teacher-1",
		Subject:   "Science",
		Marks:     95,
	})
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", result.TeacherID)
}

func TestResultServiceCreateStudentDenied(t *testing.T) {
	f := newResultFixture(t)

	_, err := f.svc.Create(context.Background(), models.Principal{ID: "student-1", Role: models.RoleStudent}, CreateResultRequest{
		StudentID: "student-1",
		Subject:   "Math",
		Marks:     50,
	})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestResultServiceUpdateAfterAssignmentRemoved(t *testing.T) {
	f := newResultFixture(t)
	assignment := f.assign(t, "teacher-1", "student-1")

	result, err := f.svc.Create(context.Background(), teacherPrincipal, CreateResultRequest{
		StudentID: "student-1",
		Subject:   "Math",
		Marks:     70,
	})
	require.NoError(t, err)

	require.NoError(t, f.assignments.Delete(context.Background(), assignment.ID))

	// The stored row survives removal but the teacher can no longer touch it.
	_, err = f.svc.Update(context.Background(), teacherPrincipal, result.ID, UpdateResultRequest{Marks: 80})
	assert.ErrorIs(t, err, appErrors.ErrNotAssigned)

	// Admin listForStudent still returns the surviving row.
	rows, err := f.svc.ListForStudent(context.Background(), adminPrincipal, "student-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	// Admin may still update it.
	updated, err := f.svc.Update(context.Background(), adminPrincipal, result.ID, UpdateResultRequest{Marks: 80})
	require.NoError(t, err)
	assert.Equal(t, 80, updated.Marks)
}

func TestResultServiceUpdateForeignResultDenied(t *testing.T) {
	f := newResultFixture(t)
	f.assign(t, "teacher-1", "student-1")
	f.assign(t, "teacher-2", "student-1")

	result, err := f.svc.Create(context.Background(), teacherPrincipal, CreateResultRequest{
		StudentID: "student-1",
		Subject:   "Math",
		Marks:     70,
	})
	require.NoError(t, err)

	_, err = f.svc.Update(context.Background(), models.Principal{ID: "teacher-2", Role: models.RoleTeacher}, result.ID, UpdateResultRequest{Marks: 99})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestResultServiceUpdateInvalidMarks(t *testing.T) {
	f := newResultFixture(t)
	f.assign(t, "teacher-1", "student-1")

	result, err := f.svc.Create(context.Background(), teacherPrincipal, CreateResultRequest{
		StudentID: "student-1",
		Subject:   "Math",
		Marks:     70,
	})
	require.NoError(t, err)

	_, err = f.svc.Update(context.Background(), teacherPrincipal, result.ID, UpdateResultRequest{Marks: 101})
	assert.ErrorIs(t, err, appErrors.ErrInvalidMarks)
}

func TestResultServiceDelete(t *testing.T) {
	f := newResultFixture(t)
	f.assign(t, "teacher-1", "student-1")

	result, err := f.svc.Create(context.Background(), teacherPrincipal, CreateResultRequest{
		StudentID: "student-1",
		Subject:   "Math",
		Marks:     70,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), teacherPrincipal, result.ID))

	// Repeating the delete yields NotFound, never a silent success.
	err = f.svc.Delete(context.Background(), teacherPrincipal, result.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestResultServiceListForTeacherOwnership(t *testing.T) {
	f := newResultFixture(t)
	f.assign(t, "teacher-1", "student-1")

	_, err := f.svc.Create(context.Background(), teacherPrincipal, CreateResultRequest{
		StudentID: "student-1",
		Subject:   "Math",
		Marks:     70,
	})
	require.NoError(t, err)

	rows, err := f.svc.ListForTeacher(context.Background(), teacherPrincipal, "teacher-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = f.svc.ListForTeacher(context.Background(), teacherPrincipal, "teacher-2")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestResultServiceListForStudentOpenToAuthenticated(t *testing.T) {
	f := newResultFixture(t)
	f.assign(t, "teacher-1", "student-1")

	_, err := f.svc.Create(context.Background(), teacherPrincipal, CreateResultRequest{
		StudentID: "student-1",
		Subject:   "Math",
		Marks:     70,
	})
	require.NoError(t, err)

	for _, principal := range []models.Principal{
		adminPrincipal,
		teacherPrincipal,
		{ID: "student-2", Role: models.RoleStudent},
	} {
		rows, err := f.svc.ListForStudent(context.Background(), principal, "student-1")
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	}

	_, err = f.svc.ListForStudent(context.Background(), models.Principal{}, "student-1")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestResultServiceUsesAssignmentLedgerAsExistenceCheck(t *testing.T) {
	ledger, _ := newAssignmentService(newLedgerRepoStub())
	svc := NewResultService(newResultRepoStub(), ledger, defaultRoles(), &auditStub{}, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), teacherPrincipal, CreateResultRequest{
		StudentID: "student-1",
		Subject:   "Math",
		Marks:     70,
	})
	assert.ErrorIs(t, err, appErrors.ErrNotAssigned)

	_, err = ledger.Create(context.Background(), adminPrincipal, CreateAssignmentRequest{
		TeacherID: "teacher-1",
		StudentID: "student-1",
	})
	require.NoError(t, err)

	result, err := svc.Create(context.Background(), teacherPrincipal, CreateResultRequest{
		StudentID: "student-1",
		Subject:   "Math",
		Marks:     70,
	})
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", result.TeacherID)
}
