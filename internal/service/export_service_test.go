package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-assign-api/internal/models"
	appErrors "github.com/noah-isme/school-assign-api/pkg/errors"
	"github.com/noah-isme/school-assign-api/pkg/storage"
)

type exportResultsStub struct {
	rows map[string][]models.ResultDetail
}

func (s *exportResultsStub) ListByStudent(ctx context.Context, studentID string) ([]models.ResultDetail, error) {
	return s.rows[studentID], nil
}

type exportUsersStub struct {
	users map[string]*models.User
}

func (s *exportUsersStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func newExportFixture(t *testing.T) *ExportService {
	t.Helper()

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)

	results := &exportResultsStub{rows: map[string][]models.ResultDetail{
		"student-1": {
			{Result: models.Result{StudentID: "student-1", TeacherID: "teacher-1", Subject: "Math", Marks: 91, RecordedAt: time.Now()}},
			{Result: models.Result{StudentID: "student-1", TeacherID: models.AdminTeacherSentinel, Subject: "Physics", Marks: 78, RecordedAt: time.Now()}},
		},
	}}
	users := &exportUsersStub{users: map[string]*models.User{
		"student-1": {ID: "student-1", FullName: "Student One", Role: models.RoleStudent},
		"teacher-1": {ID: "teacher-1", FullName: "Teacher One", Role: models.RoleTeacher},
	}}

	return NewExportService(results, users, store, signer, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, nil, nil, nil)
}

func TestExportServiceStudentResultSheetCSV(t *testing.T) {
	svc := newExportFixture(t)

	res, err := svc.StudentResultSheet(context.Background(), adminPrincipal, "student-1", ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, ExportFormatCSV, res.Format)
	assert.NotEmpty(t, res.Token)
	assert.Contains(t, res.URL, "/exports/download?token=")

	file, name, err := svc.OpenDownload(res.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, res.Filename, name)

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Subject", "Marks", "Recorded By", "Recorded At"}, records[0])
	assert.Equal(t, "Math", records[1][0])
	assert.Equal(t, "91", records[1][1])
	assert.Equal(t, models.AdminTeacherSentinel, records[2][2])
}

func TestExportServiceStudentResultSheetPDF(t *testing.T) {
	svc := newExportFixture(t)

	res, err := svc.StudentResultSheet(context.Background(), adminPrincipal, "student-1", ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, ExportFormatPDF, res.Format)

	file, _, err := svc.OpenDownload(res.Token)
	require.NoError(t, err)
	defer file.Close()

	header := make([]byte, 5)
	_, err = file.Read(header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(header))
}

func TestExportServiceDeniedForTeacher(t *testing.T) {
	svc := newExportFixture(t)

	_, err := svc.StudentResultSheet(context.Background(), teacherPrincipal, "student-1", ExportFormatCSV)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestExportServiceUnsupportedFormat(t *testing.T) {
	svc := newExportFixture(t)

	_, err := svc.StudentResultSheet(context.Background(), adminPrincipal, "student-1", ExportFormat("xlsx"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestExportServiceUnknownStudent(t *testing.T) {
	svc := newExportFixture(t)

	_, err := svc.StudentResultSheet(context.Background(), adminPrincipal, "ghost", ExportFormatCSV)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportServiceRejectsTamperedToken(t *testing.T) {
	svc := newExportFixture(t)

	res, err := svc.StudentResultSheet(context.Background(), adminPrincipal, "student-1", ExportFormatCSV)
	require.NoError(t, err)

	_, _, err = svc.OpenDownload(res.Token + "x")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
