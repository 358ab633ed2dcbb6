package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-assign-api/internal/models"
)

func newResultMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestResultRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newResultMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectExec("INSERT INTO results").
		WithArgs(sqlmock.AnyArg(), "student-1", "teacher-1", "Math", 88, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	result := &models.Result{
		StudentID: "student-1",
		TeacherID: "teacher-1",
		Subject:   "Math",
		Marks:     88,
	}
	require.NoError(t, repo.Create(context.Background(), result))
	assert.NotEmpty(t, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepositoryCreateWithAdminSentinel(t *testing.T) {
	db, mock, cleanup := newResultMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectExec("INSERT INTO results").
		WithArgs(sqlmock.AnyArg(), "student-1", models.AdminTeacherSentinel, "Science", 100, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), &models.Result{
		StudentID: "student-1",
		TeacherID: models.AdminTeacherSentinel,
		Subject:   "Science",
		Marks:     100,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepositoryUpdateMarks(t *testing.T) {
	db, mock, cleanup := newResultMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectExec("UPDATE results SET marks").
		WithArgs("result-1", 72, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateMarks(context.Background(), "result-1", 72))

	mock.ExpectExec("UPDATE results SET marks").
		WithArgs("result-missing", 72, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateMarks(context.Background(), "result-missing", 72)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newResultMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "teacher_id", "subject", "marks", "recorded_at", "updated_at", "student_name"}).
		AddRow("result-1", "student-1", "teacher-1", "Math", 88, time.Now(), time.Now(), "Student One").
		AddRow("result-2", "student-1", models.AdminTeacherSentinel, "Science", 95, time.Now(), time.Now(), "Student One")
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT r.id, r.student_id, r.teacher_id, r.subject, r.marks, r.recorded_at, r.updated_at,
       s.full_name AS student_name
FROM results r
JOIN users s ON s.id = r.student_id
WHERE r.student_id = $1
ORDER BY r.recorded_at DESC`)).
		WithArgs("student-1").
		WillReturnRows(rows)

	results, err := repo.ListByStudent(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.AdminTeacherSentinel, results[1].TeacherID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepositoryListByTeacherNarrowedToAssignments(t *testing.T) {
	db, mock, cleanup := newResultMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "teacher_id", "subject", "marks", "recorded_at", "updated_at", "student_name"}).
		AddRow("result-1", "student-1", "teacher-1", "Math", 64, time.Now(), time.Now(), "Student One")
	// The assignment join must bind its own uuid-cast parameter: results.teacher_id
	// is text while assignments.teacher_id is uuid, and PostgreSQL rejects a single
	// parameter deduced as both. sqlmock cannot exercise server-side parse analysis,
	// so this pins the query shape and double binding instead.
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT r.id, r.student_id, r.teacher_id, r.subject, r.marks, r.recorded_at, r.updated_at,
       s.full_name AS student_name
FROM results r
JOIN users s ON s.id = r.student_id
JOIN assignments a ON a.teacher_id = $2::uuid AND a.student_id = r.student_id
WHERE r.teacher_id = $1
ORDER BY r.recorded_at DESC`)).
		WithArgs("teacher-1", "teacher-1").
		WillReturnRows(rows)

	results, err := repo.ListByTeacher(context.Background(), "teacher-1")
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newResultMock(t)
	defer cleanup()
	repo := NewResultRepository(db)

	mock.ExpectExec("DELETE FROM results").
		WithArgs("result-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "result-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
