package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/school-assign-api/internal/models"
	appErrors "github.com/noah-isme/school-assign-api/pkg/errors"
)

// pgUniqueViolation is the PostgreSQL error code raised when an insert
// breaks a unique constraint.
const pgUniqueViolation = "23505"

// AssignmentRepository persists teacher-student assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts a new assignment. Pair uniqueness is enforced by the
// unique index on (teacher_id, student_id), so two racing inserts resolve
// atomically at the database: one wins, the other surfaces
// ErrDuplicateAssignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assignments (id, teacher_id, student_id, assigned_by_id, assigned_at)
		VALUES (:id, :teacher_id, :student_id, :assigned_by_id, :assigned_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return appErrors.ErrDuplicateAssignment
		}
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// Exists reports whether a live assignment links the teacher and student.
func (r *AssignmentRepository) Exists(ctx context.Context, teacherID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM assignments WHERE teacher_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, teacherID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return true, nil
}

// FindByID loads a single assignment.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	const query = `SELECT id, teacher_id, student_id, assigned_by_id, assigned_at FROM assignments WHERE id = $1 LIMIT 1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	return &assignment, nil
}

// ListByTeacher returns assignments owned by the teacher, newest first.
func (r *AssignmentRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.AssignmentDetail, error) {
	const query = `
SELECT a.id, a.teacher_id, a.student_id, a.assigned_by_id, a.assigned_at,
       t.full_name AS teacher_name, s.full_name AS student_name
FROM assignments a
JOIN users t ON t.id = a.teacher_id
JOIN users s ON s.id = a.student_id
WHERE a.teacher_id = $1
ORDER BY a.assigned_at DESC`
	var assignments []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, teacherID); err != nil {
		return nil, fmt.Errorf("list assignments by teacher: %w", err)
	}
	return assignments, nil
}

// ListByStudent returns assignments covering the student, newest first.
func (r *AssignmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.AssignmentDetail, error) {
	const query = `
SELECT a.id, a.teacher_id, a.student_id, a.assigned_by_id, a.assigned_at,
       t.full_name AS teacher_name, s.full_name AS student_name
FROM assignments a
JOIN users t ON t.id = a.teacher_id
JOIN users s ON s.id = a.student_id
WHERE a.student_id = $1
ORDER BY a.assigned_at DESC`
	var assignments []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, studentID); err != nil {
		return nil, fmt.Errorf("list assignments by student: %w", err)
	}
	return assignments, nil
}

// ListAll returns every live assignment, newest first.
func (r *AssignmentRepository) ListAll(ctx context.Context) ([]models.AssignmentDetail, error) {
	const query = `
SELECT a.id, a.teacher_id, a.student_id, a.assigned_by_id, a.assigned_at,
       t.full_name AS teacher_name, s.full_name AS student_name
FROM assignments a
JOIN users t ON t.id = a.teacher_id
JOIN users s ON s.id = a.student_id
ORDER BY a.assigned_at DESC`
	var assignments []models.AssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// Delete removes an assignment. Existing results are untouched: removal only
// changes what the assignment set authorizes from now on.
func (r *AssignmentRepository) Delete(ctx context.Context, assignmentID string) error {
	const query = `DELETE FROM assignments WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, assignmentID)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted assignment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
