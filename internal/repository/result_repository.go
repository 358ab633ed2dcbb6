package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-assign-api/internal/models"
)

// ResultRepository persists graded result records.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository constructs the repository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// Create inserts a new result row.
func (r *ResultRepository) Create(ctx context.Context, result *models.Result) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if result.RecordedAt.IsZero() {
		result.RecordedAt = now
	}
	result.UpdatedAt = now
	const query = `INSERT INTO results (id, student_id, teacher_id, subject, marks, recorded_at, updated_at)
		VALUES (:id, :student_id, :teacher_id, :subject, :marks, :recorded_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		return fmt.Errorf("create result: %w", err)
	}
	return nil
}

// FindByID loads a single result.
func (r *ResultRepository) FindByID(ctx context.Context, id string) (*models.Result, error) {
	const query = `SELECT id, student_id, teacher_id, subject, marks, recorded_at, updated_at FROM results WHERE id = $1 LIMIT 1`
	var result models.Result
	if err := r.db.GetContext(ctx, &result, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find result: %w", err)
	}
	return &result, nil
}

// UpdateMarks overwrites the marks of an existing result.
func (r *ResultRepository) UpdateMarks(ctx context.Context, id string, marks int) error {
	const query = `UPDATE results SET marks = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, marks, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update result marks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated result rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a result row.
func (r *ResultRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM results WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted result rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByStudent returns every result recorded for the student, newest first.
// Results survive assignment removal, so no assignment join narrows this set.
func (r *ResultRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ResultDetail, error) {
	const query = `
SELECT r.id, r.student_id, r.teacher_id, r.subject, r.marks, r.recorded_at, r.updated_at,
       s.full_name AS student_name
FROM results r
JOIN users s ON s.id = r.student_id
WHERE r.student_id = $1
ORDER BY r.recorded_at DESC`
	var results []models.ResultDetail
	if err := r.db.SelectContext(ctx, &results, query, studentID); err != nil {
		return nil, fmt.Errorf("list results by student: %w", err)
	}
	return results, nil
}

// ListByTeacher returns results for the teacher's currently assigned
// students only, so a teacher's roster view shrinks when an assignment is
// removed even though the rows remain visible to admins and the student.
// The teacher id is bound twice: results.teacher_id is text (it holds the
// admin sentinel) while assignments.teacher_id is uuid, and one shared
// parameter cannot carry both types under the extended protocol.
func (r *ResultRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.ResultDetail, error) {
	const query = `
SELECT r.id, r.student_id, r.teacher_id, r.subject, r.marks, r.recorded_at, r.updated_at,
       s.full_name AS student_name
FROM results r
JOIN users s ON s.id = r.student_id
JOIN assignments a ON a.teacher_id = $2::uuid AND a.student_id = r.student_id
WHERE r.teacher_id = $1
ORDER BY r.recorded_at DESC`
	var results []models.ResultDetail
	if err := r.db.SelectContext(ctx, &results, query, teacherID, teacherID); err != nil {
		return nil, fmt.Errorf("list results by teacher: %w", err)
	}
	return results, nil
}
