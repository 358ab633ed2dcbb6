package models

import "time"

// Assignment links a teacher to a student. The (teacher_id, student_id) pair
// is unique across live assignments; the row is immutable once created.
type Assignment struct {
	ID           string    `db:"id" json:"id"`
	TeacherID    string    `db:"teacher_id" json:"teacher_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	AssignedByID string    `db:"assigned_by_id" json:"assigned_by_id"`
	AssignedAt   time.Time `db:"assigned_at" json:"assigned_at"`
}

// AssignmentDetail enriches assignments with descriptive fields.
type AssignmentDetail struct {
	Assignment
	TeacherName string `db:"teacher_name" json:"teacher_name"`
	StudentName string `db:"student_name" json:"student_name"`
}

// FailedAssignment records one student that could not be assigned in a batch.
type FailedAssignment struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// BulkAssignReport summarises a best-effort bulk assignment run. Success is
// true only when no item failed; AssignedCount plus the failure count equals
// the input size.
type BulkAssignReport struct {
	Success           bool               `json:"success"`
	Message           string             `json:"message"`
	AssignedCount     int                `json:"assigned_count"`
	FailedAssignments []FailedAssignment `json:"failed_assignments"`
}
