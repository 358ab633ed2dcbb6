package models

import "time"

// Marks bounds for a result record, inclusive.
const (
	MinMarks = 0
	MaxMarks = 100
)

// Result is a graded record for a student. TeacherID references the teacher
// of the authorizing assignment (or the admin sentinel), not necessarily the
// original author after a reassignment.
type Result struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	TeacherID  string    `db:"teacher_id" json:"teacher_id"`
	Subject    string    `db:"subject" json:"subject"`
	Marks      int       `db:"marks" json:"marks"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ResultDetail enriches results with the student's display name.
type ResultDetail struct {
	Result
	StudentName string `db:"student_name" json:"student_name"`
}
