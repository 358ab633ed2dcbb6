package models

import (
	"time"

	"github.com/lib/pq"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// Valid reports whether the role is one of the known variants.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// User is the single tagged-variant record for admins, teachers and students.
// The role column discriminates which payload columns are populated: teachers
// carry subjects/qualification/joining_date, students carry class, roll number
// and guardian contact details, admins carry neither.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Blocked      bool       `db:"blocked" json:"blocked"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	// Teacher payload.
	Subjects      pq.StringArray `db:"subjects" json:"subjects,omitempty"`
	Qualification *string        `db:"qualification" json:"qualification,omitempty"`
	JoiningDate   *time.Time     `db:"joining_date" json:"joining_date,omitempty"`

	// Student payload.
	ClassName                *string `db:"class_name" json:"class_name,omitempty"`
	RollNumber               *string `db:"roll_number" json:"roll_number,omitempty"`
	GuardianName             *string `db:"guardian_name" json:"guardian_name,omitempty"`
	GuardianRelation         *string `db:"guardian_relation" json:"guardian_relation,omitempty"`
	GuardianPrimaryContact   *string `db:"guardian_primary_contact" json:"guardian_primary_contact,omitempty"`
	GuardianSecondaryContact *string `db:"guardian_secondary_contact" json:"guardian_secondary_contact,omitempty"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Blocked   *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
