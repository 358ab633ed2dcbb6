package authz

import (
	"fmt"

	"github.com/noah-isme/school-assign-api/internal/models"
	appErrors "github.com/noah-isme/school-assign-api/pkg/errors"
)

// Action identifies a guarded operation.
type Action string

const (
	ActionCreateAssignment     Action = "assignment.create"
	ActionBulkAssign           Action = "assignment.bulk_assign"
	ActionRemoveAssignment     Action = "assignment.remove"
	ActionListAssignments      Action = "assignment.list"
	ActionViewTeacherStudents  Action = "assignment.view_teacher_students"
	ActionViewStudentTeachers  Action = "assignment.view_student_teachers"
	ActionCreateResult         Action = "result.create"
	ActionUpdateResult         Action = "result.update"
	ActionDeleteResult         Action = "result.delete"
	ActionViewStudentResults   Action = "result.view_student"
	ActionViewTeacherResults   Action = "result.view_teacher"
	ActionExportStudentResults Action = "result.export_student"
	ActionSendProgressAlert    Action = "sms.send_progress_alert"
	ActionViewSMSHistory       Action = "sms.view_history"
	ActionManageUsers          Action = "user.manage"
)

// Target carries ownership context for actions whose permission depends on
// which teacher or student the request touches.
type Target struct {
	TeacherID string
	StudentID string
}

// matrix is the static action -> allowed roles table. Ownership narrowing is
// layered on top in Decide; keeping the rule set in one place is the point.
var matrix = map[Action][]models.UserRole{
	ActionCreateAssignment:     {models.RoleAdmin},
	ActionBulkAssign:           {models.RoleAdmin},
	ActionRemoveAssignment:     {models.RoleAdmin},
	ActionListAssignments:      {models.RoleAdmin},
	ActionViewTeacherStudents:  {models.RoleAdmin, models.RoleTeacher},
	ActionViewStudentTeachers:  {models.RoleAdmin, models.RoleStudent},
	ActionCreateResult:         {models.RoleAdmin, models.RoleTeacher},
	ActionUpdateResult:         {models.RoleAdmin, models.RoleTeacher},
	ActionDeleteResult:         {models.RoleAdmin, models.RoleTeacher},
	ActionViewStudentResults:   {models.RoleAdmin, models.RoleTeacher, models.RoleStudent},
	ActionViewTeacherResults:   {models.RoleAdmin, models.RoleTeacher},
	ActionExportStudentResults: {models.RoleAdmin},
	ActionSendProgressAlert:    {models.RoleAdmin, models.RoleTeacher},
	ActionViewSMSHistory:       {models.RoleAdmin},
	ActionManageUsers:          {models.RoleAdmin},
}

// Decide evaluates the permission matrix plus ownership rules for the given
// principal. It returns nil when the action is allowed and a Forbidden error
// carrying the reason otherwise. A deny is always explicit, never a no-op.
func Decide(principal models.Principal, action Action, target Target) error {
	if principal.ID == "" || !principal.Role.Valid() {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing or invalid principal")
	}

	allowed, ok := matrix[action]
	if !ok {
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("unknown action %s", action))
	}

	roleAllowed := false
	for _, role := range allowed {
		if role == principal.Role {
			roleAllowed = true
			break
		}
	}
	if !roleAllowed {
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role %s may not perform %s", principal.Role, action))
	}

	// Admins are never narrowed by ownership.
	if principal.Role == models.RoleAdmin {
		return nil
	}

	switch action {
	case ActionViewTeacherStudents, ActionViewTeacherResults:
		if target.TeacherID != principal.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "teachers can only view their own records")
		}
	case ActionViewStudentTeachers:
		if target.StudentID != principal.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "students can only view their own teachers")
		}
	}

	return nil
}
