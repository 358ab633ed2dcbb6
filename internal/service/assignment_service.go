package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-assign-api/internal/authz"
	"github.com/noah-isme/school-assign-api/internal/models"
	"github.com/noah-isme/school-assign-api/pkg/batch"
	appErrors "github.com/noah-isme/school-assign-api/pkg/errors"
)

type assignmentRepository interface {
	Create(ctx context.Context, assignment *models.Assignment) error
	Exists(ctx context.Context, teacherID, studentID string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.AssignmentDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.AssignmentDetail, error)
	ListAll(ctx context.Context) ([]models.AssignmentDetail, error)
	Delete(ctx context.Context, assignmentID string) error
}

type roleResolver interface {
	ResolveRole(ctx context.Context, id string) (models.UserRole, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateAssignmentRequest holds payload for assigning one student to a teacher.
type CreateAssignmentRequest struct {
	TeacherID string `json:"teacher_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// BulkAssignRequest assigns many students to one teacher in a single call.
type BulkAssignRequest struct {
	TeacherID  string   `json:"teacher_id" validate:"required"`
	StudentIDs []string `json:"student_ids" validate:"required,min=1,unique"`
}

// AssignmentService owns the teacher-student assignment records and enforces
// pair uniqueness and role integrity on every write.
type AssignmentService struct {
	repo      assignmentRepository
	users     roleResolver
	audit     auditRecorder
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssignmentService constructs the assignment service. The cache and
// metrics collaborators may be nil, in which case list paths always hit the
// database and no counters move.
func NewAssignmentService(repo assignmentRepository, users roleResolver, audit auditRecorder, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, users: users, audit: audit, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// verifyRoles checks that the teacher and student ids resolve to live users
// carrying the expected roles. A missing, blocked or wrong-role identity is a
// NotFound, the same as the id not existing at all.
func (s *AssignmentService) verifyRoles(ctx context.Context, teacherID, studentID string) error {
	role, err := s.users.ResolveRole(ctx, teacherID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher")
	}
	if role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}

	role, err = s.users.ResolveRole(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}
	if role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return nil
}

// Create assigns a student to a teacher. Pair uniqueness is enforced by the
// store, so a duplicate surfaces as DuplicateAssignment even when two
// requests race.
func (s *AssignmentService) Create(ctx context.Context, principal models.Principal, req CreateAssignmentRequest) (*models.Assignment, error) {
	if err := authz.Decide(principal, authz.ActionCreateAssignment, authz.Target{TeacherID: req.TeacherID, StudentID: req.StudentID}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if err := s.verifyRoles(ctx, req.TeacherID, req.StudentID); err != nil {
		return nil, err
	}

	assignment := &models.Assignment{
		TeacherID:    req.TeacherID,
		StudentID:    req.StudentID,
		AssignedByID: principal.ID,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		if errors.Is(err, appErrors.ErrDuplicateAssignment) {
			s.metrics.RecordAssignment("duplicate")
			return nil, appErrors.ErrDuplicateAssignment
		}
		s.metrics.RecordAssignment("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	s.metrics.RecordAssignment("created")
	s.recordAudit(ctx, principal.ID, models.AuditActionAssignmentCreate, assignment.ID)
	s.invalidateRosters(ctx, req.TeacherID, req.StudentID)
	return assignment, nil
}

// BulkAssign assigns many students to one teacher, best effort. Each student
// is attempted exactly once in input order; one failure never aborts the
// batch or rolls back earlier successes.
func (s *AssignmentService) BulkAssign(ctx context.Context, principal models.Principal, req BulkAssignRequest) (*models.BulkAssignReport, error) {
	if err := authz.Decide(principal, authz.ActionBulkAssign, authz.Target{TeacherID: req.TeacherID}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk assignment payload")
	}

	role, err := s.users.ResolveRole(ctx, req.TeacherID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher")
	}
	if role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}

	report := batch.Run(ctx, req.StudentIDs, func(ctx context.Context, studentID string) error {
		if studentID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "student id is required")
		}
		studentRole, err := s.users.ResolveRole(ctx, studentID)
		if err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
		}
		if studentRole != models.RoleStudent {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return s.repo.Create(ctx, &models.Assignment{
			TeacherID:    req.TeacherID,
			StudentID:    studentID,
			AssignedByID: principal.ID,
		})
	})

	out := &models.BulkAssignReport{
		Success:       report.OK(),
		AssignedCount: report.SuccessCount,
	}
	for _, failure := range report.Failures {
		out.FailedAssignments = append(out.FailedAssignments, models.FailedAssignment{
			StudentID: failure.Item,
			Reason:    failure.Reason,
		})
	}
	if out.Success {
		out.Message = fmt.Sprintf("assigned %d students", out.AssignedCount)
	} else {
		out.Message = fmt.Sprintf("assigned %d of %d students", out.AssignedCount, len(req.StudentIDs))
	}

	s.recordAudit(ctx, principal.ID, models.AuditActionAssignmentCreate, req.TeacherID)
	if out.AssignedCount > 0 {
		s.invalidateRosters(ctx, req.TeacherID, "")
	}
	return out, nil
}

// Exists is the consistency predicate consumed by the result records: it
// reports whether a live assignment currently links the pair.
func (s *AssignmentService) Exists(ctx context.Context, teacherID, studentID string) (bool, error) {
	exists, err := s.repo.Exists(ctx, teacherID, studentID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
	}
	return exists, nil
}

// List returns the full assignment ledger for administrators.
func (s *AssignmentService) List(ctx context.Context, principal models.Principal) ([]models.AssignmentDetail, error) {
	if err := authz.Decide(principal, authz.ActionListAssignments, authz.Target{}); err != nil {
		return nil, err
	}
	assignments, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, nil
}

// ListByTeacher returns the teacher's current roster.
func (s *AssignmentService) ListByTeacher(ctx context.Context, principal models.Principal, teacherID string) ([]models.AssignmentDetail, error) {
	if err := authz.Decide(principal, authz.ActionViewTeacherStudents, authz.Target{TeacherID: teacherID}); err != nil {
		return nil, err
	}

	key := teacherRosterKey(teacherID)
	var cached []models.AssignmentDetail
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	assignments, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	s.cache.Set(ctx, key, assignments, 0)
	return assignments, nil
}

// ListByStudent returns the teachers currently assigned to the student.
func (s *AssignmentService) ListByStudent(ctx context.Context, principal models.Principal, studentID string) ([]models.AssignmentDetail, error) {
	if err := authz.Decide(principal, authz.ActionViewStudentTeachers, authz.Target{StudentID: studentID}); err != nil {
		return nil, err
	}

	key := studentRosterKey(studentID)
	var cached []models.AssignmentDetail
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	assignments, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	s.cache.Set(ctx, key, assignments, 0)
	return assignments, nil
}

// Remove deletes an assignment. Existing results for the pair are left in
// place; only future result writes and roster views change.
func (s *AssignmentService) Remove(ctx context.Context, principal models.Principal, assignmentID string) error {
	if err := authz.Decide(principal, authz.ActionRemoveAssignment, authz.Target{}); err != nil {
		return err
	}

	assignment, err := s.repo.FindByID(ctx, assignmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	if err := s.repo.Delete(ctx, assignmentID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove assignment")
	}

	s.recordAudit(ctx, principal.ID, models.AuditActionAssignmentRemove, assignmentID)
	s.invalidateRosters(ctx, assignment.TeacherID, assignment.StudentID)
	return nil
}

func (s *AssignmentService) recordAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "assignment",
		ResourceID: &resourceID,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record assignment audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *AssignmentService) invalidateRosters(ctx context.Context, teacherID, studentID string) {
	if s.cache == nil {
		return
	}
	if teacherID != "" {
		s.cache.Invalidate(ctx, teacherRosterKey(teacherID))
	}
	if studentID != "" {
		s.cache.Invalidate(ctx, studentRosterKey(studentID))
	}
}

func teacherRosterKey(teacherID string) string {
	return "roster:teacher:" + teacherID
}

func studentRosterKey(studentID string) string {
	return "roster:student:" + studentID
}
