package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-assign-api/internal/authz"
	"github.com/noah-isme/school-assign-api/internal/models"
	appErrors "github.com/noah-isme/school-assign-api/pkg/errors"
)

type resultRepository interface {
	Create(ctx context.Context, result *models.Result) error
	FindByID(ctx context.Context, id string) (*models.Result, error)
	UpdateMarks(ctx context.Context, id string, marks int) error
	Delete(ctx context.Context, id string) error
	ListByStudent(ctx context.Context, studentID string) ([]models.ResultDetail, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.ResultDetail, error)
}

type assignmentChecker interface {
	Exists(ctx context.Context, teacherID, studentID string) (bool, error)
}

// CreateResultRequest holds payload for recording a graded result. TeacherID
// is honoured only for admin callers; teachers always record under their own
// identity.
type CreateResultRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	TeacherID string `json:"teacher_id"`
	Subject   string `json:"subject" validate:"required"`
	Marks     int    `json:"marks"`
}

// UpdateResultRequest holds payload for overwriting marks.
type UpdateResultRequest struct {
	Marks int `json:"marks"`
}

// ResultService owns graded records. Every write is validated against the
// current assignment set unless the caller is an admin.
type ResultService struct {
	repo        resultRepository
	assignments assignmentChecker
	users       roleResolver
	audit       auditRecorder
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewResultService constructs the result service.
func NewResultService(repo resultRepository, assignments assignmentChecker, users roleResolver, audit auditRecorder, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ResultService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{
		repo:        repo,
		assignments: assignments,
		users:       users,
		audit:       audit,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

func validMarks(marks int) bool {
	return marks >= models.MinMarks && marks <= models.MaxMarks
}

// Create records a new result. Teachers must currently be assigned to the
// student; admins skip that check and may record under a named teacher or the
// admin sentinel.
func (s *ResultService) Create(ctx context.Context, principal models.Principal, req CreateResultRequest) (*models.Result, error) {
	if err := authz.Decide(principal, authz.ActionCreateResult, authz.Target{StudentID: req.StudentID}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid result payload")
	}
	if !validMarks(req.Marks) {
		return nil, appErrors.ErrInvalidMarks
	}

	role, err := s.users.ResolveRole(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}
	if role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	teacherID := req.TeacherID
	if principal.IsAdmin() {
		if teacherID == "" {
			teacherID = models.AdminTeacherSentinel
		}
	} else {
		teacherID = principal.ID
		assigned, err := s.assignments.Exists(ctx, teacherID, req.StudentID)
		if err != nil {
			return nil, err
		}
		if !assigned {
			return nil, appErrors.ErrNotAssigned
		}
	}

	result := &models.Result{
		StudentID: req.StudentID,
		TeacherID: teacherID,
		Subject:   req.Subject,
		Marks:     req.Marks,
	}
	if err := s.repo.Create(ctx, result); err != nil {
		s.metrics.RecordResult("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create result")
	}

	s.metrics.RecordResult("created")
	s.recordAudit(ctx, principal.ID, models.AuditActionResultCreate, result.ID)
	s.invalidateResults(ctx, result.StudentID, result.TeacherID)
	return result, nil
}

// authorizeWrite loads a result and applies the mutation rules shared by
// Update and Delete: teachers may only touch rows recorded under their own
// identity, and only while the stored (teacher, student) pair is still a
// live assignment. Admins bypass both checks.
func (s *ResultService) authorizeWrite(ctx context.Context, principal models.Principal, action authz.Action, resultID string) (*models.Result, error) {
	result, err := s.repo.FindByID(ctx, resultID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "result not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load result")
	}

	if err := authz.Decide(principal, action, authz.Target{TeacherID: result.TeacherID, StudentID: result.StudentID}); err != nil {
		return nil, err
	}

	if !principal.IsAdmin() {
		if result.TeacherID != principal.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "teachers can only modify their own results")
		}
		assigned, err := s.assignments.Exists(ctx, result.TeacherID, result.StudentID)
		if err != nil {
			return nil, err
		}
		if !assigned {
			return nil, appErrors.ErrNotAssigned
		}
	}
	return result, nil
}

// Update overwrites the marks of an existing result.
func (s *ResultService) Update(ctx context.Context, principal models.Principal, resultID string, req UpdateResultRequest) (*models.Result, error) {
	if !validMarks(req.Marks) {
		return nil, appErrors.ErrInvalidMarks
	}

	result, err := s.authorizeWrite(ctx, principal, authz.ActionUpdateResult, resultID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateMarks(ctx, resultID, req.Marks); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "result not found")
		}
		s.metrics.RecordResult("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update result")
	}

	result.Marks = req.Marks
	s.metrics.RecordResult("updated")
	s.recordAudit(ctx, principal.ID, models.AuditActionResultUpdate, resultID)
	s.invalidateResults(ctx, result.StudentID, result.TeacherID)
	return result, nil
}

// Delete removes a result. Repeating a delete on an already removed id
// yields NotFound, never a silent success.
func (s *ResultService) Delete(ctx context.Context, principal models.Principal, resultID string) error {
	result, err := s.authorizeWrite(ctx, principal, authz.ActionDeleteResult, resultID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, resultID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "result not found")
		}
		s.metrics.RecordResult("error")
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete result")
	}

	s.metrics.RecordResult("deleted")
	s.recordAudit(ctx, principal.ID, models.AuditActionResultDelete, resultID)
	s.invalidateResults(ctx, result.StudentID, result.TeacherID)
	return nil
}

// ListForStudent returns every result recorded for the student, including
// rows whose authorizing assignment has since been removed.
func (s *ResultService) ListForStudent(ctx context.Context, principal models.Principal, studentID string) ([]models.ResultDetail, error) {
	if err := authz.Decide(principal, authz.ActionViewStudentResults, authz.Target{StudentID: studentID}); err != nil {
		return nil, err
	}

	key := studentResultsKey(studentID)
	var cached []models.ResultDetail
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	results, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list results")
	}
	s.cache.Set(ctx, key, results, 0)
	return results, nil
}

// ListForTeacher returns the teacher's results for currently assigned
// students only. Removing an assignment shrinks this view even though the
// rows themselves survive.
func (s *ResultService) ListForTeacher(ctx context.Context, principal models.Principal, teacherID string) ([]models.ResultDetail, error) {
	if err := authz.Decide(principal, authz.ActionViewTeacherResults, authz.Target{TeacherID: teacherID}); err != nil {
		return nil, err
	}

	key := teacherResultsKey(teacherID)
	var cached []models.ResultDetail
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	results, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list results")
	}
	s.cache.Set(ctx, key, results, 0)
	return results, nil
}

func (s *ResultService) recordAudit(ctx context.Context, actorID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "result",
		ResourceID: &resourceID,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record result audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *ResultService) invalidateResults(ctx context.Context, studentID, teacherID string) {
	if s.cache == nil {
		return
	}
	if studentID != "" {
		s.cache.Invalidate(ctx, studentResultsKey(studentID))
	}
	if teacherID != "" {
		s.cache.Invalidate(ctx, teacherResultsKey(teacherID))
	}
}

func studentResultsKey(studentID string) string {
	return "results:student:" + studentID
}

func teacherResultsKey(teacherID string) string {
	return "results:teacher:" + teacherID
}
