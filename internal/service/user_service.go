package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/school-assign-api/internal/authz"
	"github.com/noah-isme/school-assign-api/internal/models"
	appErrors "github.com/noah-isme/school-assign-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	SetBlocked(ctx context.Context, id string, blocked bool) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateUserRequest represents payload for creating users. The role-specific
// fields are honoured only for the matching role.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN TEACHER STUDENT"`
	Password string          `json:"password" validate:"required,min=6"`

	// Teacher payload.
	Subjects      []string   `json:"subjects"`
	Qualification *string    `json:"qualification"`
	JoiningDate   *time.Time `json:"joining_date"`

	// Student payload.
	ClassName                *string `json:"class_name"`
	RollNumber               *string `json:"roll_number"`
	GuardianName             *string `json:"guardian_name"`
	GuardianRelation         *string `json:"guardian_relation"`
	GuardianPrimaryContact   *string `json:"guardian_primary_contact"`
	GuardianSecondaryContact *string `json:"guardian_secondary_contact"`
}

// UpdateUserRequest payload for updating users. The role itself is immutable.
type UpdateUserRequest struct {
	FullName string `json:"full_name" validate:"required"`

	Subjects      []string   `json:"subjects"`
	Qualification *string    `json:"qualification"`
	JoiningDate   *time.Time `json:"joining_date"`

	ClassName                *string `json:"class_name"`
	RollNumber               *string `json:"roll_number"`
	GuardianName             *string `json:"guardian_name"`
	GuardianRelation         *string `json:"guardian_relation"`
	GuardianPrimaryContact   *string `json:"guardian_primary_contact"`
	GuardianSecondaryContact *string `json:"guardian_secondary_contact"`
}

// UserService handles user management workflows. Every operation is
// admin-gated.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, principal models.Principal, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if err := authz.Decide(principal, authz.ActionManageUsers, authz.Target{}); err != nil {
		return nil, nil, err
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}

	return users, pagination, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, principal models.Principal, id string) (*models.User, error) {
	if err := authz.Decide(principal, authz.ActionManageUsers, authz.Target{}); err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create registers a new user carrying the payload of its role.
func (s *UserService) Create(ctx context.Context, principal models.Principal, req CreateUserRequest) (*models.User, error) {
	if err := authz.Decide(principal, authz.ActionManageUsers, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
	}
	switch req.Role {
	case models.RoleTeacher:
		user.Subjects = req.Subjects
		user.Qualification = req.Qualification
		user.JoiningDate = req.JoiningDate
	case models.RoleStudent:
		user.ClassName = req.ClassName
		user.RollNumber = req.RollNumber
		user.GuardianName = req.GuardianName
		user.GuardianRelation = req.GuardianRelation
		user.GuardianPrimaryContact = req.GuardianPrimaryContact
		user.GuardianSecondaryContact = req.GuardianSecondaryContact
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.recordAudit(ctx, principal.ID, models.AuditActionUserCreate, user.ID, user)
	return user, nil
}

// Update persists changes to a user's profile fields.
func (s *UserService) Update(ctx context.Context, principal models.Principal, id string, req UpdateUserRequest) (*models.User, error) {
	if err := authz.Decide(principal, authz.ActionManageUsers, authz.Target{}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	user.FullName = req.FullName
	switch user.Role {
	case models.RoleTeacher:
		user.Subjects = req.Subjects
		user.Qualification = req.Qualification
		user.JoiningDate = req.JoiningDate
	case models.RoleStudent:
		user.ClassName = req.ClassName
		user.RollNumber = req.RollNumber
		user.GuardianName = req.GuardianName
		user.GuardianRelation = req.GuardianRelation
		user.GuardianPrimaryContact = req.GuardianPrimaryContact
		user.GuardianSecondaryContact = req.GuardianSecondaryContact
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.recordAudit(ctx, principal.ID, models.AuditActionUserUpdate, user.ID, user)
	return user, nil
}

// Delete removes a user record.
func (s *UserService) Delete(ctx context.Context, principal models.Principal, id string) error {
	if err := authz.Decide(principal, authz.ActionManageUsers, authz.Target{}); err != nil {
		return err
	}
	if id == principal.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot delete own account")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.recordAudit(ctx, principal.ID, models.AuditActionUserDelete, id, nil)
	return nil
}

// SetBlocked blocks or unblocks a user. Blocking also revokes every live
// session so the lockout takes effect immediately.
func (s *UserService) SetBlocked(ctx context.Context, principal models.Principal, id string, blocked bool) error {
	if err := authz.Decide(principal, authz.ActionManageUsers, authz.Target{}); err != nil {
		return err
	}
	if id == principal.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot block own account")
	}

	if err := s.repo.SetBlocked(ctx, id, blocked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update blocked state")
	}

	if blocked {
		if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
			s.logger.Warn("failed to revoke sessions for blocked user", zap.String("user_id", id), zap.Error(err))
		}
	}

	action := models.AuditActionUserBlock
	if !blocked {
		action = models.AuditActionUserUnblock
	}
	s.recordAudit(ctx, principal.ID, action, id, nil)
	return nil
}

func (s *UserService) recordAudit(ctx context.Context, actorID, action, resourceID string, payload interface{}) {
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "user",
		ResourceID: &resourceID,
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			log.NewValues = raw
		}
	}
	if err := s.repo.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", action), zap.Error(err))
	}
}
