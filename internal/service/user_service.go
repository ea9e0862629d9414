package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/plancheck/compliance-api/internal/models"
	appErrors "github.com/plancheck/compliance-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UserService manages user accounts. There is no create operation here:
// accounts only come into existence through accepted invitations.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// List returns users matching the filter.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one user by identifier.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Update changes a user's name, role or active flag. Deactivating or
// changing the role revokes open refresh tokens so the change takes
// effect on the next privileged request.
func (s *UserService) Update(ctx context.Context, caller *models.CallerIdentity, id string, req models.UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user update")
	}
	if !models.ValidRole(req.Role) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if caller.ID == user.ID && (req.Role != models.RoleAdmin || !*req.Active) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admins cannot demote or deactivate their own account")
	}

	previous, _ := json.Marshal(user)
	roleChanged := user.Role != req.Role
	deactivated := user.Active && !*req.Active

	user.FullName = req.FullName
	user.Role = req.Role
	user.Active = *req.Active

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	if roleChanged || deactivated {
		if err := s.repo.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke refresh tokens after user update", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	s.recordAudit(ctx, caller, models.AuditActionUserUpdate, user.ID, previous, user)
	return user, nil
}

// Delete deactivates a user and revokes their refresh tokens.
func (s *UserService) Delete(ctx context.Context, caller *models.CallerIdentity, id string) error {
	if caller.ID == id {
		return appErrors.Clone(appErrors.ErrConflict, "admins cannot delete their own account")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, user.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens after user delete", zap.String("user_id", user.ID), zap.Error(err))
	}

	previous, _ := json.Marshal(user)
	s.recordAudit(ctx, caller, models.AuditActionUserDelete, user.ID, previous, nil)
	return nil
}

func (s *UserService) recordAudit(ctx context.Context, caller *models.CallerIdentity, action, resourceID string, oldValues []byte, updated *models.User) {
	var newValues []byte
	if updated != nil {
		newValues, _ = json.Marshal(updated)
	}
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &caller.ID,
		Action:     action,
		Resource:   "users",
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("failed to record user audit log", zap.Error(err))
	}
}
