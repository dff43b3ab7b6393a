package service

import (
	"context"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/permissions"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, page, size int) ([]models.UserDetail, int, error)
	FindByID(ctx context.Context, personID int64) (*models.User, error)
	SetPermissions(ctx context.Context, userID int64, codenames []string) error
}

// SetPermissionsRequest replaces the codenames granted to a user.
type SetPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"dive,required"`
}

// UserService exposes read-only user listings and permission grants.
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
func (s *UserService) List(ctx context.Context, page, size int) ([]models.UserDetail, *models.Pagination, error) {
	page, size = models.NormalizePage(page, size)
	users, total, err := s.repo.List(ctx, page, size)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a user with its grants.
func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "user not found", "failed to load user")
	}
	return user, nil
}

// SetPermissions replaces the user's grants. Unknown codenames are rejected.
func (s *UserService) SetPermissions(ctx context.Context, id int64, req SetPermissionsRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid permissions payload")
	}
	seen := map[string]bool{}
	codenames := make([]string, 0, len(req.Permissions))
	for _, c := range req.Permissions {
		if !permissions.Known(c) {
			return nil, appErrors.Invalid("permissions", "unknown permission "+c)
		}
		if !seen[c] {
			seen[c] = true
			codenames = append(codenames, c)
		}
	}
	sort.Strings(codenames)

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, repoError(err, "user not found", "failed to load user")
	}
	if err := s.repo.SetPermissions(ctx, id, codenames); err != nil {
		return nil, appErrors.Internal(err, "failed to store permissions")
	}
	s.logger.Info("user permissions replaced", zap.Int64("user_id", id), zap.Strings("permissions", codenames))
	return s.Get(ctx, id)
}
