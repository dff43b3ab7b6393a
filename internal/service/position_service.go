package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type positionRepository interface {
	List(ctx context.Context) ([]models.Position, error)
	FindByID(ctx context.Context, id int64) (*models.Position, error)
	Create(ctx context.Context, p *models.Position) error
	Update(ctx context.Context, p *models.Position) error
	Delete(ctx context.Context, id int64) error
}

type groupFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Group, error)
}

type featureFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Feature, error)
}

// PositionService handles coaching positions.
type PositionService struct {
	repo      positionRepository
	groups    groupFinder
	features  featureFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPositionService creates an instance of PositionService.
func NewPositionService(repo positionRepository, groups groupFinder, features featureFinder, validate *validator.Validate, logger *zap.Logger) *PositionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PositionService{repo: repo, groups: groups, features: features, validator: validate, logger: logger}
}

// List returns every position.
func (s *PositionService) List(ctx context.Context) ([]models.Position, error) {
	positions, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list positions")
	}
	return positions, nil
}

// Get returns a position with its required features.
func (s *PositionService) Get(ctx context.Context, id int64) (*models.Position, error) {
	position, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "position not found", "failed to load position")
	}
	return position, nil
}

// Create adds a position.
func (s *PositionService) Create(ctx context.Context, req models.PositionRequest) (*models.Position, error) {
	position, err := s.buildPosition(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, position); err != nil {
		return nil, repoError(err, "position not found", "failed to create position")
	}
	s.logger.Info("position created", zap.Int64("position_id", position.ID), zap.String("name", position.Name))
	return position, nil
}

// Update edits a position. Existing coach assignments are not re-validated.
func (s *PositionService) Update(ctx context.Context, id int64, req models.PositionRequest) (*models.Position, error) {
	position, err := s.buildPosition(ctx, req)
	if err != nil {
		return nil, err
	}
	position.ID = id
	if err := s.repo.Update(ctx, position); err != nil {
		return nil, repoError(err, "position not found", "failed to update position")
	}
	return position, nil
}

// Delete removes a position.
func (s *PositionService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return repoError(err, "position not found", "failed to delete position")
	}
	return nil
}

func (s *PositionService) buildPosition(ctx context.Context, req models.PositionRequest) (*models.Position, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid position payload")
	}
	if req.MinAge != nil && req.MaxAge != nil && *req.MinAge > *req.MaxAge {
		return nil, appErrors.Invalid("min_age", "minimum age exceeds maximum age")
	}
	types, err := personTypes("allowed_person_types", req.AllowedPersonTypes)
	if err != nil {
		return nil, err
	}
	if req.GroupID != nil {
		if _, err := s.groups.FindByID(ctx, *req.GroupID); err != nil {
			return nil, referenceError(err, "group_id", "unknown group")
		}
	}
	features := uniqueIDs(req.RequiredFeatures)
	for _, id := range features {
		feature, err := s.features.FindByID(ctx, id)
		if err != nil {
			return nil, referenceError(err, "required_features", "unknown feature")
		}
		if !feature.Assignable {
			return nil, appErrors.Invalid("required_features", "feature "+feature.Name+" cannot be assigned")
		}
	}
	return &models.Position{
		Name:               strings.TrimSpace(req.Name),
		WageHour:           req.WageHour,
		MinAge:             req.MinAge,
		MaxAge:             req.MaxAge,
		GroupID:            req.GroupID,
		AllowedPersonTypes: types,
		RequiredFeatures:   features,
	}, nil
}

func personTypes(field string, values []models.PersonType) (models.PersonTypeList, error) {
	out := make(models.PersonTypeList, 0, len(values))
	seen := map[models.PersonType]bool{}
	for _, t := range values {
		if !t.Valid() {
			return nil, appErrors.Invalid(field, "unknown membership type "+string(t))
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, nil
}

// referenceError turns a failed lookup of a referenced row into a field
// validation error; other failures stay internal.
func referenceError(err error, field, message string) error {
	mapped := appErrors.FromError(repoError(err, message, "failed to load "+field))
	if mapped.Code == appErrors.ErrNotFound.Code {
		return appErrors.Invalid(field, message)
	}
	return mapped
}
