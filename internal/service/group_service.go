package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type groupRepository interface {
	List(ctx context.Context) ([]models.Group, error)
	FindByID(ctx context.Context, id int64) (*models.Group, error)
	Create(ctx context.Context, g *models.Group) error
	Update(ctx context.Context, g *models.Group) error
	Delete(ctx context.Context, id int64) error
	Members(ctx context.Context, groupID int64) ([]models.Person, error)
	AddMembers(ctx context.Context, groupID int64, personIDs []int64) error
	RemoveMembers(ctx context.Context, groupID int64, personIDs []int64) error
}

type groupPersonLookup interface {
	FindByIDs(ctx context.Context, ids []int64) ([]models.Person, error)
}

// GroupService handles group CRUD and membership.
type GroupService struct {
	repo      groupRepository
	persons   groupPersonLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGroupService creates an instance of GroupService.
func NewGroupService(repo groupRepository, persons groupPersonLookup, validate *validator.Validate, logger *zap.Logger) *GroupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &GroupService{repo: repo, persons: persons, validator: validate, logger: logger}
}

// List returns every group ordered by name.
func (s *GroupService) List(ctx context.Context) ([]models.Group, error) {
	groups, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list groups")
	}
	return groups, nil
}

// Get returns a group by ID.
func (s *GroupService) Get(ctx context.Context, id int64) (*models.Group, error) {
	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "group not found", "failed to load group")
	}
	return group, nil
}

// Create adds a group.
func (s *GroupService) Create(ctx context.Context, req models.GroupRequest) (*models.Group, error) {
	group, err := s.buildGroup(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, group); err != nil {
		return nil, repoError(err, "group not found", "failed to create group")
	}
	return group, nil
}

// Update edits a group.
func (s *GroupService) Update(ctx context.Context, id int64, req models.GroupRequest) (*models.Group, error) {
	group, err := s.buildGroup(req)
	if err != nil {
		return nil, err
	}
	group.ID = id
	if err := s.repo.Update(ctx, group); err != nil {
		return nil, repoError(err, "group not found", "failed to update group")
	}
	return group, nil
}

func (s *GroupService) buildGroup(req models.GroupRequest) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid group payload")
	}
	email := trimmed(req.GoogleEmail)
	if req.GoogleAsMembersAuthority && email == nil {
		return nil, appErrors.Invalid("google_as_members_authority", "directory authority requires a group email")
	}
	return &models.Group{
		Name:                     strings.TrimSpace(req.Name),
		GoogleEmail:              email,
		GoogleAsMembersAuthority: req.GoogleAsMembersAuthority,
	}, nil
}

// Delete removes a group.
func (s *GroupService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return repoError(err, "group not found", "failed to delete group")
	}
	return nil
}

// Members lists the persons in a group.
func (s *GroupService) Members(ctx context.Context, id int64) ([]models.Person, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	members, err := s.repo.Members(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list group members")
	}
	return members, nil
}

// AddMembers puts persons into the group; persons already in it are kept.
func (s *GroupService) AddMembers(ctx context.Context, id int64, req models.GroupMembersRequest) ([]models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid members payload")
	}
	group, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if group.GoogleAsMembersAuthority {
		return nil, stateConflict("membership of this group is managed by the directory")
	}
	found, err := s.persons.FindByIDs(ctx, req.PersonIDs)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load persons")
	}
	if len(found) != len(uniqueIDs(req.PersonIDs)) {
		return nil, appErrors.Invalid("person_ids", "unknown person")
	}
	if err := s.repo.AddMembers(ctx, id, req.PersonIDs); err != nil {
		return nil, appErrors.Internal(err, "failed to add group members")
	}
	return s.Members(ctx, id)
}

// RemoveMembers takes persons out of the group.
func (s *GroupService) RemoveMembers(ctx context.Context, id int64, req models.GroupMembersRequest) ([]models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid members payload")
	}
	group, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if group.GoogleAsMembersAuthority {
		return nil, stateConflict("membership of this group is managed by the directory")
	}
	if err := s.repo.RemoveMembers(ctx, id, req.PersonIDs); err != nil {
		return nil, appErrors.Internal(err, "failed to remove group members")
	}
	return s.Members(ctx, id)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
