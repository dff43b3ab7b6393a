package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/permissions"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type personRepository interface {
	List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error)
	ListAll(ctx context.Context, types []models.PersonType) ([]models.Person, error)
	FindByID(ctx context.Context, id int64) (*models.Person, error)
	FindByIDs(ctx context.Context, ids []int64) ([]models.Person, error)
	Create(ctx context.Context, person *models.Person) error
	Update(ctx context.Context, person *models.Person) error
	Delete(ctx context.Context, id int64) error
	ManagedIDs(ctx context.Context, id int64) ([]int64, error)
	AddManaged(ctx context.Context, managerID, managedID int64) error
	RemoveManaged(ctx context.Context, managerID, managedID int64) error
	HourlyRates(ctx context.Context, personID int64) ([]models.PersonHourlyRate, error)
	SetHourlyRate(ctx context.Context, rate models.PersonHourlyRate) error
	DeleteHourlyRate(ctx context.Context, personID int64, category models.EventCategory) error
}

// ManagedPersonRequest names the person to add to or remove from the managed set.
type ManagedPersonRequest struct {
	PersonID int64 `json:"person_id" validate:"required"`
}

// PersonService manages persons, their hourly rates and who manages whom.
type PersonService struct {
	repo      personRepository
	validator *validator.Validate
	logger    *zap.Logger
	clock     Clock
}

// NewPersonService creates an instance of PersonService.
func NewPersonService(repo personRepository, validate *validator.Validate, logger *zap.Logger) *PersonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PersonService{repo: repo, validator: validate, logger: logger, clock: systemClock}
}

// WithClock overrides the time source.
func (s *PersonService) WithClock(clock Clock) *PersonService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// List returns the persons whose membership type the caller's scopes cover.
// A caller without any scope gets an empty page.
func (s *PersonService) List(ctx context.Context, principal *models.Principal, filter models.PersonFilter) ([]models.Person, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}

	filter.Types = permissions.IntersectTypes(permissions.VisibleTypes(principal.User), filter.Types)
	if len(filter.Types) == 0 {
		return []models.Person{}, pagination, nil
	}
	filter.Search = strings.TrimSpace(filter.Search)

	persons, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list persons")
	}
	pagination.TotalCount = total
	return persons, pagination, nil
}

// Managed returns the caller's own person followed by every person the
// caller manages, directly or transitively.
func (s *PersonService) Managed(ctx context.Context, principal *models.Principal) ([]models.Person, error) {
	ids := append([]int64{principal.User.PersonID}, principal.ManagedPersonIDs...)
	persons, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load managed persons")
	}
	return persons, nil
}

// Visible lists every person in the caller's scope without paging; used by
// exports and pickers.
func (s *PersonService) Visible(ctx context.Context, principal *models.Principal) ([]models.Person, error) {
	types := permissions.VisibleTypes(principal.User)
	if len(types) == 0 {
		return []models.Person{}, nil
	}
	persons, err := s.repo.ListAll(ctx, types)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list persons")
	}
	return persons, nil
}

// Get returns a person by ID.
func (s *PersonService) Get(ctx context.Context, id int64) (*models.Person, error) {
	person, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "person not found", "failed to load person")
	}
	return person, nil
}

// Create registers a person. The membership type must be one the caller's
// scopes cover.
func (s *PersonService) Create(ctx context.Context, principal *models.Principal, req models.PersonRequest) (*models.Person, error) {
	person, err := s.buildPerson(req)
	if err != nil {
		return nil, err
	}
	if !permissions.CanSeeType(principal.User, person.PersonType) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "membership type outside of your scope")
	}
	person.UpdatedAt = s.clock()
	if err := s.repo.Create(ctx, person); err != nil {
		return nil, repoError(err, "person not found", "failed to create person")
	}
	s.logger.Info("person created", zap.Int64("person_id", person.ID), zap.String("person_type", string(person.PersonType)))
	return person, nil
}

// Update edits a person. Managers may edit the persons they manage but only
// scope holders may move a person to another membership type.
func (s *PersonService) Update(ctx context.Context, principal *models.Principal, id int64, req models.PersonRequest) (*models.Person, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "person not found", "failed to load person")
	}
	person, err := s.buildPerson(req)
	if err != nil {
		return nil, err
	}
	if person.PersonType != existing.PersonType && !permissions.CanSeeType(principal.User, person.PersonType) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "membership type outside of your scope")
	}
	person.ID = existing.ID
	person.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, person); err != nil {
		return nil, repoError(err, "person not found", "failed to update person")
	}
	return person, nil
}

// Delete removes a person together with their user and attached records.
func (s *PersonService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return repoError(err, "person not found", "failed to delete person")
	}
	s.logger.Info("person deleted", zap.Int64("person_id", id))
	return nil
}

func (s *PersonService) buildPerson(req models.PersonRequest) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid person payload")
	}
	if !req.PersonType.Valid() {
		return nil, appErrors.Invalid("person_type", "unknown membership type")
	}
	if req.DateOfBirth.IsZero() {
		return nil, appErrors.Invalid("date_of_birth", "date of birth is required")
	}
	if req.DateOfBirth.After(s.clock()) {
		return nil, appErrors.Invalid("date_of_birth", "date of birth lies in the future")
	}

	person := &models.Person{
		Email:                  trimmed(req.Email),
		FirstName:              strings.TrimSpace(req.FirstName),
		LastName:               strings.TrimSpace(req.LastName),
		DateOfBirth:            models.DateOnly(req.DateOfBirth.Time),
		Sex:                    req.Sex,
		PersonType:             req.PersonType,
		BirthNumber:            trimmed(req.BirthNumber),
		HealthInsuranceCompany: req.HealthInsuranceCompany,
		Street:                 trimmed(req.Street),
		City:                   trimmed(req.City),
		Postcode:               trimmed(req.Postcode),
		SwimmingTime:           trimmed(req.SwimmingTime),
	}
	if person.Email != nil {
		lower := strings.ToLower(*person.Email)
		person.Email = &lower
	}
	if phone := trimmed(req.Phone); phone != nil {
		canonical, ok := models.CanonicalPhone(*phone)
		if !ok {
			return nil, appErrors.Invalid("phone", "phone number must have 9 digits")
		}
		person.Phone = &canonical
	}
	if person.BirthNumber != nil && !models.ValidBirthNumber(*person.BirthNumber) {
		return nil, appErrors.Invalid("birth_number", "malformed birth number")
	}
	if person.SwimmingTime != nil && !models.ValidSwimmingTime(*person.SwimmingTime) {
		return nil, appErrors.Invalid("swimming_time", "swimming time must look like MM:SS")
	}
	return person, nil
}

// HourlyRates lists the rates a person declared per event category.
func (s *PersonService) HourlyRates(ctx context.Context, personID int64) ([]models.PersonHourlyRate, error) {
	rates, err := s.repo.HourlyRates(ctx, personID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load hourly rates")
	}
	return rates, nil
}

// SetHourlyRate stores the rate for one category; a zero rate removes it.
func (s *PersonService) SetHourlyRate(ctx context.Context, personID int64, req models.HourlyRateRequest) ([]models.PersonHourlyRate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid hourly rate payload")
	}
	if !req.Category.Valid() {
		return nil, appErrors.Invalid("category", "unknown event category")
	}
	if _, err := s.repo.FindByID(ctx, personID); err != nil {
		return nil, repoError(err, "person not found", "failed to load person")
	}

	if req.HourlyRate == 0 {
		if err := s.repo.DeleteHourlyRate(ctx, personID, req.Category); err != nil {
			return nil, appErrors.Internal(err, "failed to remove hourly rate")
		}
	} else if err := s.repo.SetHourlyRate(ctx, models.PersonHourlyRate{
		PersonID:   personID,
		Category:   req.Category,
		HourlyRate: req.HourlyRate,
	}); err != nil {
		return nil, appErrors.Internal(err, "failed to store hourly rate")
	}
	return s.HourlyRates(ctx, personID)
}

// AddManaged lets managerID act on behalf of the person in req.
func (s *PersonService) AddManaged(ctx context.Context, managerID int64, req ManagedPersonRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid managed person payload")
	}
	if req.PersonID == managerID {
		return appErrors.Invalid("person_id", "a person cannot manage themselves")
	}
	if _, err := s.repo.FindByID(ctx, req.PersonID); err != nil {
		return repoError(err, "person not found", "failed to load person")
	}
	// The managed subtree of the new person must not lead back to the manager.
	below, err := s.repo.ManagedIDs(ctx, req.PersonID)
	if err != nil {
		return appErrors.Internal(err, "failed to load managed persons")
	}
	if containsID(below, managerID) {
		return appErrors.Invalid("person_id", "management relation would form a cycle")
	}
	if err := s.repo.AddManaged(ctx, managerID, req.PersonID); err != nil {
		return repoError(err, "person not found", "failed to add managed person")
	}
	return nil
}

// RemoveManaged drops a managed relation.
func (s *PersonService) RemoveManaged(ctx context.Context, managerID, managedID int64) error {
	if err := s.repo.RemoveManaged(ctx, managerID, managedID); err != nil {
		return repoError(err, "managed person not found", "failed to remove managed person")
	}
	return nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
