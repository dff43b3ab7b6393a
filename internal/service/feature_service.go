package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/permissions"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type featureRepository interface {
	List(ctx context.Context, featureType models.FeatureType) ([]models.Feature, error)
	FindByID(ctx context.Context, id int64) (*models.Feature, error)
	Subtree(ctx context.Context, rootID int64) ([]models.Feature, error)
	Ancestors(ctx context.Context, id int64) ([]int64, error)
	Create(ctx context.Context, f *models.Feature) error
	Update(ctx context.Context, f *models.Feature) error
	Delete(ctx context.Context, id int64) error
	AssignmentIDsInSubtree(ctx context.Context, rootID int64) ([]int64, error)
	FindAssignment(ctx context.Context, id int64) (*models.FeatureAssignment, error)
	ListAssignmentsByPerson(ctx context.Context, personID int64, featureType models.FeatureType) ([]models.FeatureAssignmentDetail, error)
	ValidAssignmentsFor(ctx context.Context, featureIDs []int64, day time.Time) ([]models.FeatureAssignment, error)
	CreateAssignment(ctx context.Context, a *models.FeatureAssignment) error
	UpdateAssignment(ctx context.Context, a *models.FeatureAssignment) error
	DeleteAssignment(ctx context.Context, id int64) error
	ListExpiring(ctx context.Context, until time.Time) ([]models.FeatureAssignmentDetail, error)
	MarkExpiryEmailSent(ctx context.Context, id int64) (bool, error)
}

type featureLedger interface {
	ledgerRepository
	FindByAssignment(ctx context.Context, assignmentID int64) (*models.Transaction, error)
}

type featurePersonLookup interface {
	FindByID(ctx context.Context, id int64) (*models.Person, error)
	FindByIDs(ctx context.Context, ids []int64) ([]models.Person, error)
}

type recipientResolver interface {
	HolderEmails(ctx context.Context, codename string) ([]string, error)
}

// FeatureConfig tunes dates derived by the feature registry.
type FeatureConfig struct {
	Location          *time.Location
	ExpiryNoticeHours int
	FeeDueDays        int
}

// FeatureAssignmentResult is an assignment with its fee debt, if any.
type FeatureAssignmentResult struct {
	Assignment  *models.FeatureAssignment `json:"assignment"`
	Transaction *models.Transaction       `json:"transaction,omitempty"`
}

// FeatureService manages the feature forest and who holds which feature.
type FeatureService struct {
	repo       featureRepository
	ledger     featureLedger
	persons    featurePersonLookup
	tx         txRunner
	notifier   Notifier
	recipients recipientResolver
	validator  *validator.Validate
	logger     *zap.Logger
	config     FeatureConfig
	clock      Clock
	cache      ledgerCache
}

// NewFeatureService creates an instance of FeatureService.
func NewFeatureService(repo featureRepository, ledger featureLedger, persons featurePersonLookup, tx txRunner, notifier Notifier, recipients recipientResolver, validate *validator.Validate, logger *zap.Logger, config FeatureConfig) *FeatureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.FeeDueDays <= 0 {
		config.FeeDueDays = 14
	}
	return &FeatureService{
		repo:       repo,
		ledger:     ledger,
		persons:    persons,
		tx:         tx,
		notifier:   notifier,
		recipients: recipients,
		validator:  validate,
		logger:     logger,
		config:     config,
		clock:      systemClock,
	}
}

// WithClock overrides the time source.
func (s *FeatureService) WithClock(clock Clock) *FeatureService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithLedgerCache makes fee changes drop cached ledger aggregates.
func (s *FeatureService) WithLedgerCache(cache ledgerCache) *FeatureService {
	s.cache = cache
	return s
}

func (s *FeatureService) today() time.Time {
	return dateOnly(s.clock(), s.config.Location)
}

// List returns the features of one type, or all when featureType is empty.
func (s *FeatureService) List(ctx context.Context, featureType models.FeatureType) ([]models.Feature, error) {
	if featureType != "" && !featureType.Valid() {
		return nil, appErrors.Invalid("feature_type", "unknown feature type")
	}
	features, err := s.repo.List(ctx, featureType)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list features")
	}
	return features, nil
}

// Get returns a feature by ID.
func (s *FeatureService) Get(ctx context.Context, id int64) (*models.Feature, error) {
	feature, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "feature not found", "failed to load feature")
	}
	return feature, nil
}

// Create adds a feature node.
func (s *FeatureService) Create(ctx context.Context, req models.FeatureRequest) (*models.Feature, error) {
	feature, err := s.buildFeature(ctx, 0, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, feature); err != nil {
		return nil, repoError(err, "feature not found", "failed to create feature")
	}
	return feature, nil
}

// Update edits a feature; the type of an existing feature cannot change.
func (s *FeatureService) Update(ctx context.Context, id int64, req models.FeatureRequest) (*models.Feature, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.FeatureType != existing.FeatureType {
		return nil, appErrors.Invalid("feature_type", "feature type cannot change")
	}
	feature, err := s.buildFeature(ctx, id, req)
	if err != nil {
		return nil, err
	}
	feature.ID = id
	if err := s.repo.Update(ctx, feature); err != nil {
		return nil, repoError(err, "feature not found", "failed to update feature")
	}
	return feature, nil
}

func (s *FeatureService) buildFeature(ctx context.Context, id int64, req models.FeatureRequest) (*models.Feature, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid feature payload")
	}
	if req.ParentID != nil {
		parent, err := s.repo.FindByID(ctx, *req.ParentID)
		if err != nil {
			return nil, referenceError(err, "parent_id", "unknown parent feature")
		}
		if parent.FeatureType != req.FeatureType {
			return nil, appErrors.Invalid("parent_id", "parent feature has a different type")
		}
		if id != 0 {
			ancestors, err := s.repo.Ancestors(ctx, parent.ID)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to load feature ancestors")
			}
			if parent.ID == id || containsID(ancestors, id) {
				return nil, appErrors.Invalid("parent_id", "feature cannot be nested under itself")
			}
		}
	}

	feature := &models.Feature{
		FeatureType: req.FeatureType,
		ParentID:    req.ParentID,
		Name:        strings.TrimSpace(req.Name),
		Assignable:  req.Assignable,
	}
	if !req.Assignable {
		if req.NeverExpires != nil || req.Fee != nil || req.CollectIssuers != nil || req.CollectCodes != nil {
			return nil, appErrors.Invalid("assignable", "category nodes carry no assignment settings")
		}
		return feature, nil
	}

	feature.NeverExpires = boolOrFalse(req.NeverExpires)
	if req.Fee != nil && req.FeatureType != models.FeatureTypeEquipment {
		return nil, appErrors.Invalid("fee", "only equipment carries a fee")
	}
	if req.CollectIssuers != nil && *req.CollectIssuers && req.FeatureType != models.FeatureTypeQualification {
		return nil, appErrors.Invalid("collect_issuers", "only qualifications have issuers")
	}
	if req.CollectCodes != nil && *req.CollectCodes && req.FeatureType == models.FeatureTypePermission {
		return nil, appErrors.Invalid("collect_codes", "permissions carry no codes")
	}
	feature.Fee = req.Fee
	switch req.FeatureType {
	case models.FeatureTypeQualification:
		feature.CollectIssuers = boolOrFalse(req.CollectIssuers)
		feature.CollectCodes = boolOrFalse(req.CollectCodes)
	case models.FeatureTypeEquipment:
		feature.CollectCodes = boolOrFalse(req.CollectCodes)
	}
	return feature, nil
}

// Delete removes a feature with its subtree and assignments. Unsettled fee
// debts of the removed assignments are cancelled; settled ones stay.
func (s *FeatureService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	var owners []int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ids, err := s.repo.AssignmentIDsInSubtree(ctx, id)
		if err != nil {
			return appErrors.Internal(err, "failed to load assignments")
		}
		for _, assignmentID := range ids {
			t, err := s.linkedDebt(ctx, assignmentID)
			if err != nil {
				return err
			}
			if t != nil {
				owners = append(owners, t.PersonID)
			}
			if err := dropUnsettled(ctx, s.ledger, t); err != nil {
				return err
			}
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return repoError(err, "feature not found", "failed to delete feature")
		}
		return nil
	})
	if err != nil {
		return err
	}
	invalidateLedger(ctx, s.cache, owners...)
	s.logger.Info("feature deleted", zap.Int64("feature_id", id), zap.Int("debts_touched", len(owners)))
	return nil
}

// Assignments lists the features a person holds, optionally of one type.
func (s *FeatureService) Assignments(ctx context.Context, personID int64, featureType models.FeatureType) ([]models.FeatureAssignmentDetail, error) {
	items, err := s.repo.ListAssignmentsByPerson(ctx, personID, featureType)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list feature assignments")
	}
	return items, nil
}

// GetAssignment returns an assignment by ID.
func (s *FeatureService) GetAssignment(ctx context.Context, id int64) (*models.FeatureAssignment, error) {
	a, err := s.repo.FindAssignment(ctx, id)
	if err != nil {
		return nil, repoError(err, "feature assignment not found", "failed to load feature assignment")
	}
	return a, nil
}

// Assign gives a feature to a person. Equipment with a nonzero fee creates
// a pending debt linked to the assignment.
func (s *FeatureService) Assign(ctx context.Context, principal *models.Principal, personID int64, req models.FeatureAssignmentRequest) (*FeatureAssignmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid feature assignment payload")
	}
	feature, err := s.assignableFeature(ctx, principal, req.FeatureID)
	if err != nil {
		return nil, err
	}
	person, err := s.persons.FindByID(ctx, personID)
	if err != nil {
		return nil, repoError(err, "person not found", "failed to load person")
	}
	assignment, err := s.buildAssignment(feature, req)
	if err != nil {
		return nil, err
	}
	assignment.PersonID = personID

	fee := 0
	if feature.FeatureType == models.FeatureTypeEquipment {
		if req.Fee != nil {
			fee = *req.Fee
		} else if feature.Fee != nil {
			fee = *feature.Fee
		}
	}

	result := &FeatureAssignmentResult{Assignment: assignment}
	box := &outbox{}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateAssignment(ctx, assignment); err != nil {
			return repoError(err, "feature assignment not found", "failed to assign feature")
		}
		debt, err := syncDebt(ctx, s.ledger, nil, fee, s.feeDraft(*person, *feature, assignment, req.DueDate, nil))
		if err != nil {
			return err
		}
		result.Transaction = debt
		box.add(featureAssignedMessage(emailsOf(*person), *person, *feature, *assignment))
		return nil
	})
	if err != nil {
		return nil, err
	}
	box.flush(ctx, s.notifier)
	invalidateLedger(ctx, s.cache, personID)
	s.logger.Info("feature assigned",
		zap.Int64("assignment_id", assignment.ID),
		zap.Int64("person_id", personID),
		zap.Int64("feature_id", feature.ID),
		zap.Int("fee", fee))
	return result, nil
}

// UpdateAssignment edits dates, issuer, code and the equipment fee. An
// omitted fee keeps the current debt; zero cancels it.
func (s *FeatureService) UpdateAssignment(ctx context.Context, principal *models.Principal, id int64, req models.FeatureAssignmentRequest) (*FeatureAssignmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid feature assignment payload")
	}
	existing, err := s.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.FeatureID != existing.FeatureID {
		return nil, appErrors.Invalid("feature_id", "assigned feature cannot change")
	}
	feature, err := s.assignableFeature(ctx, principal, existing.FeatureID)
	if err != nil {
		return nil, err
	}
	person, err := s.persons.FindByID(ctx, existing.PersonID)
	if err != nil {
		return nil, repoError(err, "person not found", "failed to load person")
	}
	assignment, err := s.buildAssignment(feature, req)
	if err != nil {
		return nil, err
	}
	assignment.ID = existing.ID
	assignment.PersonID = existing.PersonID
	assignment.ExpiryEmailSent = existing.ExpiryEmailSent && sameDay(existing.DateExpire, assignment.DateExpire)

	result := &FeatureAssignmentResult{Assignment: assignment}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.linkedDebt(ctx, id)
		if err != nil {
			return err
		}
		if feature.FeatureType == models.FeatureTypeEquipment {
			fee := 0
			switch {
			case req.Fee != nil:
				fee = *req.Fee
			case current != nil:
				fee = current.AbsAmount()
			}
			debt, err := syncDebt(ctx, s.ledger, current, fee, s.feeDraft(*person, *feature, assignment, req.DueDate, current))
			if err != nil {
				return err
			}
			result.Transaction = debt
		}
		if err := s.repo.UpdateAssignment(ctx, assignment); err != nil {
			return repoError(err, "feature assignment not found", "failed to update feature assignment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	invalidateLedger(ctx, s.cache, existing.PersonID)
	return result, nil
}

// ReturnEquipment records that lent equipment came back; the default date
// is today.
func (s *FeatureService) ReturnEquipment(ctx context.Context, principal *models.Principal, id int64, returned *models.Date) (*models.FeatureAssignment, error) {
	existing, err := s.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	feature, err := s.assignableFeature(ctx, principal, existing.FeatureID)
	if err != nil {
		return nil, err
	}
	if feature.FeatureType != models.FeatureTypeEquipment {
		return nil, appErrors.Invalid("date_returned", "only equipment can be returned")
	}
	if existing.DateReturned != nil {
		return nil, stateConflict("equipment was already returned")
	}
	day := s.today()
	if returned != nil && !returned.IsZero() {
		day = models.DateOnly(returned.Time)
	}
	if day.Before(models.DateOnly(existing.DateAssigned)) {
		return nil, appErrors.Invalid("date_returned", "return date precedes the assignment")
	}
	existing.DateReturned = &day
	if err := s.repo.UpdateAssignment(ctx, existing); err != nil {
		return nil, repoError(err, "feature assignment not found", "failed to update feature assignment")
	}
	return existing, nil
}

// DeleteAssignment removes an assignment and cancels its unsettled debt.
func (s *FeatureService) DeleteAssignment(ctx context.Context, principal *models.Principal, id int64) error {
	existing, err := s.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.assignableFeature(ctx, principal, existing.FeatureID); err != nil {
		return err
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.linkedDebt(ctx, id)
		if err != nil {
			return err
		}
		if err := dropUnsettled(ctx, s.ledger, current); err != nil {
			return err
		}
		if err := s.repo.DeleteAssignment(ctx, id); err != nil {
			return repoError(err, "feature assignment not found", "failed to delete feature assignment")
		}
		return nil
	})
	if err != nil {
		return err
	}
	invalidateLedger(ctx, s.cache, existing.PersonID)
	return nil
}

// Matrix returns the persons × features grid of assignments valid today
// within the subtree rooted at rootID, restricted to persons the caller may
// see.
func (s *FeatureService) Matrix(ctx context.Context, principal *models.Principal, rootID int64) (*models.FeatureMatrix, error) {
	subtree, err := s.repo.Subtree(ctx, rootID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load feature subtree")
	}
	if len(subtree) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "feature not found")
	}
	features := make([]models.Feature, 0, len(subtree))
	ids := make([]int64, 0, len(subtree))
	for _, f := range subtree {
		if f.Assignable {
			features = append(features, f)
			ids = append(ids, f.ID)
		}
	}
	matrix := &models.FeatureMatrix{
		Features: features,
		Persons:  []models.Person{},
		Cells:    map[int64]map[int64]int64{},
	}
	if len(ids) == 0 {
		return matrix, nil
	}
	assignments, err := s.repo.ValidAssignmentsFor(ctx, ids, s.today())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load feature assignments")
	}
	personIDs := make([]int64, 0, len(assignments))
	for _, a := range assignments {
		personIDs = append(personIDs, a.PersonID)
	}
	persons, err := s.persons.FindByIDs(ctx, uniqueIDs(personIDs))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load persons")
	}
	visible := map[int64]bool{}
	for _, p := range persons {
		if permissions.CanViewPerson(principal, &p) {
			visible[p.ID] = true
			matrix.Persons = append(matrix.Persons, p)
		}
	}
	for _, a := range assignments {
		if !visible[a.PersonID] {
			continue
		}
		if matrix.Cells[a.PersonID] == nil {
			matrix.Cells[a.PersonID] = map[int64]int64{}
		}
		matrix.Cells[a.PersonID][a.FeatureID] = a.ID
	}
	return matrix, nil
}

// SendExpiryNotices emails the holder of every assignment expiring within
// the notice window. Each assignment is latched before its message is
// queued so a rerun never repeats a notice.
func (s *FeatureService) SendExpiryNotices(ctx context.Context) (int, error) {
	until := s.clock().In(s.config.Location).Add(time.Duration(s.config.ExpiryNoticeHours) * time.Hour)
	expiring, err := s.repo.ListExpiring(ctx, models.DateOnly(until))
	if err != nil {
		return 0, appErrors.Internal(err, "failed to list expiring assignments")
	}
	sent := 0
	for _, d := range expiring {
		latched, err := s.repo.MarkExpiryEmailSent(ctx, d.ID)
		if err != nil {
			return sent, appErrors.Internal(err, "failed to latch expiry notice")
		}
		if !latched {
			continue
		}
		to := []string{}
		if d.Email != nil {
			to = append(to, *d.Email)
		}
		if len(to) == 0 && s.recipients != nil {
			holders, err := s.recipients.HolderEmails(ctx, permissions.ForFeatureType(d.FeatureType))
			if err != nil {
				s.logger.Warn("failed to resolve feature administrators", zap.Error(err))
			}
			to = holders
		}
		s.notifier.Notify(ctx, featureExpiryMessage(to, d))
		sent++
	}
	s.logger.Info("feature expiry notices sent", zap.Int("count", sent), zap.Int("candidates", len(expiring)))
	return sent, nil
}

func (s *FeatureService) assignableFeature(ctx context.Context, principal *models.Principal, featureID int64) (*models.Feature, error) {
	feature, err := s.repo.FindByID(ctx, featureID)
	if err != nil {
		return nil, referenceError(err, "feature_id", "unknown feature")
	}
	if !feature.Assignable {
		return nil, appErrors.Invalid("feature_id", "feature is a category and cannot be assigned")
	}
	if principal != nil && !permissions.CanManageFeature(principal, feature) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "")
	}
	return feature, nil
}

func (s *FeatureService) buildAssignment(feature *models.Feature, req models.FeatureAssignmentRequest) (*models.FeatureAssignment, error) {
	if req.DateAssigned.IsZero() {
		return nil, appErrors.Invalid("date_assigned", "assignment date is required")
	}
	a := &models.FeatureAssignment{
		FeatureID:    feature.ID,
		DateAssigned: models.DateOnly(req.DateAssigned.Time),
		Issuer:       trimmed(req.Issuer),
		Code:         trimmed(req.Code),
	}
	switch {
	case feature.Expires() && req.DateExpire == nil:
		return nil, appErrors.Invalid("date_expire", "expiry date is required")
	case !feature.Expires() && req.DateExpire != nil:
		return nil, appErrors.Invalid("date_expire", "feature never expires")
	case req.DateExpire != nil:
		expire := models.DateOnly(req.DateExpire.Time)
		if expire.Before(a.DateAssigned) {
			return nil, appErrors.Invalid("date_expire", "expiry precedes the assignment")
		}
		a.DateExpire = &expire
	}
	if req.DateReturned != nil {
		if feature.FeatureType != models.FeatureTypeEquipment {
			return nil, appErrors.Invalid("date_returned", "only equipment can be returned")
		}
		returned := models.DateOnly(req.DateReturned.Time)
		if returned.Before(a.DateAssigned) {
			return nil, appErrors.Invalid("date_returned", "return date precedes the assignment")
		}
		a.DateReturned = &returned
	}
	if a.Issuer != nil && !flag(feature.CollectIssuers) {
		return nil, appErrors.Invalid("issuer", "feature does not record issuers")
	}
	if a.Code != nil && !flag(feature.CollectCodes) {
		return nil, appErrors.Invalid("code", "feature does not record codes")
	}
	if feature.FeatureType != models.FeatureTypeEquipment && (req.Fee != nil || req.DueDate != nil) {
		return nil, appErrors.Invalid("fee", "only equipment carries a fee")
	}
	return a, nil
}

func (s *FeatureService) feeDraft(person models.Person, feature models.Feature, a *models.FeatureAssignment, due *models.Date, current *models.Transaction) models.Transaction {
	dateDue := dueIn(s.clock(), s.config.Location, s.config.FeeDueDays)
	switch {
	case due != nil && !due.IsZero():
		dateDue = models.DateOnly(due.Time)
	case current != nil:
		dateDue = current.DateDue
	}
	return models.Transaction{
		PersonID:            person.ID,
		Reason:              fmt.Sprintf("Poplatek za %s %s", models.FeatureTypeTexts[feature.FeatureType].Singular, feature.Name),
		DateDue:             dateDue,
		FeatureAssignmentID: int64Ptr(a.ID),
		UpdatedAt:           s.clock(),
	}
}

func (s *FeatureService) linkedDebt(ctx context.Context, assignmentID int64) (*models.Transaction, error) {
	t, err := s.ledger.FindByAssignment(ctx, assignmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load transaction")
	}
	return t, nil
}

func boolOrFalse(v *bool) *bool {
	b := v != nil && *v
	return &b
}

func flag(v *bool) bool { return v != nil && *v }

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return models.DateOnly(*a).Equal(models.DateOnly(*b))
}
