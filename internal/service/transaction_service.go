package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/permissions"
	"github.com/noah-isme/vzs-club-api/pkg/config"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

// ledgerRepository is the write side shared by every service that owns
// transactions: fees, wages and manual entries.
type ledgerRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Transaction, error)
	Create(ctx context.Context, t *models.Transaction) error
	Update(ctx context.Context, t *models.Transaction) error
	Delete(ctx context.Context, id int64) error
}

type transactionRepository interface {
	ledgerRepository
	List(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionDetail, int, error)
	Summary(ctx context.Context, personID int64) (*models.LedgerSummary, error)
}

type transactionPersonLookup interface {
	FindByID(ctx context.Context, id int64) (*models.Person, error)
}

// ledgerCache drops cached aggregates after another service changed a ledger.
type ledgerCache interface {
	Invalidate(ctx context.Context, personIDs ...int64)
}

func invalidateLedger(ctx context.Context, cache ledgerCache, personIDs ...int64) {
	if cache != nil && len(personIDs) > 0 {
		cache.Invalidate(ctx, personIDs...)
	}
}

var errSettled = appErrors.Clone(appErrors.ErrStateConflict, "transaction is already settled")

func ledgerKey(personID int64) string {
	return fmt.Sprintf("ledger:summary:%d", personID)
}

// syncDebt keeps the debt linked to a fee in step with it. A zero fee
// removes the debt; a settled debt may not change amount or due date.
func syncDebt(ctx context.Context, repo ledgerRepository, current *models.Transaction, fee int, draft models.Transaction) (*models.Transaction, error) {
	if current != nil && current.IsSettled() {
		if current.Amount != -fee || !current.DateDue.Equal(draft.DateDue) {
			return nil, errSettled
		}
		return current, nil
	}
	switch {
	case current == nil && fee == 0:
		return nil, nil
	case current == nil:
		draft.Amount = -fee
		if err := repo.Create(ctx, &draft); err != nil {
			return nil, repoError(err, "transaction not found", "failed to create transaction")
		}
		return &draft, nil
	case fee == 0:
		if err := repo.Delete(ctx, current.ID); err != nil {
			return nil, repoError(err, "transaction not found", "failed to delete transaction")
		}
		return nil, nil
	default:
		updated := *current
		updated.Amount = -fee
		updated.DateDue = draft.DateDue
		updated.Reason = draft.Reason
		updated.UpdatedAt = draft.UpdatedAt
		if err := repo.Update(ctx, &updated); err != nil {
			return nil, repoError(err, "transaction not found", "failed to update transaction")
		}
		return &updated, nil
	}
}

// dropUnsettled removes a linked transaction unless it has been settled.
func dropUnsettled(ctx context.Context, repo ledgerRepository, t *models.Transaction) error {
	if t == nil || t.IsSettled() {
		return nil
	}
	if err := repo.Delete(ctx, t.ID); err != nil {
		return repoError(err, "transaction not found", "failed to delete transaction")
	}
	return nil
}

// TransactionService is the ledger: manual transactions, aggregates and
// payment descriptors.
type TransactionService struct {
	repo      transactionRepository
	persons   transactionPersonLookup
	cache     *CacheService
	fio       config.FioConfig
	validator *validator.Validate
	logger    *zap.Logger
	clock     Clock
}

// NewTransactionService creates an instance of TransactionService. cache may
// be nil.
func NewTransactionService(repo transactionRepository, persons transactionPersonLookup, cache *CacheService, fio config.FioConfig, validate *validator.Validate, logger *zap.Logger) *TransactionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TransactionService{
		repo:      repo,
		persons:   persons,
		cache:     cache,
		fio:       fio,
		validator: validate,
		logger:    logger,
		clock:     systemClock,
	}
}

// WithClock overrides the time source.
func (s *TransactionService) WithClock(clock Clock) *TransactionService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// List returns ledger entries. Callers without the ledger permission only
// see transactions of the persons they manage and must name one.
func (s *TransactionService) List(ctx context.Context, principal *models.Principal, filter models.TransactionFilter) ([]models.TransactionDetail, *models.Pagination, error) {
	if err := s.scope(principal, &filter); err != nil {
		return nil, nil, err
	}
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list transactions")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// All returns every entry matching the filter without paging, for exports.
func (s *TransactionService) All(ctx context.Context, principal *models.Principal, filter models.TransactionFilter) ([]models.TransactionDetail, error) {
	if err := s.scope(principal, &filter); err != nil {
		return nil, err
	}
	filter.Page, filter.PageSize = 0, -1
	items, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list transactions")
	}
	return items, nil
}

func (s *TransactionService) scope(principal *models.Principal, filter *models.TransactionFilter) error {
	switch filter.State {
	case "", models.TransactionStateAll, models.TransactionStateSettled, models.TransactionStateDue:
	default:
		return appErrors.Invalid("state", "unknown transaction state")
	}
	switch filter.Kind {
	case "", models.TransactionDebt, models.TransactionReward:
	default:
		return appErrors.Invalid("kind", "unknown transaction kind")
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return appErrors.Invalid("category", "unknown event category")
	}
	if principal.User.HasPermission(permissions.Transactions) {
		return nil
	}
	if filter.PersonID == nil {
		if principal.ActivePerson == nil {
			return appErrors.Clone(appErrors.ErrForbidden, "")
		}
		filter.PersonID = int64Ptr(principal.ActivePerson.ID)
	}
	if !principal.Manages(*filter.PersonID) {
		return appErrors.Clone(appErrors.ErrForbidden, "")
	}
	return nil
}

// Get returns a transaction by ID.
func (s *TransactionService) Get(ctx context.Context, id int64) (*models.Transaction, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "transaction not found", "failed to load transaction")
	}
	return t, nil
}

// Create records a manual transaction.
func (s *TransactionService) Create(ctx context.Context, req models.TransactionRequest) (*models.Transaction, error) {
	t, err := s.buildTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, repoError(err, "transaction not found", "failed to create transaction")
	}
	s.cache.Invalidate(ctx, ledgerKey(t.PersonID))
	s.logger.Info("transaction created", zap.Int64("transaction_id", t.ID), zap.Int64("person_id", t.PersonID), zap.Int("amount", t.Amount))
	return t, nil
}

// Update edits an unsettled transaction. Resubmitting the stored values of a
// settled one is a no-op; any change to it is a state conflict. A request
// without event_id keeps the stored event link.
func (s *TransactionService) Update(ctx context.Context, id int64, req models.TransactionRequest) (*models.Transaction, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.buildTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	if existing.IsSettled() {
		if t.Amount != existing.Amount || !t.DateDue.Equal(existing.DateDue) || t.PersonID != existing.PersonID || t.Reason != existing.Reason {
			return nil, errSettled
		}
		return existing, nil
	}
	t.ID = existing.ID
	if t.EventID == nil {
		t.EventID = existing.EventID
	}
	t.FeatureAssignmentID = existing.FeatureAssignmentID
	t.EnrollmentID = existing.EnrollmentID
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, repoError(err, "transaction not found", "failed to update transaction")
	}
	s.cache.Invalidate(ctx, ledgerKey(existing.PersonID), ledgerKey(t.PersonID))
	return t, nil
}

// Delete removes an unsettled transaction.
func (s *TransactionService) Delete(ctx context.Context, id int64) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.IsSettled() {
		return errSettled
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return repoError(err, "transaction not found", "failed to delete transaction")
	}
	s.cache.Invalidate(ctx, ledgerKey(existing.PersonID))
	return nil
}

func (s *TransactionService) buildTransaction(ctx context.Context, req models.TransactionRequest) (*models.Transaction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid transaction payload")
	}
	if req.DateDue.IsZero() {
		return nil, appErrors.Invalid("date_due", "due date is required")
	}
	if _, err := s.persons.FindByID(ctx, req.PersonID); err != nil {
		return nil, referenceError(err, "person_id", "unknown person")
	}
	return &models.Transaction{
		PersonID:  req.PersonID,
		Amount:    req.Amount,
		Reason:    strings.TrimSpace(req.Reason),
		DateDue:   models.DateOnly(req.DateDue.Time),
		EventID:   req.EventID,
		UpdatedAt: s.clock(),
	}, nil
}

// Summary returns the person's debt and reward totals, cached per person.
func (s *TransactionService) Summary(ctx context.Context, personID int64) (*models.LedgerSummary, error) {
	var cached models.LedgerSummary
	if s.cache.Get(ctx, ledgerKey(personID), &cached) {
		return &cached, nil
	}
	summary, err := s.repo.Summary(ctx, personID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to summarize ledger")
	}
	summary.PersonID = personID
	s.cache.Set(ctx, ledgerKey(personID), summary)
	return summary, nil
}

// Invalidate drops cached aggregates of persons whose ledger changed outside
// this service.
func (s *TransactionService) Invalidate(ctx context.Context, personIDs ...int64) {
	keys := make([]string, 0, len(personIDs))
	for _, id := range uniqueIDs(personIDs) {
		keys = append(keys, ledgerKey(id))
	}
	s.cache.Invalidate(ctx, keys...)
}

// PaymentDescriptor describes how to pay a debt by bank transfer.
func (s *TransactionService) PaymentDescriptor(ctx context.Context, id int64) (*models.PaymentDescriptor, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsDebt() {
		return nil, stateConflict("rewards are paid out by the club")
	}
	if t.IsSettled() {
		return nil, stateConflict("transaction is already settled")
	}
	d := models.NewPaymentDescriptor(*t, s.fio.AccountNumber, s.fio.BankCode)
	return &d, nil
}

// dueIn returns the calendar day n days after now in loc.
func dueIn(now time.Time, loc *time.Location, days int) time.Time {
	return dateOnly(now, loc).AddDate(0, 0, days)
}
