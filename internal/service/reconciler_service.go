package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/permissions"
	"github.com/noah-isme/vzs-club-api/internal/repository"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
	"github.com/noah-isme/vzs-club-api/pkg/fio"
)

// Outcomes of a single bank movement, used as metric labels.
const (
	ReconcileSettled   = "settled"
	ReconcileReplayed  = "replayed"
	ReconcileIgnored   = "ignored"
	ReconcileUnknown   = "unknown"
	ReconcileDuplicate = "duplicate"
	ReconcileMismatch  = "mismatch"
)

type statementSource interface {
	Statement(ctx context.Context, from, to time.Time) ([]fio.Entry, error)
}

type fioStore interface {
	FindByFioID(ctx context.Context, fioID int64) (*models.FioTransaction, error)
	Create(ctx context.Context, txn *models.FioTransaction) error
	Settings(ctx context.Context) (*models.FioSettings, error)
	AdvanceFetchTime(ctx context.Context, at time.Time) error
}

type settlementLedger interface {
	FindByID(ctx context.Context, id int64) (*models.Transaction, error)
	LinkFio(ctx context.Context, id, fioTransactionID int64) error
}

// ReconcileResult summarizes one run of the reconciler.
type ReconcileResult struct {
	From     time.Time      `json:"from"`
	To       time.Time      `json:"to"`
	Entries  int            `json:"entries"`
	Outcomes map[string]int `json:"outcomes"`
}

// ReconcilerService settles debts with incoming payments from the club's
// bank account. The variable symbol of a payment is the id of the
// transaction it pays.
type ReconcilerService struct {
	source      statementSource
	fio         fioStore
	ledger      settlementLedger
	tx          txRunner
	notifier    Notifier
	recipients  recipientResolver
	cache       ledgerCache
	metrics     *MetricsService
	logger      *zap.Logger
	clock       Clock
	defaultDays int
}

// NewReconcilerService creates an instance of ReconcilerService.
func NewReconcilerService(source statementSource, fioRepo fioStore, ledger settlementLedger, tx txRunner, notifier Notifier, recipients recipientResolver, defaultDays int, logger *zap.Logger) *ReconcilerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultDays <= 0 {
		defaultDays = 7
	}
	return &ReconcilerService{
		source:      source,
		fio:         fioRepo,
		ledger:      ledger,
		tx:          tx,
		notifier:    notifier,
		recipients:  recipients,
		logger:      logger,
		clock:       systemClock,
		defaultDays: defaultDays,
	}
}

// WithClock overrides the time source.
func (s *ReconcilerService) WithClock(clock Clock) *ReconcilerService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithLedgerCache drops cached aggregates of persons whose debts got settled.
func (s *ReconcilerService) WithLedgerCache(cache ledgerCache) *ReconcilerService {
	s.cache = cache
	return s
}

// WithMetrics counts processed movements per outcome.
func (s *ReconcilerService) WithMetrics(metrics *MetricsService) *ReconcilerService {
	s.metrics = metrics
	return s
}

// Run fetches movements since the last successful run, or the last days
// when there was none (days <= 0 picks the configured default), and settles
// the matching debts. A throttled request leaves the watermark untouched.
func (s *ReconcilerService) Run(ctx context.Context, days int) (*ReconcileResult, error) {
	if days <= 0 {
		days = s.defaultDays
	}
	settings, err := s.fio.Settings(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to load reconciliation progress")
	}
	to := s.clock()
	from := to.AddDate(0, 0, -days)
	if settings != nil && settings.LastFioFetchTime != nil {
		from = *settings.LastFioFetchTime
	}

	entries, err := s.source.Statement(ctx, from, to)
	if errors.Is(err, fio.ErrThrottled) {
		s.logger.Warn("bank statement request throttled", zap.Time("from", from))
		return nil, appErrors.Wrap(err, appErrors.ErrThrottled.Code, appErrors.ErrThrottled.Status, appErrors.ErrThrottled.Message)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTransport.Code, appErrors.ErrTransport.Status, "failed to fetch bank statement")
	}

	result := &ReconcileResult{From: from, To: to, Entries: len(entries), Outcomes: map[string]int{}}
	box := &outbox{}
	var owners []int64
	for _, entry := range entries {
		var (
			outcome string
			owner   int64
		)
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			var err error
			outcome, owner, err = s.settle(ctx, entry, box)
			return err
		})
		if err != nil {
			return nil, err
		}
		result.Outcomes[outcome]++
		s.metrics.RecordReconcilerEntry(outcome)
		if outcome == ReconcileSettled {
			owners = append(owners, owner)
		}
	}

	if err := s.fio.AdvanceFetchTime(ctx, to); err != nil {
		return nil, appErrors.Internal(err, "failed to store reconciliation progress")
	}
	box.flush(ctx, s.notifier)
	invalidateLedger(ctx, s.cache, owners...)
	s.logger.Info("bank statement reconciled",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("entries", len(entries)),
		zap.Int("settled", result.Outcomes[ReconcileSettled]))
	return result, nil
}

// settle applies one movement and reports what happened to it.
func (s *ReconcilerService) settle(ctx context.Context, entry fio.Entry, box *outbox) (string, int64, error) {
	id, ok := variableSymbol(entry)
	if !ok {
		return ReconcileIgnored, 0, nil
	}
	t, err := s.ledger.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ReconcileUnknown, 0, nil
	}
	if err != nil {
		return "", 0, appErrors.Internal(err, "failed to load transaction")
	}

	existing, err := s.fio.FindByFioID(ctx, entry.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", 0, appErrors.Internal(err, "failed to load bank movement")
	}

	if t.FioTransactionID != nil {
		if existing != nil && existing.ID == *t.FioTransactionID {
			return ReconcileReplayed, t.PersonID, nil
		}
		s.logger.Warn("variable symbol paid twice", zap.Int64("transaction_id", t.ID), zap.Int64("fio_id", entry.ID))
		box.add(duplicateSymbolMessage(s.accountants(ctx), *t, entry))
		return ReconcileDuplicate, t.PersonID, nil
	}
	if float64(t.AbsAmount()) != entry.Amount {
		s.logger.Warn("payment amount mismatch",
			zap.Int64("transaction_id", t.ID),
			zap.Int("expected", t.AbsAmount()),
			zap.Float64("received", entry.Amount))
		box.add(amountMismatchMessage(s.accountants(ctx), *t, entry))
		return ReconcileMismatch, t.PersonID, nil
	}

	if existing == nil {
		existing = &models.FioTransaction{FioID: entry.ID, Date: entry.Date}
		if err := s.fio.Create(ctx, existing); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return "", 0, appErrors.Clone(appErrors.ErrConflict, "bank movement recorded concurrently")
			}
			return "", 0, appErrors.Internal(err, "failed to record bank movement")
		}
	}
	if err := s.ledger.LinkFio(ctx, t.ID, existing.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ReconcileReplayed, t.PersonID, nil
		}
		return "", 0, appErrors.Internal(err, "failed to settle transaction")
	}
	return ReconcileSettled, t.PersonID, nil
}

func (s *ReconcilerService) accountants(ctx context.Context) []string {
	if s.recipients == nil {
		return nil
	}
	emails, err := s.recipients.HolderEmails(ctx, permissions.Transactions)
	if err != nil {
		s.logger.Warn("failed to resolve accountants", zap.Error(err))
	}
	return emails
}

// variableSymbol returns the transaction id an incoming payment refers to.
// Outgoing movements and symbols with a leading zero are not ours.
func variableSymbol(entry fio.Entry) (int64, bool) {
	vs := entry.VariableSymbol
	if entry.Amount <= 0 || vs == "" || vs[0] < '1' || vs[0] > '9' {
		return 0, false
	}
	id, err := strconv.ParseInt(vs, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
