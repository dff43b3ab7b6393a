package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

const transactionColumns = `t.id, t.person_id, t.amount, t.reason, t.date_due, t.event_id, t.feature_assignment_id,
        t.enrollment_id, t.fio_transaction_id, f.date AS settled_date, t.updated_at`

const transactionFrom = ` FROM transactions t LEFT JOIN fio_transactions f ON f.id = t.fio_transaction_id`

// TransactionRepository persists ledger entries.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository constructs the repository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// FindByID returns one transaction with its settlement date.
func (r *TransactionRepository) FindByID(ctx context.Context, id int64) (*models.Transaction, error) {
	return r.findOne(ctx, "t.id = $1", id)
}

// FindByAssignment returns the fee transaction of a feature assignment.
func (r *TransactionRepository) FindByAssignment(ctx context.Context, assignmentID int64) (*models.Transaction, error) {
	return r.findOne(ctx, "t.feature_assignment_id = $1", assignmentID)
}

func (r *TransactionRepository) findOne(ctx context.Context, where string, arg interface{}) (*models.Transaction, error) {
	var txn models.Transaction
	query := `SELECT ` + transactionColumns + transactionFrom + ` WHERE ` + where + ` ORDER BY t.id LIMIT 1`
	if err := conn(ctx, r.db).GetContext(ctx, &txn, query, arg); err != nil {
		return nil, err
	}
	return &txn, nil
}

// ListByEnrollment returns the period fees attached to an enrollment.
func (r *TransactionRepository) ListByEnrollment(ctx context.Context, enrollmentID int64) ([]models.Transaction, error) {
	txns := []models.Transaction{}
	query := `SELECT ` + transactionColumns + transactionFrom + ` WHERE t.enrollment_id = $1 ORDER BY t.date_due, t.id`
	if err := conn(ctx, r.db).SelectContext(ctx, &txns, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment transactions: %w", err)
	}
	return txns, nil
}

// ListByEvent returns all transactions attached to an event.
func (r *TransactionRepository) ListByEvent(ctx context.Context, eventID int64) ([]models.Transaction, error) {
	txns := []models.Transaction{}
	query := `SELECT ` + transactionColumns + transactionFrom + ` WHERE t.event_id = $1 ORDER BY t.date_due, t.id`
	if err := conn(ctx, r.db).SelectContext(ctx, &txns, query, eventID); err != nil {
		return nil, fmt.Errorf("list event transactions: %w", err)
	}
	return txns, nil
}

// FindUnsettled returns a transaction only while it is not settled.
func (r *TransactionRepository) FindUnsettled(ctx context.Context, id int64) (*models.Transaction, error) {
	return r.findOne(ctx, "t.id = $1 AND t.fio_transaction_id IS NULL", id)
}

// List returns transactions with owner and event names. A negative page
// size disables paging.
func (r *TransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionDetail, int, error) {
	var (
		conditions []string
		args       []interface{}
	)
	switch filter.State {
	case models.TransactionStateSettled:
		conditions = append(conditions, "t.fio_transaction_id IS NOT NULL")
	case models.TransactionStateDue:
		conditions = append(conditions, "t.fio_transaction_id IS NULL")
	}
	switch filter.Kind {
	case models.TransactionDebt:
		conditions = append(conditions, "t.amount < 0")
	case models.TransactionReward:
		conditions = append(conditions, "t.amount > 0")
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("e.category = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("t.date_due >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("t.date_due <= $%d", len(args)))
	}
	if filter.PersonID != nil {
		args = append(args, *filter.PersonID)
		conditions = append(conditions, fmt.Sprintf("t.person_id = $%d", len(args)))
	}
	if filter.EventID != nil {
		args = append(args, *filter.EventID)
		conditions = append(conditions, fmt.Sprintf("t.event_id = $%d", len(args)))
	}
	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	joins := transactionFrom + ` JOIN persons p ON p.id = t.person_id LEFT JOIN events e ON e.id = t.event_id`

	limit := ""
	if filter.PageSize >= 0 {
		page, size := models.NormalizePage(filter.Page, filter.PageSize)
		limit = fmt.Sprintf(" LIMIT %d OFFSET %d", size, (page-1)*size)
	}
	query := fmt.Sprintf(`SELECT %s, p.first_name, p.last_name, e.name AS event_name%s%s
        ORDER BY t.date_due DESC, t.id DESC%s`, transactionColumns, joins, clause, limit)

	txns := []models.TransactionDetail{}
	if err := conn(ctx, r.db).SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	var total int
	if err := conn(ctx, r.db).GetContext(ctx, &total, "SELECT COUNT(*)"+joins+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	return txns, total, nil
}

// Summary aggregates the ledger of one person.
func (r *TransactionRepository) Summary(ctx context.Context, personID int64) (*models.LedgerSummary, error) {
	const query = `SELECT $1::bigint AS person_id,
        COALESCE(SUM(-amount) FILTER (WHERE amount < 0), 0) AS total_debt,
        COALESCE(SUM(amount) FILTER (WHERE amount > 0), 0) AS total_reward,
        COALESCE(SUM(-amount) FILTER (WHERE amount < 0 AND fio_transaction_id IS NULL), 0) AS due_debt,
        COALESCE(SUM(amount) FILTER (WHERE amount > 0 AND fio_transaction_id IS NULL), 0) AS due_reward
        FROM transactions WHERE person_id = $1`
	var summary models.LedgerSummary
	if err := conn(ctx, r.db).GetContext(ctx, &summary, query, personID); err != nil {
		return nil, fmt.Errorf("summarize transactions: %w", err)
	}
	return &summary, nil
}

// Create inserts a transaction.
func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	const query = `INSERT INTO transactions (person_id, amount, reason, date_due, event_id, feature_assignment_id,
        enrollment_id, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	if err := conn(ctx, r.db).QueryRowxContext(ctx, query,
		t.PersonID, t.Amount, t.Reason, t.DateDue, t.EventID, t.FeatureAssignmentID, t.EnrollmentID, t.UpdatedAt,
	).Scan(&t.ID); err != nil {
		return fmt.Errorf("create transaction: %w", mapError(err))
	}
	return nil
}

// Update overwrites an unsettled transaction. Settled rows are left alone
// and reported as sql.ErrNoRows.
func (r *TransactionRepository) Update(ctx context.Context, t *models.Transaction) error {
	const query = `UPDATE transactions SET person_id = $2, amount = $3, reason = $4, date_due = $5, event_id = $6,
        updated_at = $7 WHERE id = $1 AND fio_transaction_id IS NULL`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, t.ID, t.PersonID, t.Amount, t.Reason, t.DateDue, t.EventID, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return expectAffected(res)
}

// Delete removes an unsettled transaction.
func (r *TransactionRepository) Delete(ctx context.Context, id int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM transactions WHERE id = $1 AND fio_transaction_id IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return expectAffected(res)
}

// LinkFio settles a transaction with a bank movement.
func (r *TransactionRepository) LinkFio(ctx context.Context, id, fioTransactionID int64) error {
	const query = `UPDATE transactions SET fio_transaction_id = $2 WHERE id = $1 AND fio_transaction_id IS NULL`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, id, fioTransactionID)
	if err != nil {
		return fmt.Errorf("link fio transaction: %w", mapError(err))
	}
	return expectAffected(res)
}
