package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

// FioRepository persists reconciled bank movements and the fetch watermark.
type FioRepository struct {
	db *sqlx.DB
}

// NewFioRepository constructs the repository.
func NewFioRepository(db *sqlx.DB) *FioRepository {
	return &FioRepository{db: db}
}

// FindByFioID returns the movement recorded under the bank's id.
func (r *FioRepository) FindByFioID(ctx context.Context, fioID int64) (*models.FioTransaction, error) {
	var txn models.FioTransaction
	if err := conn(ctx, r.db).GetContext(ctx, &txn, `SELECT id, fio_id, date FROM fio_transactions WHERE fio_id = $1`, fioID); err != nil {
		return nil, err
	}
	return &txn, nil
}

// Create records a movement.
func (r *FioRepository) Create(ctx context.Context, txn *models.FioTransaction) error {
	const query = `INSERT INTO fio_transactions (fio_id, date) VALUES ($1, $2) RETURNING id`
	if err := conn(ctx, r.db).QueryRowxContext(ctx, query, txn.FioID, txn.Date).Scan(&txn.ID); err != nil {
		return fmt.Errorf("create fio transaction: %w", mapError(err))
	}
	return nil
}

// Settings returns the singleton settings row.
func (r *FioRepository) Settings(ctx context.Context) (*models.FioSettings, error) {
	var settings models.FioSettings
	if err := conn(ctx, r.db).GetContext(ctx, &settings, `SELECT last_fio_fetch_time FROM fio_settings WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("load fio settings: %w", err)
	}
	return &settings, nil
}

// AdvanceFetchTime stores the end of the last processed window.
func (r *FioRepository) AdvanceFetchTime(ctx context.Context, at time.Time) error {
	const query = `INSERT INTO fio_settings (id, last_fio_fetch_time) VALUES (1, $1)
        ON CONFLICT (id) DO UPDATE SET last_fio_fetch_time = EXCLUDED.last_fio_fetch_time`
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, at); err != nil {
		return fmt.Errorf("advance fio fetch time: %w", err)
	}
	return nil
}
