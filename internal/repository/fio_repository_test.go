package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

func TestFioSettingsAndAdvance(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFioRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT last_fio_fetch_time FROM fio_settings WHERE id = 1")).
		WillReturnRows(sqlmock.NewRows([]string{"last_fio_fetch_time"}).AddRow(nil))

	settings, err := repo.Settings(context.Background())
	require.NoError(t, err)
	assert.Nil(t, settings.LastFioFetchTime)

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE SET last_fio_fetch_time")).
		WithArgs(at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.AdvanceFetchTime(context.Background(), at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFioCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFioRepository(db)

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO fio_transactions (fio_id, date)")).
		WithArgs(int64(26000123), day).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	txn := &models.FioTransaction{FioID: 26000123, Date: day}
	require.NoError(t, repo.Create(context.Background(), txn))
	assert.Equal(t, int64(1), txn.ID)
}
