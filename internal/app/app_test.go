package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/pkg/config"
)

const outgoingStatement = `{
  "accountStatement": {
    "transactionList": {
      "transaction": [
        {
          "column22": {"value": 501, "name": "ID pohybu", "id": 22},
          "column0": {"value": "2024-04-04+0200", "name": "Datum", "id": 0},
          "column1": {"value": -320.0, "name": "Objem", "id": 1},
          "column5": null
        }
      ]
    }
  }
}`

func newTestApp(t *testing.T, fioURL string) (*App, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	cfg := &config.Config{
		Timezone: "Europe/Prague",
		JWT:      config.JWTConfig{Secret: "test-secret", Expiration: time.Hour},
		Fio:      config.FioConfig{Token: "token", BaseURL: fioURL, MinInterval: time.Millisecond},
	}
	a, err := assemble(context.Background(), cfg, zap.NewNop(), sqlx.NewDb(db, "sqlmock"), nil, Options{MailWorkers: 1})
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		_ = a.Close()
	})
	return a, mock
}

func scrape(t *testing.T, a *App) string {
	t.Helper()
	w := httptest.NewRecorder()
	a.Services.Metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestReconcilerCountsEntries(t *testing.T) {
	bank := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(outgoingStatement))
	}))
	defer bank.Close()
	a, mock := newTestApp(t, bank.URL)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT last_fio_fetch_time FROM fio_settings")).
		WillReturnRows(sqlmock.NewRows([]string{"last_fio_fetch_time"}).AddRow(nil))
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fio_settings (id, last_fio_fetch_time)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := a.Services.Reconciler.Run(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Entries)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Contains(t, scrape(t, a), `reconciler_entries_total{outcome="ignored"} 1`)
}

func TestOccurrenceCloseCountsClosed(t *testing.T) {
	a, mock := newTestApp(t, "http://fio.invalid")
	day := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)
	occurrenceRow := func(state models.OccurrenceState) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "event_id", "state", "date"}).AddRow(int64(6), int64(3), string(state), day)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM event_occurrences o WHERE o.id = $1 FOR UPDATE")).
		WithArgs(int64(6)).
		WillReturnRows(occurrenceRow(models.OccurrenceOpen))
	mock.ExpectQuery(regexp.QuoteMeta("FROM events e WHERE e.id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "name", "category"}).
			AddRow(int64(3), string(models.EventKindOneTime), "Kurz první pomoci", string(models.CategoryCourse)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM event_position_assignments WHERE event_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM occurrence_participants op WHERE op.occurrence_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM occurrence_coaches oc WHERE oc.occurrence_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE occurrence_participants SET state = 'unexcused'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE occurrence_coaches SET state = 'unexcused'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE event_occurrences SET state = $2 WHERE id = $1")).
		WithArgs(int64(6), string(models.OccurrenceClosed)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(regexp.QuoteMeta("FROM event_occurrences o WHERE o.id = $1")).
		WillReturnRows(occurrenceRow(models.OccurrenceClosed))
	mock.ExpectQuery(regexp.QuoteMeta("FROM occurrence_participants op WHERE op.occurrence_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM occurrence_coaches oc WHERE oc.occurrence_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	roster, err := a.Services.Occurrences.Close(context.Background(), 6, models.CloseOccurrenceRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.OccurrenceClosed, roster.Occurrence.State)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, uint64(1), a.Services.Metrics.Snapshot().OccurrencesClosed)
	assert.Contains(t, scrape(t, a), "occurrences_closed_total 1")
}
