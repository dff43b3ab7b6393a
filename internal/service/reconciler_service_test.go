package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/permissions"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
	"github.com/noah-isme/vzs-club-api/pkg/fio"
)

type statementStub struct {
	entries []fio.Entry
	err     error
	calls   []time.Time
}

func (s *statementStub) Statement(ctx context.Context, from, to time.Time) ([]fio.Entry, error) {
	s.calls = append(s.calls, from)
	return s.entries, s.err
}

type reconcilerFixture struct {
	store    *memStore
	source   *statementStub
	notifier *recordingNotifier
	cache    *recordingCache
	svc      *ReconcilerService
}

func newReconcilerFixture(now time.Time) *reconcilerFixture {
	store := newMemStore()
	source := &statementStub{}
	notifier := &recordingNotifier{}
	cache := &recordingCache{}
	recipients := stubRecipients{permissions.Transactions: {"pokladnik@example.com"}}
	svc := NewReconcilerService(source, fioView{store}, ledgerView{store}, passthroughTx{}, notifier, recipients, 0, zap.NewNop()).
		WithClock(fixedClock(now)).
		WithLedgerCache(cache)
	return &reconcilerFixture{store: store, source: source, notifier: notifier, cache: cache, svc: svc}
}

func TestReconcilerServiceSettlesOnceAcrossReplays(t *testing.T) {
	now := time.Date(2024, 4, 5, 6, 0, 0, 0, time.UTC)
	f := newReconcilerFixture(now)
	f.store.addTransaction(models.Transaction{ID: 42, PersonID: 7, Amount: -200, Reason: "Ploutve", DateDue: day("2024-04-10")})
	f.source.entries = []fio.Entry{{ID: 99, Date: day("2024-04-03"), Amount: 200, Currency: "CZK", VariableSymbol: "42"}}

	result, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Outcomes[ReconcileSettled])
	assert.Equal(t, now.AddDate(0, 0, -7), result.From)
	assert.Equal(t, []int64{7}, f.cache.ids)

	settled := f.store.transactionsOf(7)
	require.Len(t, settled, 1)
	require.True(t, settled[0].IsSettled())
	row, err := fioView{f.store}.FindByFioID(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, row.ID, *settled[0].FioTransactionID)
	assert.Equal(t, day("2024-04-03"), row.Date)

	result, err = f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Outcomes[ReconcileReplayed])
	assert.Equal(t, now, result.From)
	assert.Len(t, f.store.fioRows, 1)
	assert.Empty(t, f.notifier.messages)
}

func TestReconcilerServiceAmountMismatch(t *testing.T) {
	f := newReconcilerFixture(time.Date(2024, 4, 5, 6, 0, 0, 0, time.UTC))
	f.store.addTransaction(models.Transaction{ID: 42, PersonID: 7, Amount: -200, Reason: "Ploutve"})
	f.source.entries = []fio.Entry{{ID: 99, Date: day("2024-04-03"), Amount: 150, VariableSymbol: "42"}}

	result, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Outcomes[ReconcileMismatch])
	assert.False(t, f.store.transactionsOf(7)[0].IsSettled())
	assert.Empty(t, f.store.fioRows)

	messages := f.notifier.bySubject("Nesouhlasí částka platby s VS 42")
	require.Len(t, messages, 1)
	assert.Equal(t, []string{"pokladnik@example.com"}, messages[0].To)
	assert.Contains(t, messages[0].Body, "150.00 Kč")
	assert.Contains(t, messages[0].Body, "očekává 200 Kč")
}

func TestReconcilerServiceIgnoresForeignSymbols(t *testing.T) {
	f := newReconcilerFixture(time.Date(2024, 4, 5, 6, 0, 0, 0, time.UTC))
	f.store.addTransaction(models.Transaction{ID: 42, PersonID: 7, Amount: -200})
	f.source.entries = []fio.Entry{
		{ID: 1, Amount: 200, VariableSymbol: "042"},
		{ID: 2, Amount: 200},
		{ID: 3, Amount: -200, VariableSymbol: "42"},
		{ID: 4, Amount: 200, VariableSymbol: "12abc"},
		{ID: 5, Amount: 200, VariableSymbol: "7777"},
	}

	result, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Outcomes[ReconcileIgnored])
	assert.Equal(t, 1, result.Outcomes[ReconcileUnknown])
	assert.False(t, f.store.transactionsOf(7)[0].IsSettled())
	assert.Empty(t, f.notifier.messages)
}

func TestReconcilerServiceDuplicateSymbol(t *testing.T) {
	f := newReconcilerFixture(time.Date(2024, 4, 5, 6, 0, 0, 0, time.UTC))
	f.store.addTransaction(models.Transaction{ID: 42, PersonID: 7, Amount: -200})
	f.source.entries = []fio.Entry{
		{ID: 99, Date: day("2024-04-03"), Amount: 200, VariableSymbol: "42"},
		{ID: 100, Date: day("2024-04-04"), Amount: 200, VariableSymbol: "42"},
	}

	result, err := f.svc.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Outcomes[ReconcileSettled])
	assert.Equal(t, 1, result.Outcomes[ReconcileDuplicate])
	assert.Len(t, f.notifier.bySubject("Duplicitní platba s VS 42"), 1)
}

func TestReconcilerServiceThrottledKeepsWatermark(t *testing.T) {
	f := newReconcilerFixture(time.Date(2024, 4, 5, 6, 0, 0, 0, time.UTC))
	f.source.err = fio.ErrThrottled

	_, err := f.svc.Run(context.Background(), 3)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrThrottled.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.store.fioSettings)

	f.source.err = errors.New("connection reset")
	_, err = f.svc.Run(context.Background(), 3)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTransport.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.store.fioSettings)
	assert.Equal(t, day("2024-04-02").Add(6*time.Hour), f.source.calls[0])
}
