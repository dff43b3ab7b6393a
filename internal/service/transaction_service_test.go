package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/pkg/config"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type mapCache struct {
	items   map[string]interface{}
	deleted []string
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	v, ok := c.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*models.LedgerSummary)) = *(v.(*models.LedgerSummary))
	return nil
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.items[key] = value
	return nil
}

func (c *mapCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.items, k)
	}
	c.deleted = append(c.deleted, keys...)
	return nil
}

type ledgerRepoStub struct {
	ledgerView
	summaries int
	filter    models.TransactionFilter
}

func (r *ledgerRepoStub) List(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionDetail, int, error) {
	r.filter = filter
	return []models.TransactionDetail{}, 0, nil
}

func (r *ledgerRepoStub) Summary(ctx context.Context, personID int64) (*models.LedgerSummary, error) {
	r.summaries++
	return &models.LedgerSummary{TotalDebt: 500, DueDebt: 200}, nil
}

func newTransactionServiceForTest() (*TransactionService, *memStore, *ledgerRepoStub, *mapCache) {
	store := newMemStore()
	repo := &ledgerRepoStub{ledgerView: ledgerView{store}}
	backing := &mapCache{items: map[string]interface{}{}}
	cache := NewCacheService(backing, nil, time.Minute, zap.NewNop(), true)
	fio := config.FioConfig{AccountNumber: "2000145399", BankCode: "2010"}
	svc := NewTransactionService(repo, personView{store}, cache, fio, nil, zap.NewNop()).
		WithClock(fixedClock(time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)))
	return svc, store, repo, backing
}

func TestTransactionServiceCreateAndSettledGuards(t *testing.T) {
	svc, store, _, backing := newTransactionServiceForTest()
	ctx := context.Background()
	p := store.addPerson(models.Person{FirstName: "Jan"})

	_, err := svc.Create(ctx, models.TransactionRequest{PersonID: 9999, Amount: -100, Reason: "Ploutve", DateDue: models.NewDate(day("2024-04-30"))})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Fields, "person_id")

	_, err = svc.Create(ctx, models.TransactionRequest{PersonID: p.ID, Amount: -100, Reason: "Ploutve"})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Fields, "date_due")

	req := models.TransactionRequest{PersonID: p.ID, Amount: -100, Reason: " Ploutve ", DateDue: models.NewDate(day("2024-04-30"))}
	created, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Ploutve", created.Reason)
	assert.Contains(t, backing.deleted, ledgerKey(p.ID))

	require.NoError(t, ledgerView{store}.LinkFio(ctx, created.ID, 5))

	req.Reason = "Ploutve"
	same, err := svc.Update(ctx, created.ID, req)
	require.NoError(t, err)
	assert.True(t, same.IsSettled())

	req.Amount = -150
	_, err = svc.Update(ctx, created.ID, req)
	assert.ErrorIs(t, err, appErrors.ErrStateConflict)
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), appErrors.ErrStateConflict)

	_, err = svc.PaymentDescriptor(ctx, created.ID)
	assert.ErrorIs(t, err, appErrors.ErrStateConflict)
}

func TestTransactionServiceUpdateKeepsEventLink(t *testing.T) {
	svc, store, _, _ := newTransactionServiceForTest()
	ctx := context.Background()
	p := store.addPerson(models.Person{FirstName: "Jan"})
	eventID := int64(7)

	created, err := svc.Create(ctx, models.TransactionRequest{
		PersonID: p.ID, Amount: 600, Reason: "Vedení kurzu", DateDue: models.NewDate(day("2024-04-30")), EventID: &eventID,
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, models.TransactionRequest{
		PersonID: p.ID, Amount: 600, Reason: "Vedení kurzu první pomoci", DateDue: models.NewDate(day("2024-04-30")),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.EventID)
	assert.Equal(t, eventID, *updated.EventID)

	stored, err := ledgerView{store}.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EventID)
	assert.Equal(t, eventID, *stored.EventID)

	other := int64(8)
	updated, err = svc.Update(ctx, created.ID, models.TransactionRequest{
		PersonID: p.ID, Amount: 600, Reason: "Vedení kurzu první pomoci", DateDue: models.NewDate(day("2024-04-30")), EventID: &other,
	})
	require.NoError(t, err)
	assert.Equal(t, other, *updated.EventID)
}

func TestTransactionServicePaymentDescriptor(t *testing.T) {
	svc, store, _, _ := newTransactionServiceForTest()
	ctx := context.Background()
	debt := store.addTransaction(models.Transaction{ID: 42, PersonID: 1, Amount: -200, Reason: "Ploutve"})
	reward := store.addTransaction(models.Transaction{ID: 43, PersonID: 1, Amount: 800, Reason: "Mzda"})

	d, err := svc.PaymentDescriptor(ctx, debt.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, d.Amount)
	assert.Equal(t, "42", d.VariableSymbol)
	assert.Equal(t, "CZK", d.Currency)
	assert.Contains(t, d.SPD, "X-VS:42")

	_, err = svc.PaymentDescriptor(ctx, reward.ID)
	assert.ErrorIs(t, err, appErrors.ErrStateConflict)
}

func TestTransactionServiceSummaryIsCached(t *testing.T) {
	svc, _, repo, _ := newTransactionServiceForTest()
	ctx := context.Background()

	first, err := svc.Summary(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), first.PersonID)
	second, err := svc.Summary(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.summaries)

	svc.Invalidate(ctx, 7, 7)
	_, err = svc.Summary(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.summaries)
}

func TestTransactionServiceScopesMembers(t *testing.T) {
	svc, store, repo, _ := newTransactionServiceForTest()
	ctx := context.Background()
	p := store.addPerson(models.Person{FirstName: "Jan"})

	_, page, err := svc.List(ctx, member(p), models.TransactionFilter{})
	require.NoError(t, err)
	require.NotNil(t, repo.filter.PersonID)
	assert.Equal(t, p.ID, *repo.filter.PersonID)
	assert.Equal(t, 1, page.Page)

	_, _, err = svc.List(ctx, member(p), models.TransactionFilter{PersonID: int64Ptr(p.ID + 1)})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, _, err = svc.List(ctx, admin(), models.TransactionFilter{State: "pending"})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Fields, "state")
}
