package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/service"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type transactionServiceMock struct {
	filter    models.TransactionFilter
	principal *models.Principal
	created   models.TransactionRequest
}

func (m *transactionServiceMock) List(ctx context.Context, principal *models.Principal, filter models.TransactionFilter) ([]models.TransactionDetail, *models.Pagination, error) {
	m.principal = principal
	m.filter = filter
	return []models.TransactionDetail{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (m *transactionServiceMock) Get(ctx context.Context, id int64) (*models.Transaction, error) {
	return &models.Transaction{ID: id}, nil
}

func (m *transactionServiceMock) Create(ctx context.Context, req models.TransactionRequest) (*models.Transaction, error) {
	m.created = req
	return &models.Transaction{ID: 12, PersonID: req.PersonID, Amount: req.Amount}, nil
}

func (m *transactionServiceMock) Update(ctx context.Context, id int64, req models.TransactionRequest) (*models.Transaction, error) {
	return nil, appErrors.Clone(appErrors.ErrStateConflict, "settled transactions cannot be edited")
}

func (m *transactionServiceMock) Delete(ctx context.Context, id int64) error { return nil }

func (m *transactionServiceMock) Summary(ctx context.Context, personID int64) (*models.LedgerSummary, error) {
	return &models.LedgerSummary{PersonID: personID, TotalDebt: 500}, nil
}

func (m *transactionServiceMock) PaymentDescriptor(ctx context.Context, id int64) (*models.PaymentDescriptor, error) {
	return &models.PaymentDescriptor{Currency: "CZK", Amount: 200, VariableSymbol: "42"}, nil
}

func TestTransactionHandlerListFilter(t *testing.T) {
	svc := &transactionServiceMock{}
	handler := NewTransactionHandler(svc)

	c, w := newTestContext(http.MethodGet, "/transactions?state=due&kind=debt&category=swimming&from=2024-01-01&person_id=7&page=2", nil)
	principal := asPerson(c, 7)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Same(t, principal, svc.principal)
	assert.Equal(t, models.TransactionStateDue, svc.filter.State)
	assert.Equal(t, models.EventCategory("swimming"), svc.filter.Category)
	require.NotNil(t, svc.filter.PersonID)
	assert.Equal(t, int64(7), *svc.filter.PersonID)
	require.NotNil(t, svc.filter.From)
	assert.Nil(t, svc.filter.To)
	assert.Nil(t, svc.filter.EventID)
	pagination := decodeEnvelope(t, w)["pagination"].(map[string]interface{})
	assert.Equal(t, float64(2), pagination["page"])

	c, w = newTestContext(http.MethodGet, "/transactions?to=31.12.2024", nil)
	asPerson(c, 7)
	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransactionHandlerWrites(t *testing.T) {
	svc := &transactionServiceMock{}
	handler := NewTransactionHandler(svc)

	c, w := newTestContext(http.MethodPost, "/transactions", map[string]interface{}{
		"person_id": 7, "amount": -300, "reason": "Ploutve", "date_due": "2024-05-01",
	})
	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, -300, svc.created.Amount)

	c, w = newTestContext(http.MethodPut, "/transactions/12", map[string]interface{}{"amount": -1}, param("id", "12"))
	handler.Update(c)
	assert.Equal(t, http.StatusConflict, w.Code)

	c, w = newTestContext(http.MethodGet, "/transactions/42/payment", nil, param("id", "42"))
	handler.Payment(c)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "42", data["variable_symbol"])
}

type exportServiceMock struct {
	filter   models.TransactionFilter
	personID int64
}

func (m *exportServiceMock) Persons(ctx context.Context, principal *models.Principal) (*service.ExportFile, error) {
	if principal == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return &service.ExportFile{Filename: "osoby.csv", ContentType: "text/csv; charset=utf-8", Data: []byte("a;b\n")}, nil
}

func (m *exportServiceMock) Transactions(ctx context.Context, principal *models.Principal, filter models.TransactionFilter) (*service.ExportFile, error) {
	m.filter = filter
	return &service.ExportFile{Filename: "transakce.csv", ContentType: "text/csv; charset=utf-8", Data: []byte("x")}, nil
}

func (m *exportServiceMock) Statement(ctx context.Context, principal *models.Principal, personID int64) (*service.ExportFile, error) {
	m.personID = personID
	return &service.ExportFile{Filename: "vypis.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.3")}, nil
}

func TestExportHandlerAttachments(t *testing.T) {
	svc := &exportServiceMock{}
	handler := NewExportHandler(svc)

	c, w := newTestContext(http.MethodGet, "/persons/export", nil)
	asPerson(c, 1)
	handler.Persons(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="osoby.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "a;b\n", w.Body.String())

	c, w = newTestContext(http.MethodGet, "/persons/export", nil)
	handler.Persons(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newTestContext(http.MethodGet, "/transactions/export?event_id=3", nil)
	asPerson(c, 1)
	handler.Transactions(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.filter.EventID)
	assert.Equal(t, int64(3), *svc.filter.EventID)

	c, w = newTestContext(http.MethodGet, "/persons/5/statement", nil, param("id", "5"))
	asPerson(c, 5)
	handler.Statement(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(5), svc.personID)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
}
