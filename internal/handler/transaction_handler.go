package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

type transactionService interface {
	List(ctx context.Context, principal *models.Principal, filter models.TransactionFilter) ([]models.TransactionDetail, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*models.Transaction, error)
	Create(ctx context.Context, req models.TransactionRequest) (*models.Transaction, error)
	Update(ctx context.Context, id int64, req models.TransactionRequest) (*models.Transaction, error)
	Delete(ctx context.Context, id int64) error
	Summary(ctx context.Context, personID int64) (*models.LedgerSummary, error)
	PaymentDescriptor(ctx context.Context, id int64) (*models.PaymentDescriptor, error)
}

// TransactionHandler exposes the ledger.
type TransactionHandler struct {
	service transactionService
}

// NewTransactionHandler builds a new handler.
func NewTransactionHandler(service transactionService) *TransactionHandler {
	return &TransactionHandler{service: service}
}

func transactionFilter(c *gin.Context) (models.TransactionFilter, error) {
	filter := models.TransactionFilter{
		State:    models.TransactionState(c.Query("state")),
		Kind:     models.TransactionKind(c.Query("kind")),
		Category: models.EventCategory(c.Query("category")),
	}
	filter.Page, filter.PageSize = pageParams(c)
	var err error
	if filter.From, err = queryDate(c, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = queryDate(c, "to"); err != nil {
		return filter, err
	}
	if filter.PersonID, err = queryID(c, "person_id"); err != nil {
		return filter, err
	}
	if filter.EventID, err = queryID(c, "event_id"); err != nil {
		return filter, err
	}
	return filter, nil
}

// List godoc
// @Summary List transactions
// @Description Without the ledger permission only managed persons' entries are visible
// @Tags Transactions
// @Produce json
// @Param state query string false "all, settled or due"
// @Param kind query string false "debt or reward"
// @Param category query string false "Event category"
// @Param person_id query int false "Person ID"
// @Param event_id query int false "Event ID"
// @Param from query string false "Due from (YYYY-MM-DD)"
// @Param to query string false "Due to (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /transactions [get]
func (h *TransactionHandler) List(c *gin.Context) {
	filter, err := transactionFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), principalFrom(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a transaction
// @Tags Transactions
// @Produce json
// @Param id path int true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Router /transactions/{id} [get]
func (h *TransactionHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	txn, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, txn, nil)
}

// Create godoc
// @Summary Book a manual transaction
// @Tags Transactions
// @Accept json
// @Produce json
// @Param payload body models.TransactionRequest true "Transaction payload"
// @Success 201 {object} response.Envelope
// @Router /transactions [post]
func (h *TransactionHandler) Create(c *gin.Context) {
	var req models.TransactionRequest
	if !bindJSON(c, &req, "transaction") {
		return
	}
	txn, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, txn)
}

// Update godoc
// @Summary Edit an unsettled transaction
// @Tags Transactions
// @Accept json
// @Produce json
// @Param id path int true "Transaction ID"
// @Param payload body models.TransactionRequest true "Transaction payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transactions/{id} [put]
func (h *TransactionHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.TransactionRequest
	if !bindJSON(c, &req, "transaction") {
		return
	}
	txn, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, txn, nil)
}

// Delete godoc
// @Summary Delete an unsettled transaction
// @Tags Transactions
// @Param id path int true "Transaction ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transactions/{id} [delete]
func (h *TransactionHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Payment godoc
// @Summary Payment instructions for a debt
// @Description Account, amount, variable symbol and a QR payment string
// @Tags Transactions
// @Produce json
// @Param id path int true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /transactions/{id}/payment [get]
func (h *TransactionHandler) Payment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	descriptor, err := h.service.PaymentDescriptor(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, descriptor, nil)
}

// Summary godoc
// @Summary Debt summary of a person
// @Tags Transactions
// @Produce json
// @Param id path int true "Person ID"
// @Success 200 {object} response.Envelope
// @Router /persons/{id}/ledger [get]
func (h *TransactionHandler) Summary(c *gin.Context) {
	personID, ok := pathID(c, "id")
	if !ok {
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), personID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
