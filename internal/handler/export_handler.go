package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/service"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

type exportService interface {
	Persons(ctx context.Context, principal *models.Principal) (*service.ExportFile, error)
	Transactions(ctx context.Context, principal *models.Principal, filter models.TransactionFilter) (*service.ExportFile, error)
	Statement(ctx context.Context, principal *models.Principal, personID int64) (*service.ExportFile, error)
}

// ExportHandler streams CSV listings and PDF statements.
type ExportHandler struct {
	service exportService
}

// NewExportHandler builds a new handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Persons godoc
// @Summary Export visible persons as CSV
// @Tags Exports
// @Produce text/csv
// @Success 200 {file} file
// @Router /persons/export [get]
func (h *ExportHandler) Persons(c *gin.Context) {
	h.send(c, func(ctx context.Context) (*service.ExportFile, error) {
		return h.service.Persons(ctx, principalFrom(c))
	})
}

// Transactions godoc
// @Summary Export transactions as CSV
// @Description Accepts the same filters as the transaction listing
// @Tags Exports
// @Produce text/csv
// @Success 200 {file} file
// @Router /transactions/export [get]
func (h *ExportHandler) Transactions(c *gin.Context) {
	filter, err := transactionFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.send(c, func(ctx context.Context) (*service.ExportFile, error) {
		return h.service.Transactions(ctx, principalFrom(c), filter)
	})
}

// Statement godoc
// @Summary Ledger statement of a person as PDF
// @Tags Exports
// @Produce application/pdf
// @Param id path int true "Person ID"
// @Success 200 {file} file
// @Router /persons/{id}/statement [get]
func (h *ExportHandler) Statement(c *gin.Context) {
	personID, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.send(c, func(ctx context.Context) (*service.ExportFile, error) {
		return h.service.Statement(ctx, principalFrom(c), personID)
	})
}

func (h *ExportHandler) send(c *gin.Context, render func(context.Context) (*service.ExportFile, error)) {
	file, err := render(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
