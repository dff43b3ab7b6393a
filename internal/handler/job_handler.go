package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/service"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

type jobService interface {
	Names() []string
	Run(ctx context.Context, name string, opts service.JobOptions) (*service.JobReport, error)
}

// JobHandler triggers maintenance jobs on demand.
type JobHandler struct {
	service jobService
}

// NewJobHandler builds a new handler.
func NewJobHandler(service jobService) *JobHandler {
	return &JobHandler{service: service}
}

// List godoc
// @Summary List maintenance jobs
// @Tags Jobs
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Names(), nil)
}

// Run godoc
// @Summary Run a maintenance job
// @Tags Jobs
// @Produce json
// @Param name path string true "Job name"
// @Param days query int false "Lookback in days for fetch_fio"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /jobs/{name} [post]
func (h *JobHandler) Run(c *gin.Context) {
	var opts service.JobOptions
	if raw := c.Query("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 1 {
			response.Error(c, appErrors.Invalid("days", "expected a positive integer"))
			return
		}
		opts.Days = days
	}
	report, err := h.service.Run(c.Request.Context(), c.Param("name"), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
