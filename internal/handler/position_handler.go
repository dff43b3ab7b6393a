package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

type positionService interface {
	List(ctx context.Context) ([]models.Position, error)
	Get(ctx context.Context, id int64) (*models.Position, error)
	Create(ctx context.Context, req models.PositionRequest) (*models.Position, error)
	Update(ctx context.Context, id int64, req models.PositionRequest) (*models.Position, error)
	Delete(ctx context.Context, id int64) error
}

// PositionHandler exposes coach position endpoints.
type PositionHandler struct {
	service positionService
}

// NewPositionHandler builds a new handler.
func NewPositionHandler(service positionService) *PositionHandler {
	return &PositionHandler{service: service}
}

// List godoc
// @Summary List positions
// @Tags Positions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /positions [get]
func (h *PositionHandler) List(c *gin.Context) {
	positions, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, positions, nil)
}

// Get godoc
// @Summary Get a position
// @Tags Positions
// @Produce json
// @Param id path int true "Position ID"
// @Success 200 {object} response.Envelope
// @Router /positions/{id} [get]
func (h *PositionHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	position, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, position, nil)
}

// Create godoc
// @Summary Create a position
// @Tags Positions
// @Accept json
// @Produce json
// @Param payload body models.PositionRequest true "Position payload"
// @Success 201 {object} response.Envelope
// @Router /positions [post]
func (h *PositionHandler) Create(c *gin.Context) {
	var req models.PositionRequest
	if !bindJSON(c, &req, "position") {
		return
	}
	position, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, position)
}

// Update godoc
// @Summary Update a position
// @Tags Positions
// @Accept json
// @Produce json
// @Param id path int true "Position ID"
// @Param payload body models.PositionRequest true "Position payload"
// @Success 200 {object} response.Envelope
// @Router /positions/{id} [put]
func (h *PositionHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.PositionRequest
	if !bindJSON(c, &req, "position") {
		return
	}
	position, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, position, nil)
}

// Delete godoc
// @Summary Delete a position
// @Tags Positions
// @Param id path int true "Position ID"
// @Success 204 {object} response.Envelope
// @Router /positions/{id} [delete]
func (h *PositionHandler) Delete(c *gin.Context) {
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
