package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

type eventService interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*models.Event, error)
	Occurrences(ctx context.Context, id int64) ([]models.Occurrence, error)
	Create(ctx context.Context, principal *models.Principal, req models.EventRequest) (*models.Event, error)
	Update(ctx context.Context, principal *models.Principal, id int64, req models.EventRequest) (*models.Event, error)
	Delete(ctx context.Context, id int64) error
	AddPosition(ctx context.Context, eventID int64, req models.EventPositionRequest) (*models.Event, error)
	UpdatePosition(ctx context.Context, eventID int64, req models.EventPositionRequest) (*models.Event, error)
	RemovePosition(ctx context.Context, eventID, positionID int64) error
	Coaches(ctx context.Context, eventID int64) ([]models.CoachPositionAssignment, error)
	AssignCoach(ctx context.Context, eventID int64, req models.CoachAssignmentRequest) (*models.CoachPositionAssignment, error)
	MoveCoach(ctx context.Context, eventID, assignmentID int64, req models.CoachPositionRequest) (*models.CoachPositionAssignment, error)
	RemoveCoach(ctx context.Context, eventID, assignmentID int64) error
	SetMainCoach(ctx context.Context, eventID int64, req models.MainCoachRequest) (*models.Event, error)
}

// EventHandler exposes one-time events and trainings, their required
// positions and coach assignments.
type EventHandler struct {
	service eventService
}

// NewEventHandler builds a new handler.
func NewEventHandler(service eventService) *EventHandler {
	return &EventHandler{service: service}
}

// List godoc
// @Summary List events and trainings
// @Tags Events
// @Produce json
// @Param kind query string false "one_time or training"
// @Param category query string false "Event category"
// @Param from query string false "Earliest date (YYYY-MM-DD)"
// @Param to query string false "Latest date (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	filter := models.EventFilter{
		Kind:     models.EventKind(c.Query("kind")),
		Category: models.EventCategory(c.Query("category")),
	}
	filter.Page, filter.PageSize = pageParams(c)
	var err error
	if filter.From, err = queryDate(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.To, err = queryDate(c, "to"); err != nil {
		response.Error(c, err)
		return
	}

	events, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Get godoc
// @Summary Get an event
// @Tags Events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	event, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Occurrences godoc
// @Summary List the occurrences of an event
// @Tags Events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/occurrences [get]
func (h *EventHandler) Occurrences(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	occurrences, err := h.service.Occurrences(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occurrences, nil)
}

// Create godoc
// @Summary Create an event or training
// @Description Occurrences are generated from the dates or the weekly schedule
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body models.EventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req models.EventRequest
	if !bindJSON(c, &req, "event") {
		return
	}
	event, err := h.service.Create(c.Request.Context(), principalFrom(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Update an event or training
// @Tags Events
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param payload body models.EventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.EventRequest
	if !bindJSON(c, &req, "event") {
		return
	}
	event, err := h.service.Update(c.Request.Context(), principalFrom(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete an event
// @Tags Events
// @Param id path int true "Event ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
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

// AddPosition godoc
// @Summary Require coaches of a position
// @Tags Events
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param payload body models.EventPositionRequest true "Position and count"
// @Success 201 {object} response.Envelope
// @Router /events/{id}/positions [post]
func (h *EventHandler) AddPosition(c *gin.Context) {
	h.changePosition(c, h.service.AddPosition, http.StatusCreated)
}

// UpdatePosition godoc
// @Summary Change how many coaches of a position are required
// @Tags Events
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param payload body models.EventPositionRequest true "Position and count"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/positions [put]
func (h *EventHandler) UpdatePosition(c *gin.Context) {
	h.changePosition(c, h.service.UpdatePosition, http.StatusOK)
}

func (h *EventHandler) changePosition(c *gin.Context, apply func(context.Context, int64, models.EventPositionRequest) (*models.Event, error), status int) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.EventPositionRequest
	if !bindJSON(c, &req, "event position") {
		return
	}
	event, err := apply(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, status, event, nil)
}

// RemovePosition godoc
// @Summary Stop requiring a position
// @Tags Events
// @Param id path int true "Event ID"
// @Param positionId path int true "Position ID"
// @Success 204 {object} response.Envelope
// @Router /events/{id}/positions/{positionId} [delete]
func (h *EventHandler) RemovePosition(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	positionID, ok := pathID(c, "positionId")
	if !ok {
		return
	}
	if err := h.service.RemovePosition(c.Request.Context(), id, positionID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Coaches godoc
// @Summary List coach assignments
// @Tags Events
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/coaches [get]
func (h *EventHandler) Coaches(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	coaches, err := h.service.Coaches(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coaches, nil)
}

// AssignCoach godoc
// @Summary Assign a coach to a position
// @Tags Events
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param payload body models.CoachAssignmentRequest true "Coach and position"
// @Success 201 {object} response.Envelope
// @Router /events/{id}/coaches [post]
func (h *EventHandler) AssignCoach(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.CoachAssignmentRequest
	if !bindJSON(c, &req, "coach") {
		return
	}
	assignment, err := h.service.AssignCoach(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// MoveCoach godoc
// @Summary Move a coach to another position
// @Tags Events
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param coachId path int true "Coach assignment ID"
// @Param payload body models.CoachPositionRequest true "New position"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/coaches/{coachId} [put]
func (h *EventHandler) MoveCoach(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	coachID, ok := pathID(c, "coachId")
	if !ok {
		return
	}
	var req models.CoachPositionRequest
	if !bindJSON(c, &req, "coach position") {
		return
	}
	assignment, err := h.service.MoveCoach(c.Request.Context(), id, coachID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// RemoveCoach godoc
// @Summary Remove a coach assignment
// @Tags Events
// @Param id path int true "Event ID"
// @Param coachId path int true "Coach assignment ID"
// @Success 204 {object} response.Envelope
// @Router /events/{id}/coaches/{coachId} [delete]
func (h *EventHandler) RemoveCoach(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	coachID, ok := pathID(c, "coachId")
	if !ok {
		return
	}
	if err := h.service.RemoveCoach(c.Request.Context(), id, coachID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetMainCoach godoc
// @Summary Select or clear the main coach of a training
// @Tags Events
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param payload body models.MainCoachRequest true "Coach assignment, null to clear"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/main-coach [put]
func (h *EventHandler) SetMainCoach(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.MainCoachRequest
	if !bindJSON(c, &req, "main coach") {
		return
	}
	event, err := h.service.SetMainCoach(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}
