package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/service"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

type personService interface {
	List(ctx context.Context, principal *models.Principal, filter models.PersonFilter) ([]models.Person, *models.Pagination, error)
	Managed(ctx context.Context, principal *models.Principal) ([]models.Person, error)
	Get(ctx context.Context, id int64) (*models.Person, error)
	Create(ctx context.Context, principal *models.Principal, req models.PersonRequest) (*models.Person, error)
	Update(ctx context.Context, principal *models.Principal, id int64, req models.PersonRequest) (*models.Person, error)
	Delete(ctx context.Context, id int64) error
	HourlyRates(ctx context.Context, personID int64) ([]models.PersonHourlyRate, error)
	SetHourlyRate(ctx context.Context, personID int64, req models.HourlyRateRequest) ([]models.PersonHourlyRate, error)
	AddManaged(ctx context.Context, managerID int64, req service.ManagedPersonRequest) error
	RemoveManaged(ctx context.Context, managerID, managedID int64) error
}

// PersonHandler exposes person management endpoints.
type PersonHandler struct {
	service personService
}

// NewPersonHandler builds a new handler.
func NewPersonHandler(service personService) *PersonHandler {
	return &PersonHandler{service: service}
}

// List godoc
// @Summary List persons
// @Description Only membership types covered by the caller's scopes are returned
// @Tags Persons
// @Produce json
// @Param search query string false "Name or email fragment"
// @Param person_type query string false "Comma separated membership types"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /persons [get]
func (h *PersonHandler) List(c *gin.Context) {
	filter := models.PersonFilter{Search: c.Query("search")}
	filter.Page, filter.PageSize = pageParams(c)
	for _, raw := range strings.Split(c.Query("person_type"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			filter.Types = append(filter.Types, models.PersonType(raw))
		}
	}

	persons, pagination, err := h.service.List(c.Request.Context(), principalFrom(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, persons, pagination)
}

// Managed godoc
// @Summary List the caller's own and managed persons
// @Tags Persons
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /persons/managed [get]
func (h *PersonHandler) Managed(c *gin.Context) {
	persons, err := h.service.Managed(c.Request.Context(), principalFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, persons, nil)
}

// Get godoc
// @Summary Get a person
// @Tags Persons
// @Produce json
// @Param id path int true "Person ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /persons/{id} [get]
func (h *PersonHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	person, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, person, nil)
}

// Create godoc
// @Summary Create a person
// @Tags Persons
// @Accept json
// @Produce json
// @Param payload body models.PersonRequest true "Person payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /persons [post]
func (h *PersonHandler) Create(c *gin.Context) {
	var req models.PersonRequest
	if !bindJSON(c, &req, "person") {
		return
	}
	person, err := h.service.Create(c.Request.Context(), principalFrom(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, person)
}

// Update godoc
// @Summary Update a person
// @Tags Persons
// @Accept json
// @Produce json
// @Param id path int true "Person ID"
// @Param payload body models.PersonRequest true "Person payload"
// @Success 200 {object} response.Envelope
// @Router /persons/{id} [put]
func (h *PersonHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.PersonRequest
	if !bindJSON(c, &req, "person") {
		return
	}
	person, err := h.service.Update(c.Request.Context(), principalFrom(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, person, nil)
}

// Delete godoc
// @Summary Delete a person
// @Tags Persons
// @Param id path int true "Person ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /persons/{id} [delete]
func (h *PersonHandler) Delete(c *gin.Context) {
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

// HourlyRates godoc
// @Summary List a coach's hourly rates
// @Tags Persons
// @Produce json
// @Param id path int true "Person ID"
// @Success 200 {object} response.Envelope
// @Router /persons/{id}/hourly-rates [get]
func (h *PersonHandler) HourlyRates(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rates, err := h.service.HourlyRates(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rates, nil)
}

// SetHourlyRate godoc
// @Summary Set or clear the hourly rate of one category
// @Description A zero rate removes the category
// @Tags Persons
// @Accept json
// @Produce json
// @Param id path int true "Person ID"
// @Param payload body models.HourlyRateRequest true "Rate"
// @Success 200 {object} response.Envelope
// @Router /persons/{id}/hourly-rates [put]
func (h *PersonHandler) SetHourlyRate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.HourlyRateRequest
	if !bindJSON(c, &req, "hourly rate") {
		return
	}
	rates, err := h.service.SetHourlyRate(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rates, nil)
}

// AddManaged godoc
// @Summary Let a person manage another person
// @Tags Persons
// @Accept json
// @Param id path int true "Managing person ID"
// @Param payload body service.ManagedPersonRequest true "Managed person"
// @Success 204 {object} response.Envelope
// @Router /persons/{id}/managed [post]
func (h *PersonHandler) AddManaged(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.ManagedPersonRequest
	if !bindJSON(c, &req, "managed person") {
		return
	}
	if err := h.service.AddManaged(c.Request.Context(), id, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RemoveManaged godoc
// @Summary Remove a managed person
// @Tags Persons
// @Param id path int true "Managing person ID"
// @Param managedId path int true "Managed person ID"
// @Success 204 {object} response.Envelope
// @Router /persons/{id}/managed/{managedId} [delete]
func (h *PersonHandler) RemoveManaged(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	managedID, ok := pathID(c, "managedId")
	if !ok {
		return
	}
	if err := h.service.RemoveManaged(c.Request.Context(), id, managedID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
