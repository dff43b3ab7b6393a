package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

type groupService interface {
	List(ctx context.Context) ([]models.Group, error)
	Get(ctx context.Context, id int64) (*models.Group, error)
	Create(ctx context.Context, req models.GroupRequest) (*models.Group, error)
	Update(ctx context.Context, id int64, req models.GroupRequest) (*models.Group, error)
	Delete(ctx context.Context, id int64) error
	Members(ctx context.Context, id int64) ([]models.Person, error)
	AddMembers(ctx context.Context, id int64, req models.GroupMembersRequest) ([]models.Person, error)
	RemoveMembers(ctx context.Context, id int64, req models.GroupMembersRequest) ([]models.Person, error)
}

// GroupHandler exposes group and membership endpoints.
type GroupHandler struct {
	service groupService
}

// NewGroupHandler builds a new handler.
func NewGroupHandler(service groupService) *GroupHandler {
	return &GroupHandler{service: service}
}

// List godoc
// @Summary List groups
// @Tags Groups
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /groups [get]
func (h *GroupHandler) List(c *gin.Context) {
	groups, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Get godoc
// @Summary Get a group
// @Tags Groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id} [get]
func (h *GroupHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	group, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Create godoc
// @Summary Create a group
// @Tags Groups
// @Accept json
// @Produce json
// @Param payload body models.GroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Router /groups [post]
func (h *GroupHandler) Create(c *gin.Context) {
	var req models.GroupRequest
	if !bindJSON(c, &req, "group") {
		return
	}
	group, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// Update godoc
// @Summary Update a group
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param payload body models.GroupRequest true "Group payload"
// @Success 200 {object} response.Envelope
// @Router /groups/{id} [put]
func (h *GroupHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.GroupRequest
	if !bindJSON(c, &req, "group") {
		return
	}
	group, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Delete godoc
// @Summary Delete a group
// @Tags Groups
// @Param id path int true "Group ID"
// @Success 204 {object} response.Envelope
// @Router /groups/{id} [delete]
func (h *GroupHandler) Delete(c *gin.Context) {
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

// Members godoc
// @Summary List group members
// @Tags Groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/members [get]
func (h *GroupHandler) Members(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	members, err := h.service.Members(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, nil)
}

// AddMembers godoc
// @Summary Add persons to a group
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param payload body models.GroupMembersRequest true "Person IDs"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/members [post]
func (h *GroupHandler) AddMembers(c *gin.Context) {
	h.changeMembers(c, h.service.AddMembers)
}

// RemoveMembers godoc
// @Summary Remove persons from a group
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param payload body models.GroupMembersRequest true "Person IDs"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/members/remove [post]
func (h *GroupHandler) RemoveMembers(c *gin.Context) {
	h.changeMembers(c, h.service.RemoveMembers)
}

func (h *GroupHandler) changeMembers(c *gin.Context, apply func(context.Context, int64, models.GroupMembersRequest) ([]models.Person, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.GroupMembersRequest
	if !bindJSON(c, &req, "group members") {
		return
	}
	members, err := apply(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, nil)
}
