package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/service"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

type userService interface {
	List(ctx context.Context, page, size int) ([]models.UserDetail, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*models.User, error)
	SetPermissions(ctx context.Context, id int64, req service.SetPermissionsRequest) (*models.User, error)
}

// UserHandler handles user listings and permission grants.
type UserHandler struct {
	service userService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc userService) *UserHandler {
	return &UserHandler{service: svc}
}

// List godoc
// @Summary List users
// @Description List users with pagination
// @Tags Users
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	users, pagination, err := h.service.List(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, users, pagination)
}

// Get godoc
// @Summary Get user
// @Description Get user detail
// @Tags Users
// @Produce json
// @Param id path int true "Person ID of the user"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	user, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}

// SetPermissions godoc
// @Summary Replace a user's permissions
// @Tags Users
// @Accept json
// @Produce json
// @Param id path int true "Person ID of the user"
// @Param payload body service.SetPermissionsRequest true "Permission codenames"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users/{id}/permissions [put]
func (h *UserHandler) SetPermissions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.SetPermissionsRequest
	if !bindJSON(c, &req, "permissions") {
		return
	}

	user, err := h.service.SetPermissions(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}
