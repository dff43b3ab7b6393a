package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/service"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

type featureService interface {
	List(ctx context.Context, featureType models.FeatureType) ([]models.Feature, error)
	Get(ctx context.Context, id int64) (*models.Feature, error)
	Create(ctx context.Context, req models.FeatureRequest) (*models.Feature, error)
	Update(ctx context.Context, id int64, req models.FeatureRequest) (*models.Feature, error)
	Delete(ctx context.Context, id int64) error
	Assignments(ctx context.Context, personID int64, featureType models.FeatureType) ([]models.FeatureAssignmentDetail, error)
	GetAssignment(ctx context.Context, id int64) (*models.FeatureAssignment, error)
	Assign(ctx context.Context, principal *models.Principal, personID int64, req models.FeatureAssignmentRequest) (*service.FeatureAssignmentResult, error)
	UpdateAssignment(ctx context.Context, principal *models.Principal, id int64, req models.FeatureAssignmentRequest) (*service.FeatureAssignmentResult, error)
	ReturnEquipment(ctx context.Context, principal *models.Principal, id int64, returned *models.Date) (*models.FeatureAssignment, error)
	DeleteAssignment(ctx context.Context, principal *models.Principal, id int64) error
	Matrix(ctx context.Context, principal *models.Principal, rootID int64) (*models.FeatureMatrix, error)
}

// FeatureHandler exposes the qualification, permission and equipment trees
// and their assignments.
type FeatureHandler struct {
	service featureService
}

// NewFeatureHandler builds a new handler.
func NewFeatureHandler(service featureService) *FeatureHandler {
	return &FeatureHandler{service: service}
}

type returnEquipmentRequest struct {
	DateReturned *models.Date `json:"date_returned"`
}

// List godoc
// @Summary List features
// @Tags Features
// @Produce json
// @Param feature_type query string false "qualification, permission or equipment"
// @Success 200 {object} response.Envelope
// @Router /features [get]
func (h *FeatureHandler) List(c *gin.Context) {
	features, err := h.service.List(c.Request.Context(), models.FeatureType(c.Query("feature_type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, features, nil)
}

// Get godoc
// @Summary Get a feature
// @Tags Features
// @Produce json
// @Param id path int true "Feature ID"
// @Success 200 {object} response.Envelope
// @Router /features/{id} [get]
func (h *FeatureHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	feature, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, feature, nil)
}

// Create godoc
// @Summary Create a feature
// @Tags Features
// @Accept json
// @Produce json
// @Param payload body models.FeatureRequest true "Feature payload"
// @Success 201 {object} response.Envelope
// @Router /features [post]
func (h *FeatureHandler) Create(c *gin.Context) {
	var req models.FeatureRequest
	if !bindJSON(c, &req, "feature") {
		return
	}
	feature, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, feature)
}

// Update godoc
// @Summary Update a feature
// @Tags Features
// @Accept json
// @Produce json
// @Param id path int true "Feature ID"
// @Param payload body models.FeatureRequest true "Feature payload"
// @Success 200 {object} response.Envelope
// @Router /features/{id} [put]
func (h *FeatureHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.FeatureRequest
	if !bindJSON(c, &req, "feature") {
		return
	}
	feature, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, feature, nil)
}

// Delete godoc
// @Summary Delete a feature
// @Tags Features
// @Param id path int true "Feature ID"
// @Success 204 {object} response.Envelope
// @Router /features/{id} [delete]
func (h *FeatureHandler) Delete(c *gin.Context) {
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

// Matrix godoc
// @Summary Persons holding the features of a subtree
// @Tags Features
// @Produce json
// @Param id path int true "Root feature ID"
// @Success 200 {object} response.Envelope
// @Router /features/{id}/matrix [get]
func (h *FeatureHandler) Matrix(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	matrix, err := h.service.Matrix(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, matrix, nil)
}

// Assignments godoc
// @Summary List a person's feature assignments
// @Tags Features
// @Produce json
// @Param id path int true "Person ID"
// @Param feature_type query string false "qualification, permission or equipment"
// @Success 200 {object} response.Envelope
// @Router /persons/{id}/features [get]
func (h *FeatureHandler) Assignments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, err := h.service.Assignments(c.Request.Context(), id, models.FeatureType(c.Query("feature_type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Assign godoc
// @Summary Assign a feature to a person
// @Description Lending equipment with a fee also books the debt
// @Tags Features
// @Accept json
// @Produce json
// @Param id path int true "Person ID"
// @Param payload body models.FeatureAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /persons/{id}/features [post]
func (h *FeatureHandler) Assign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.FeatureAssignmentRequest
	if !bindJSON(c, &req, "feature assignment") {
		return
	}
	result, err := h.service.Assign(c.Request.Context(), principalFrom(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// GetAssignment godoc
// @Summary Get a feature assignment
// @Tags Features
// @Produce json
// @Param assignmentId path int true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /feature-assignments/{assignmentId} [get]
func (h *FeatureHandler) GetAssignment(c *gin.Context) {
	id, ok := pathID(c, "assignmentId")
	if !ok {
		return
	}
	assignment, err := h.service.GetAssignment(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// UpdateAssignment godoc
// @Summary Update a feature assignment
// @Tags Features
// @Accept json
// @Produce json
// @Param assignmentId path int true "Assignment ID"
// @Param payload body models.FeatureAssignmentRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /feature-assignments/{assignmentId} [put]
func (h *FeatureHandler) UpdateAssignment(c *gin.Context) {
	id, ok := pathID(c, "assignmentId")
	if !ok {
		return
	}
	var req models.FeatureAssignmentRequest
	if !bindJSON(c, &req, "feature assignment") {
		return
	}
	result, err := h.service.UpdateAssignment(c.Request.Context(), principalFrom(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ReturnEquipment godoc
// @Summary Record returned equipment
// @Tags Features
// @Accept json
// @Produce json
// @Param assignmentId path int true "Assignment ID"
// @Param payload body returnEquipmentRequest false "Return date, today when omitted"
// @Success 200 {object} response.Envelope
// @Router /feature-assignments/{assignmentId}/return [post]
func (h *FeatureHandler) ReturnEquipment(c *gin.Context) {
	id, ok := pathID(c, "assignmentId")
	if !ok {
		return
	}
	var req returnEquipmentRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "return") {
		return
	}
	assignment, err := h.service.ReturnEquipment(c.Request.Context(), principalFrom(c), id, req.DateReturned)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// DeleteAssignment godoc
// @Summary Remove a feature assignment
// @Tags Features
// @Param assignmentId path int true "Assignment ID"
// @Success 204 {object} response.Envelope
// @Router /feature-assignments/{assignmentId} [delete]
func (h *FeatureHandler) DeleteAssignment(c *gin.Context) {
	id, ok := pathID(c, "assignmentId")
	if !ok {
		return
	}
	if err := h.service.DeleteAssignment(c.Request.Context(), principalFrom(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
