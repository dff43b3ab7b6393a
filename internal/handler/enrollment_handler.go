package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/service"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

type enrollmentService interface {
	List(ctx context.Context, eventID int64, state models.EnrollmentState) ([]models.EnrollmentDetail, error)
	ForPerson(ctx context.Context, personID int64) ([]models.Enrollment, error)
	Get(ctx context.Context, id int64) (*models.Enrollment, error)
	CanEnroll(ctx context.Context, eventID, personID int64) (*service.EnrollmentCheck, error)
	Enroll(ctx context.Context, principal *models.Principal, eventID int64, req models.EnrollRequest) (*models.Enrollment, error)
	Transition(ctx context.Context, id int64, req models.EnrollmentStateRequest) (*models.Enrollment, error)
	BulkApprove(ctx context.Context, eventID int64) ([]models.Enrollment, error)
	Update(ctx context.Context, id int64, req models.EnrollmentUpdateRequest) (*models.Enrollment, error)
	Delete(ctx context.Context, principal *models.Principal, id int64) error
	Fees(ctx context.Context, id int64) ([]models.Transaction, error)
	AddTrainingFee(ctx context.Context, id int64, req models.EnrollmentFeeRequest) (*models.Transaction, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List the enrollments of an event
// @Tags Enrollments
// @Produce json
// @Param id path int true "Event ID"
// @Param state query string false "waiting, approved, substitute or rejected"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	enrollments, err := h.enrollments.List(c.Request.Context(), eventID, models.EnrollmentState(c.Query("state")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// ForPerson godoc
// @Summary List a person's enrollments
// @Tags Enrollments
// @Produce json
// @Param id path int true "Person ID"
// @Success 200 {object} response.Envelope
// @Router /persons/{id}/enrollments [get]
func (h *EnrollmentHandler) ForPerson(c *gin.Context) {
	personID, ok := pathID(c, "id")
	if !ok {
		return
	}
	enrollments, err := h.enrollments.ForPerson(c.Request.Context(), personID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// CanEnroll godoc
// @Summary Check whether a person may enroll
// @Tags Enrollments
// @Produce json
// @Param id path int true "Event ID"
// @Param person_id query int false "Person ID, the active person when omitted"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/can-enroll [get]
func (h *EnrollmentHandler) CanEnroll(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	personID, err := queryID(c, "person_id")
	if err != nil {
		response.Error(c, err)
		return
	}
	principal := principalFrom(c)
	if personID == nil {
		if principal == nil || principal.ActivePerson == nil {
			response.Error(c, appErrors.Invalid("person_id", "person is required"))
			return
		}
		personID = &principal.ActivePerson.ID
	}
	if principal != nil && !principal.Manages(*personID) && !principal.User.IsSuperuser {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	check, err := h.enrollments.CanEnroll(c.Request.Context(), eventID, *personID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Enroll godoc
// @Summary Enroll a person
// @Description The active person is enrolled when person_id is omitted
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param payload body models.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req models.EnrollRequest
	if !bindJSON(c, &req, "enrollment") {
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), principalFrom(c), eventID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// BulkApprove godoc
// @Summary Approve waiting enrollments up to capacity
// @Tags Enrollments
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/enrollments/approve [post]
func (h *EnrollmentHandler) BulkApprove(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	approved, err := h.enrollments.BulkApprove(c.Request.Context(), eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approved, nil)
}

// Get godoc
// @Summary Get an enrollment
// @Tags Enrollments
// @Produce json
// @Param enrollmentId path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{enrollmentId} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "enrollmentId")
	if !ok {
		return
	}
	enrollment, err := h.enrollments.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Transition godoc
// @Summary Change the state of an enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param enrollmentId path int true "Enrollment ID"
// @Param payload body models.EnrollmentStateRequest true "Target state"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{enrollmentId}/state [put]
func (h *EnrollmentHandler) Transition(c *gin.Context) {
	id, ok := pathID(c, "enrollmentId")
	if !ok {
		return
	}
	var req models.EnrollmentStateRequest
	if !bindJSON(c, &req, "enrollment state") {
		return
	}
	enrollment, err := h.enrollments.Transition(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Update godoc
// @Summary Edit weekdays or the agreed fee
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param enrollmentId path int true "Enrollment ID"
// @Param payload body models.EnrollmentUpdateRequest true "Enrollment payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{enrollmentId} [put]
func (h *EnrollmentHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "enrollmentId")
	if !ok {
		return
	}
	var req models.EnrollmentUpdateRequest
	if !bindJSON(c, &req, "enrollment") {
		return
	}
	enrollment, err := h.enrollments.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Delete godoc
// @Summary Unenroll
// @Tags Enrollments
// @Param enrollmentId path int true "Enrollment ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/{enrollmentId} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "enrollmentId")
	if !ok {
		return
	}
	if err := h.enrollments.Delete(c.Request.Context(), principalFrom(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Fees godoc
// @Summary List the fees of an enrollment
// @Tags Enrollments
// @Produce json
// @Param enrollmentId path int true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{enrollmentId}/fees [get]
func (h *EnrollmentHandler) Fees(c *gin.Context) {
	id, ok := pathID(c, "enrollmentId")
	if !ok {
		return
	}
	fees, err := h.enrollments.Fees(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fees, nil)
}

// AddTrainingFee godoc
// @Summary Charge a period fee to a training enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param enrollmentId path int true "Enrollment ID"
// @Param payload body models.EnrollmentFeeRequest true "Fee payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments/{enrollmentId}/fees [post]
func (h *EnrollmentHandler) AddTrainingFee(c *gin.Context) {
	id, ok := pathID(c, "enrollmentId")
	if !ok {
		return
	}
	var req models.EnrollmentFeeRequest
	if !bindJSON(c, &req, "fee") {
		return
	}
	fee, err := h.enrollments.AddTrainingFee(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, fee)
}
