package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

type occurrenceService interface {
	Get(ctx context.Context, id int64) (*models.Occurrence, error)
	Roster(ctx context.Context, id int64) (*models.OccurrenceRoster, error)
	ForPerson(ctx context.Context, personID int64) ([]models.OccurrenceDetail, error)
	Update(ctx context.Context, id int64, req models.OccurrenceRequest) (*models.Occurrence, error)
	Close(ctx context.Context, id int64, req models.CloseOccurrenceRequest) (*models.OccurrenceRoster, error)
	Reopen(ctx context.Context, id int64) (*models.Occurrence, error)
	ExcuseParticipant(ctx context.Context, principal *models.Principal, id, personID int64) error
	ExcuseCoach(ctx context.Context, principal *models.Principal, id, personID int64) error
	CancelParticipantExcuse(ctx context.Context, id, personID int64) error
	CancelCoachExcuse(ctx context.Context, id, personID int64) error
	AddCoach(ctx context.Context, principal *models.Principal, id int64, req models.OneTimeCoachRequest) (*models.CoachAttendance, error)
	AddParticipant(ctx context.Context, principal *models.Principal, id int64, req models.OneTimeParticipantRequest) (*models.ParticipantAttendance, error)
	RemoveCoach(ctx context.Context, principal *models.Principal, id, personID int64) error
	RemoveParticipant(ctx context.Context, principal *models.Principal, id, personID int64) error
}

// OccurrenceHandler exposes single occurrences and their attendance.
type OccurrenceHandler struct {
	service occurrenceService
}

// NewOccurrenceHandler builds a new handler.
func NewOccurrenceHandler(service occurrenceService) *OccurrenceHandler {
	return &OccurrenceHandler{service: service}
}

// Get godoc
// @Summary Get an occurrence
// @Tags Occurrences
// @Produce json
// @Param occurrenceId path int true "Occurrence ID"
// @Success 200 {object} response.Envelope
// @Router /occurrences/{occurrenceId} [get]
func (h *OccurrenceHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "occurrenceId")
	if !ok {
		return
	}
	occurrence, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occurrence, nil)
}

// Roster godoc
// @Summary Attendance of an occurrence
// @Tags Occurrences
// @Produce json
// @Param occurrenceId path int true "Occurrence ID"
// @Success 200 {object} response.Envelope
// @Router /occurrences/{occurrenceId}/roster [get]
func (h *OccurrenceHandler) Roster(c *gin.Context) {
	id, ok := pathID(c, "occurrenceId")
	if !ok {
		return
	}
	roster, err := h.service.Roster(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// ForPerson godoc
// @Summary Upcoming occurrences of a person
// @Tags Occurrences
// @Produce json
// @Param id path int true "Person ID"
// @Success 200 {object} response.Envelope
// @Router /persons/{id}/occurrences [get]
func (h *OccurrenceHandler) ForPerson(c *gin.Context) {
	personID, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, err := h.service.ForPerson(c.Request.Context(), personID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Update godoc
// @Summary Change the hours of a one-time occurrence
// @Tags Occurrences
// @Accept json
// @Produce json
// @Param occurrenceId path int true "Occurrence ID"
// @Param payload body models.OccurrenceRequest true "Hours"
// @Success 200 {object} response.Envelope
// @Router /occurrences/{occurrenceId} [put]
func (h *OccurrenceHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "occurrenceId")
	if !ok {
		return
	}
	var req models.OccurrenceRequest
	if !bindJSON(c, &req, "occurrence") {
		return
	}
	occurrence, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occurrence, nil)
}

// Close godoc
// @Summary Close an occurrence
// @Description Listed persons are marked absent, present coaches earn their wage
// @Tags Occurrences
// @Accept json
// @Produce json
// @Param occurrenceId path int true "Occurrence ID"
// @Param payload body models.CloseOccurrenceRequest true "Absent participants and coaches"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /occurrences/{occurrenceId}/close [post]
func (h *OccurrenceHandler) Close(c *gin.Context) {
	id, ok := pathID(c, "occurrenceId")
	if !ok {
		return
	}
	var req models.CloseOccurrenceRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "close") {
		return
	}
	roster, err := h.service.Close(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// Reopen godoc
// @Summary Reopen a closed occurrence
// @Tags Occurrences
// @Produce json
// @Param occurrenceId path int true "Occurrence ID"
// @Success 200 {object} response.Envelope
// @Router /occurrences/{occurrenceId}/reopen [post]
func (h *OccurrenceHandler) Reopen(c *gin.Context) {
	id, ok := pathID(c, "occurrenceId")
	if !ok {
		return
	}
	occurrence, err := h.service.Reopen(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occurrence, nil)
}

// ExcuseParticipant godoc
// @Summary Excuse a participant
// @Tags Occurrences
// @Param occurrenceId path int true "Occurrence ID"
// @Param personId path int true "Person ID"
// @Success 204 {object} response.Envelope
// @Router /occurrences/{occurrenceId}/participants/{personId}/excuse [post]
func (h *OccurrenceHandler) ExcuseParticipant(c *gin.Context) {
	h.withPrincipal(c, h.service.ExcuseParticipant)
}

// ExcuseCoach godoc
// @Summary Excuse a coach
// @Tags Occurrences
// @Param occurrenceId path int true "Occurrence ID"
// @Param personId path int true "Person ID"
// @Success 204 {object} response.Envelope
// @Router /occurrences/{occurrenceId}/coaches/{personId}/excuse [post]
func (h *OccurrenceHandler) ExcuseCoach(c *gin.Context) {
	h.withPrincipal(c, h.service.ExcuseCoach)
}

// CancelParticipantExcuse godoc
// @Summary Cancel a participant's excuse
// @Tags Occurrences
// @Param occurrenceId path int true "Occurrence ID"
// @Param personId path int true "Person ID"
// @Success 204 {object} response.Envelope
// @Router /occurrences/{occurrenceId}/participants/{personId}/excuse [delete]
func (h *OccurrenceHandler) CancelParticipantExcuse(c *gin.Context) {
	h.withoutPrincipal(c, h.service.CancelParticipantExcuse)
}

// CancelCoachExcuse godoc
// @Summary Cancel a coach's excuse
// @Tags Occurrences
// @Param occurrenceId path int true "Occurrence ID"
// @Param personId path int true "Person ID"
// @Success 204 {object} response.Envelope
// @Router /occurrences/{occurrenceId}/coaches/{personId}/excuse [delete]
func (h *OccurrenceHandler) CancelCoachExcuse(c *gin.Context) {
	h.withoutPrincipal(c, h.service.CancelCoachExcuse)
}

// AddCoach godoc
// @Summary Add a one-time coach
// @Tags Occurrences
// @Accept json
// @Produce json
// @Param occurrenceId path int true "Occurrence ID"
// @Param payload body models.OneTimeCoachRequest true "Coach and position"
// @Success 201 {object} response.Envelope
// @Router /occurrences/{occurrenceId}/coaches [post]
func (h *OccurrenceHandler) AddCoach(c *gin.Context) {
	id, ok := pathID(c, "occurrenceId")
	if !ok {
		return
	}
	var req models.OneTimeCoachRequest
	if !bindJSON(c, &req, "coach") {
		return
	}
	row, err := h.service.AddCoach(c.Request.Context(), principalFrom(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, row)
}

// AddParticipant godoc
// @Summary Add a one-time participant
// @Tags Occurrences
// @Accept json
// @Produce json
// @Param occurrenceId path int true "Occurrence ID"
// @Param payload body models.OneTimeParticipantRequest true "Participant"
// @Success 201 {object} response.Envelope
// @Router /occurrences/{occurrenceId}/participants [post]
func (h *OccurrenceHandler) AddParticipant(c *gin.Context) {
	id, ok := pathID(c, "occurrenceId")
	if !ok {
		return
	}
	var req models.OneTimeParticipantRequest
	if !bindJSON(c, &req, "participant") {
		return
	}
	row, err := h.service.AddParticipant(c.Request.Context(), principalFrom(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, row)
}

// RemoveCoach godoc
// @Summary Remove a one-time coach
// @Tags Occurrences
// @Param occurrenceId path int true "Occurrence ID"
// @Param personId path int true "Person ID"
// @Success 204 {object} response.Envelope
// @Router /occurrences/{occurrenceId}/coaches/{personId} [delete]
func (h *OccurrenceHandler) RemoveCoach(c *gin.Context) {
	h.withPrincipal(c, h.service.RemoveCoach)
}

// RemoveParticipant godoc
// @Summary Remove a one-time participant
// @Tags Occurrences
// @Param occurrenceId path int true "Occurrence ID"
// @Param personId path int true "Person ID"
// @Success 204 {object} response.Envelope
// @Router /occurrences/{occurrenceId}/participants/{personId} [delete]
func (h *OccurrenceHandler) RemoveParticipant(c *gin.Context) {
	h.withPrincipal(c, h.service.RemoveParticipant)
}

func (h *OccurrenceHandler) withPrincipal(c *gin.Context, apply func(context.Context, *models.Principal, int64, int64) error) {
	id, ok := pathID(c, "occurrenceId")
	if !ok {
		return
	}
	personID, ok := pathID(c, "personId")
	if !ok {
		return
	}
	if err := apply(c.Request.Context(), principalFrom(c), id, personID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *OccurrenceHandler) withoutPrincipal(c *gin.Context, apply func(context.Context, int64, int64) error) {
	h.withPrincipal(c, func(ctx context.Context, _ *models.Principal, id, personID int64) error {
		return apply(ctx, id, personID)
	})
}
