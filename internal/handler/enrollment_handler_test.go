package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vzs-club-api/internal/models"
	"github.com/noah-isme/vzs-club-api/internal/service"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type enrollmentServiceMock struct {
	listState   models.EnrollmentState
	checkPerson int64
	enrollEvent int64
	enrollReq   models.EnrollRequest
	enrollErr   error
	transition  models.EnrollmentStateRequest
	deletedBy   *models.Principal
	feeReq      models.EnrollmentFeeRequest
}

func (m *enrollmentServiceMock) List(ctx context.Context, eventID int64, state models.EnrollmentState) ([]models.EnrollmentDetail, error) {
	m.listState = state
	return []models.EnrollmentDetail{}, nil
}

func (m *enrollmentServiceMock) ForPerson(ctx context.Context, personID int64) ([]models.Enrollment, error) {
	return []models.Enrollment{{PersonID: personID}}, nil
}

func (m *enrollmentServiceMock) Get(ctx context.Context, id int64) (*models.Enrollment, error) {
	return &models.Enrollment{ID: id}, nil
}

func (m *enrollmentServiceMock) CanEnroll(ctx context.Context, eventID, personID int64) (*service.EnrollmentCheck, error) {
	m.checkPerson = personID
	return &service.EnrollmentCheck{Allowed: false, Reasons: []string{"person is too young"}}, nil
}

func (m *enrollmentServiceMock) Enroll(ctx context.Context, principal *models.Principal, eventID int64, req models.EnrollRequest) (*models.Enrollment, error) {
	m.enrollEvent = eventID
	m.enrollReq = req
	if m.enrollErr != nil {
		return nil, m.enrollErr
	}
	return &models.Enrollment{ID: 1, EventID: eventID, State: models.EnrollmentSubstitute}, nil
}

func (m *enrollmentServiceMock) Transition(ctx context.Context, id int64, req models.EnrollmentStateRequest) (*models.Enrollment, error) {
	m.transition = req
	return &models.Enrollment{ID: id, State: req.State}, nil
}

func (m *enrollmentServiceMock) BulkApprove(ctx context.Context, eventID int64) ([]models.Enrollment, error) {
	return []models.Enrollment{}, nil
}

func (m *enrollmentServiceMock) Update(ctx context.Context, id int64, req models.EnrollmentUpdateRequest) (*models.Enrollment, error) {
	return &models.Enrollment{ID: id}, nil
}

func (m *enrollmentServiceMock) Delete(ctx context.Context, principal *models.Principal, id int64) error {
	m.deletedBy = principal
	return appErrors.Clone(appErrors.ErrStateConflict, "the unenroll deadline has passed")
}

func (m *enrollmentServiceMock) Fees(ctx context.Context, id int64) ([]models.Transaction, error) {
	return []models.Transaction{}, nil
}

func (m *enrollmentServiceMock) AddTrainingFee(ctx context.Context, id int64, req models.EnrollmentFeeRequest) (*models.Transaction, error) {
	m.feeReq = req
	return &models.Transaction{ID: 77, Amount: -req.Amount}, nil
}

func TestEnrollmentHandlerEnroll(t *testing.T) {
	svc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(svc)

	c, w := newTestContext(http.MethodPost, "/events/4/enrollments", map[string]interface{}{"weekdays": []int{1, 3}}, param("id", "4"))
	asPerson(c, 2)
	handler.Enroll(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(4), svc.enrollEvent)
	assert.Equal(t, []int{1, 3}, svc.enrollReq.Weekdays)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "substitute", data["state"])

	svc.enrollErr = appErrors.Clone(appErrors.ErrStateConflict, "the enrollment deadline has passed")
	c, w = newTestContext(http.MethodPost, "/events/4/enrollments", map[string]interface{}{}, param("id", "4"))
	asPerson(c, 2)
	handler.Enroll(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEnrollmentHandlerCanEnroll(t *testing.T) {
	svc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(svc)

	c, w := newTestContext(http.MethodGet, "/events/4/can-enroll", nil, param("id", "4"))
	asPerson(c, 2)
	handler.CanEnroll(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), svc.checkPerson)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, false, data["allowed"])

	c, w = newTestContext(http.MethodGet, "/events/4/can-enroll?person_id=99", nil, param("id", "4"))
	asPerson(c, 2)
	handler.CanEnroll(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	c, w = newTestContext(http.MethodGet, "/events/4/can-enroll?person_id=abc", nil, param("id", "4"))
	asPerson(c, 2)
	handler.CanEnroll(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollmentHandlerStateAndFees(t *testing.T) {
	svc := &enrollmentServiceMock{}
	handler := NewEnrollmentHandler(svc)

	c, w := newTestContext(http.MethodPut, "/enrollments/8/state", models.EnrollmentStateRequest{State: models.EnrollmentApproved, Weekdays: []int{2}}, param("enrollmentId", "8"))
	handler.Transition(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.EnrollmentApproved, svc.transition.State)

	c, w = newTestContext(http.MethodPost, "/enrollments/8/fees", map[string]interface{}{
		"amount": 1500, "reason": "Tréninky jaro", "date_due": "2024-04-30",
	}, param("enrollmentId", "8"))
	handler.AddTrainingFee(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1500, svc.feeReq.Amount)

	c, w = newTestContext(http.MethodDelete, "/enrollments/8", nil, param("enrollmentId", "8"))
	principal := asPerson(c, 2)
	handler.Delete(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Same(t, principal, svc.deletedBy)
}
