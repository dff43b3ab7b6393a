package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vzs-club-api/internal/models"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type authServiceMock struct {
	loginReq      models.LoginRequest
	loginErr      error
	logoutToken   string
	logoutUser    int64
	switchReq     models.SwitchPersonRequest
	switchErr     error
	issuedFor     int64
	revokedFor    int64
	passwordUser  int64
	loginCalled   bool
	refreshCalled bool
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.loginCalled = true
	m.loginReq = req
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *authServiceMock) LoginOIDC(ctx context.Context, req models.OIDCLoginRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{AccessToken: "access"}, nil
}

func (m *authServiceMock) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	m.refreshCalled = true
	return &models.RefreshTokenResponse{AccessToken: "access"}, nil
}

func (m *authServiceMock) Logout(ctx context.Context, refreshToken string, userID int64) error {
	m.logoutToken = refreshToken
	m.logoutUser = userID
	return nil
}

func (m *authServiceMock) ChangePassword(ctx context.Context, userID int64, req models.ChangePasswordRequest) error {
	m.passwordUser = userID
	return nil
}

func (m *authServiceMock) ForgotPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	return nil
}

func (m *authServiceMock) ResetPassword(ctx context.Context, req models.ConfirmResetPasswordRequest) error {
	return nil
}

func (m *authServiceMock) SwitchPerson(ctx context.Context, principal *models.Principal, req models.SwitchPersonRequest) (*models.LoginResponse, error) {
	m.switchReq = req
	if m.switchErr != nil {
		return nil, m.switchErr
	}
	return &models.LoginResponse{AccessToken: "switched"}, nil
}

func (m *authServiceMock) IssueAPIToken(ctx context.Context, userID int64) (*models.APIToken, error) {
	m.issuedFor = userID
	return &models.APIToken{Key: "0123456789abcdef", UserID: userID}, nil
}

func (m *authServiceMock) RevokeAPIToken(ctx context.Context, userID int64) error {
	m.revokedFor = userID
	return nil
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &authServiceMock{}
	handler := NewAuthHandler(svc)

	c, w := newTestContext(http.MethodPost, "/auth/login", models.LoginRequest{Email: "jana@example.com", Password: "tajneheslo"})
	c.Request.Header.Set("User-Agent", "vzs-test")
	handler.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "vzs-test", svc.loginReq.UserAgent)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "access", data["access_token"])
}

func TestAuthHandlerLoginFailures(t *testing.T) {
	svc := &authServiceMock{loginErr: appErrors.Clone(appErrors.ErrUnauthorized, "invalid credentials")}
	handler := NewAuthHandler(svc)

	c, w := newTestContext(http.MethodPost, "/auth/login", `{"email":`)
	handler.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, svc.loginCalled)

	c, w = newTestContext(http.MethodPost, "/auth/login", models.LoginRequest{Email: "jana@example.com", Password: "x"})
	handler.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerSessionEndpointsUsePrincipal(t *testing.T) {
	svc := &authServiceMock{}
	handler := NewAuthHandler(svc)

	c, w := newTestContext(http.MethodPost, "/auth/logout", map[string]string{"refresh_token": "r-1"})
	handler.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newTestContext(http.MethodPost, "/auth/logout", map[string]string{"refresh_token": "r-1"})
	asPerson(c, 9)
	handler.Logout(c)
	assert.Equal(t, http.StatusNoContent, statusOf(c, w))
	assert.Equal(t, "r-1", svc.logoutToken)
	assert.Equal(t, int64(9), svc.logoutUser)

	c, w = newTestContext(http.MethodPost, "/auth/token", nil)
	asPerson(c, 9)
	handler.IssueToken(c)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(9), svc.issuedFor)

	c, w = newTestContext(http.MethodDelete, "/auth/token", nil)
	asPerson(c, 9)
	handler.RevokeToken(c)
	assert.Equal(t, http.StatusNoContent, statusOf(c, w))
	assert.Equal(t, int64(9), svc.revokedFor)
}

func TestAuthHandlerMe(t *testing.T) {
	handler := NewAuthHandler(&authServiceMock{})

	c, w := newTestContext(http.MethodGet, "/auth/me", nil)
	principal := asPerson(c, 4, "groups")
	principal.ActivePerson = &models.Person{ID: 11, FirstName: "Ema"}
	principal.ManagedPersonIDs = []int64{11}
	handler.Me(c)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.EqualValues(t, 4, data["person_id"])
	assert.EqualValues(t, 11, data["active_person"].(map[string]interface{})["id"])
	assert.Equal(t, []interface{}{float64(11)}, data["managed_person_ids"])
	assert.Equal(t, []interface{}{"groups"}, data["permissions"])
}

func TestAuthHandlerSwitchPerson(t *testing.T) {
	svc := &authServiceMock{switchErr: appErrors.ErrForbidden}
	handler := NewAuthHandler(svc)

	c, w := newTestContext(http.MethodPost, "/auth/switch-person", models.SwitchPersonRequest{PersonID: 12})
	asPerson(c, 4)
	handler.SwitchPerson(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, int64(12), svc.switchReq.PersonID)
}
