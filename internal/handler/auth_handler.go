package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/models"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	LoginOIDC(ctx context.Context, req models.OIDCLoginRequest) (*models.LoginResponse, error)
	RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error)
	Logout(ctx context.Context, refreshToken string, userID int64) error
	ChangePassword(ctx context.Context, userID int64, req models.ChangePasswordRequest) error
	ForgotPassword(ctx context.Context, req models.ResetPasswordRequest) error
	ResetPassword(ctx context.Context, req models.ConfirmResetPasswordRequest) error
	SwitchPerson(ctx context.Context, principal *models.Principal, req models.SwitchPersonRequest) (*models.LoginResponse, error)
	IssueAPIToken(ctx context.Context, userID int64) (*models.APIToken, error)
	RevokeAPIToken(ctx context.Context, userID int64) error
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service authService
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService) *AuthHandler {
	return &AuthHandler{service: svc}
}

type meResponse struct {
	PersonID         int64          `json:"person_id"`
	IsSuperuser      bool           `json:"is_superuser"`
	Permissions      []string       `json:"permissions"`
	Person           *models.Person `json:"person"`
	ActivePerson     *models.Person `json:"active_person"`
	ManagedPersonIDs []int64        `json:"managed_person_ids"`
	ViaToken         bool           `json:"via_token"`
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate user by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req, "login") {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// LoginOIDC godoc
// @Summary Authenticate through the identity provider
// @Description Exchange an OpenID Connect authorization code for a session
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.OIDCLoginRequest true "Authorization code"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/oidc [post]
func (h *AuthHandler) LoginOIDC(c *gin.Context) {
	var req models.OIDCLoginRequest
	if !bindJSON(c, &req, "oidc") {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.LoginOIDC(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Refresh access token
// @Description Exchange refresh token for new access token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RefreshTokenRequest true "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	if !bindJSON(c, &req, "refresh") {
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.RefreshToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary Logout current session
// @Description Revoke refresh token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body map[string]string true "Refresh token"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "refresh token required"))
		return
	}

	if err := h.service.Logout(c.Request.Context(), payload.RefreshToken, principal.User.PersonID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ChangePassword godoc
// @Summary Change password
// @Description Change password for current user
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ChangePasswordRequest true "Change password"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ChangePasswordRequest
	if !bindJSON(c, &req, "password") {
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), principal.User.PersonID, req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ForgotPassword godoc
// @Summary Forgot password
// @Description Initiate forgot password flow
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ResetPasswordRequest true "Forgot password"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if !bindJSON(c, &req, "password reset") {
		return
	}

	if err := h.service.ForgotPassword(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, gin.H{"message": "if the email exists, a reset link will be sent"}, nil)
}

// ResetPassword godoc
// @Summary Reset password
// @Description Reset password with token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ConfirmResetPasswordRequest true "Reset password"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ConfirmResetPasswordRequest
	if !bindJSON(c, &req, "password reset") {
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Me godoc
// @Summary Get current user
// @Description Returns the authenticated user, their own person and the person they act as
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	managed := principal.ManagedPersonIDs
	if managed == nil {
		managed = []int64{}
	}
	response.JSON(c, http.StatusOK, meResponse{
		PersonID:         principal.User.PersonID,
		IsSuperuser:      principal.User.IsSuperuser,
		Permissions:      principal.User.Permissions,
		Person:           principal.Person,
		ActivePerson:     principal.ActivePerson,
		ManagedPersonIDs: managed,
		ViaToken:         principal.ViaToken,
	}, nil)
}

// SwitchPerson godoc
// @Summary Act as another person
// @Description Reissues the session for the user's own person or a person they manage
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.SwitchPersonRequest true "Person to act as"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/switch-person [post]
func (h *AuthHandler) SwitchPerson(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.SwitchPersonRequest
	if !bindJSON(c, &req, "switch person") {
		return
	}
	res, err := h.service.SwitchPerson(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// IssueToken godoc
// @Summary Issue an API token
// @Description Replaces any previous API token of the current user
// @Tags Authentication
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /auth/token [post]
func (h *AuthHandler) IssueToken(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	token, err := h.service.IssueAPIToken(c.Request.Context(), principal.User.PersonID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, token)
}

// RevokeToken godoc
// @Summary Revoke the API token
// @Tags Authentication
// @Success 204 {object} response.Envelope
// @Router /auth/token [delete]
func (h *AuthHandler) RevokeToken(c *gin.Context) {
	principal := principalFrom(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.RevokeAPIToken(c.Request.Context(), principal.User.PersonID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
