package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// OIDCLoginRequest carries the authorization code returned by the identity provider.
type OIDCLoginRequest struct {
	Code      string `json:"code" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// ResetPasswordRequest payload for initiating reset flow.
type ResetPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ConfirmResetPasswordRequest completes reset flow.
type ConfirmResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// SwitchPersonRequest selects the person the session acts as.
type SwitchPersonRequest struct {
	PersonID int64 `json:"person_id" validate:"required,min=1"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID             int64    `json:"id"`
	ActivePersonID int64    `json:"active_person_id"`
	Email          string   `json:"email"`
	FullName       string   `json:"full_name"`
	IsSuperuser    bool     `json:"is_superuser"`
	Permissions    []string `json:"permissions"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID         int64  `json:"user_id"`
	ActivePersonID int64  `json:"active_person_id"`
	Email          string `json:"email"`
	jwt.RegisteredClaims
}

// Principal is the resolved identity behind a request: the user, the user's
// own person and the person the user currently acts as.
type Principal struct {
	User             *User
	Person           *Person
	ActivePerson     *Person
	ManagedPersonIDs []int64
	ViaToken         bool
}

// Manages reports whether personID is the user's own person or one it manages.
func (p *Principal) Manages(personID int64) bool {
	if p == nil || p.User == nil {
		return false
	}
	if p.User.PersonID == personID {
		return true
	}
	for _, id := range p.ManagedPersonIDs {
		if id == personID {
			return true
		}
	}
	return false
}

// ActingAsSelf reports whether the active person is the user's own person.
func (p *Principal) ActingAsSelf() bool {
	return p != nil && p.ActivePerson != nil && p.User != nil && p.ActivePerson.ID == p.User.PersonID
}
