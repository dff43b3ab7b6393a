package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vzs-club-api/internal/models"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

type fakeAuthenticator struct {
	principal *models.Principal
	tokenKey  string
}

func (f *fakeAuthenticator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good-jwt" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return &models.JWTClaims{UserID: f.principal.User.PersonID, ActivePersonID: f.principal.ActivePerson.ID}, nil
}

func (f *fakeAuthenticator) Principal(ctx context.Context, claims *models.JWTClaims) (*models.Principal, error) {
	return f.principal, nil
}

func (f *fakeAuthenticator) AuthenticateToken(ctx context.Context, key string) (*models.Principal, error) {
	if key != f.tokenKey {
		return nil, appErrors.ErrUnauthorized
	}
	p := *f.principal
	p.ViaToken = true
	return &p, nil
}

func newFakeAuthenticator() *fakeAuthenticator {
	person := &models.Person{ID: 3}
	return &fakeAuthenticator{
		principal: &models.Principal{User: &models.User{PersonID: 3}, Person: person, ActivePerson: person},
		tokenKey:  "0123456789abcdef",
	}
}

func performAuth(t *testing.T, handler gin.HandlerFunc, header string) (*httptest.ResponseRecorder, *models.Principal) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var seen *models.Principal
	r := gin.New()
	r.GET("/me", handler, func(c *gin.Context) {
		seen, _ = PrincipalFrom(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, seen
}

func TestAuthSchemes(t *testing.T) {
	auth := newFakeAuthenticator()

	w, principal := performAuth(t, Auth(auth), "Bearer good-jwt")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, principal)
	assert.False(t, principal.ViaToken)

	w, principal = performAuth(t, Auth(auth), "Token 0123456789abcdef")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, principal)
	assert.True(t, principal.ViaToken)
}

func TestAuthRejects(t *testing.T) {
	auth := newFakeAuthenticator()
	cases := map[string]string{
		"missing":      "",
		"bad jwt":      "Bearer nope",
		"bad token":    "Token nope",
		"basic scheme": "Basic dXNlcjpwYXNz",
		"empty value":  "Bearer ",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			w, principal := performAuth(t, Auth(auth), header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Nil(t, principal)
		})
	}
}

func TestOptionalAuthPassesThrough(t *testing.T) {
	auth := newFakeAuthenticator()

	w, principal := performAuth(t, OptionalAuth(auth), "Bearer nope")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, principal)

	w, principal = performAuth(t, OptionalAuth(auth), "Bearer good-jwt")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, principal)
}
