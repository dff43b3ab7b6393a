package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/models"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
	"github.com/noah-isme/vzs-club-api/pkg/logger"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// ContextPrincipalKey is the gin context key storing the resolved principal.
const ContextPrincipalKey = "principal"

// Authenticator resolves credentials into a principal.
type Authenticator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
	Principal(ctx context.Context, claims *models.JWTClaims) (*models.Principal, error)
	AuthenticateToken(ctx context.Context, key string) (*models.Principal, error)
}

// Auth protects routes by requiring either a bearer access token or an API
// token ("Token <key>").
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if err := authenticate(c, auth, header); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuth attaches the principal when present but does not block.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" {
			_ = authenticate(c, auth, header)
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, auth Authenticator, header string) error {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	credential := strings.TrimSpace(parts[1])
	ctx := c.Request.Context()

	switch {
	case strings.EqualFold(parts[0], "Bearer"):
		claims, err := auth.ValidateToken(credential)
		if err != nil {
			return err
		}
		principal, err := auth.Principal(ctx, claims)
		if err != nil {
			return err
		}
		c.Set(ContextUserKey, claims)
		c.Set(ContextPrincipalKey, principal)
	case strings.EqualFold(parts[0], "Token"):
		principal, err := auth.AuthenticateToken(ctx, credential)
		if err != nil {
			return err
		}
		c.Set(ContextPrincipalKey, principal)
	default:
		return appErrors.Clone(appErrors.ErrUnauthorized, "unsupported authorization scheme")
	}
	if principal, ok := PrincipalFrom(c); ok && principal.User != nil {
		c.Set(logger.ActorKey, principal.User.PersonID)
	}
	return nil
}

// PrincipalFrom returns the principal stored by Auth.
func PrincipalFrom(c *gin.Context) (*models.Principal, bool) {
	value, ok := c.Get(ContextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*models.Principal)
	return principal, ok && principal != nil
}

// ClaimsFrom returns the access-token claims, absent for API-token requests.
func ClaimsFrom(c *gin.Context) (*models.JWTClaims, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok && claims != nil
}
