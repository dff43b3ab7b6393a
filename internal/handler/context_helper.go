package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/vzs-club-api/internal/middleware"
	"github.com/noah-isme/vzs-club-api/internal/models"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
	"github.com/noah-isme/vzs-club-api/pkg/response"
)

func principalFrom(c *gin.Context) *models.Principal {
	principal, _ := middleware.PrincipalFrom(c)
	return principal
}

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, _ := middleware.ClaimsFrom(c)
	return claims
}

// pathID parses a numeric path parameter, answering 404 when it is malformed.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "resource not found"))
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dest interface{}, what string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid "+what+" payload"))
		return false
	}
	return true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return models.NormalizePage(page, size)
}

func queryDate(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Invalid(name, "expected YYYY-MM-DD")
	}
	return &t, nil
}

func queryID(c *gin.Context, name string) (*int64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, appErrors.Invalid(name, "expected a positive integer")
	}
	return &id, nil
}
