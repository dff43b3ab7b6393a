package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Audit records successful mutating requests along with the acting user,
// the active person and the authorized action.
func Audit(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if logger == nil || c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			zap.String("ip", c.ClientIP()),
		}
		if action, ok := c.Get(ContextActionKey); ok {
			fields = append(fields, zap.Any("action", action))
		}
		if principal, ok := PrincipalFrom(c); ok && principal.User != nil {
			fields = append(fields, zap.Int64("user_person_id", principal.User.PersonID), zap.Bool("api_token", principal.ViaToken))
			if principal.ActivePerson != nil {
				fields = append(fields, zap.Int64("active_person_id", principal.ActivePerson.ID))
			}
		}
		logger.Info("audit", fields...)
	}
}
