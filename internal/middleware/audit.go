package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/campus-admin-api/internal/models"
	"github.com/campushq/campus-admin-api/internal/repository"
)

// Audit records an audit trail entry after the handler chain finishes.
// Failed requests are not logged; the trail tracks what happened, not
// what was attempted.
func Audit(repo *repository.UserRepository, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		entry := models.AuditLog{
			UserID:    actorID(c),
			Action:    action,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		entry.NewValues, _ = json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		_ = repo.CreateAuditLog(c.Request.Context(), &entry)
	}
}

func actorID(c *gin.Context) *string {
	claims, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, ok := claims.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return &user.UserID
}
