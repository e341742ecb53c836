package mw

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InternalKeyHeader carries the shared secret for privileged routes.
const InternalKeyHeader = "X-Internal-Key"

// InternalKey guards privileged routes with a shared secret. With no key
// configured every request is refused.
func InternalKey(key string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "internal api is disabled"})
			return
		}
		sent := c.GetHeader(InternalKeyHeader)
		if subtle.ConstantTimeCompare([]byte(sent), []byte(key)) != 1 {
			log.Warn("rejected internal request",
				zap.String("path", c.FullPath()),
				zap.String("client_ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid internal key"})
			return
		}
		c.Next()
	}
}
