package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetVAPIDPublicKey returns the VAPID public key used by browsers subscribing
// on the web registration path.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.vapidPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vapid keys are not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": h.vapidPublicKey})
}
