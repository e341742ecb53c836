package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"dream-push-backend/config"
	"dream-push-backend/internal/mw"
	"dream-push-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, s store.Store, processor Processor, vapidPublicKey string, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger(log.Named("http")))

	handler := NewHandler(s, processor, vapidPublicKey, log)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	caching := mw.NewResponseCache(time.Duration(cfg.CacheTTLSeconds) * time.Second).Handler()

	r.GET("/health", handler.Health)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/devices", handler.GetDevices)
		api.PUT("/devices", handler.PutDevice)
		api.DELETE("/devices", handler.DeleteDevice)
		api.GET("/vapid_public_key", caching, handler.GetVAPIDPublicKey)
	}

	internal := api.Group("/internal")
	internal.Use(mw.InternalKey(cfg.InternalAPIKey, log.Named("internal")))
	{
		internal.GET("/users/:user_id/tokens", handler.GetUserTokens)
		internal.GET("/notifications/pending", handler.GetPendingNotifications)
		internal.POST("/process", handler.PostProcess)
	}

	return r
}
