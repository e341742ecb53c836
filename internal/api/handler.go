package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dream-push-backend/internal/notification"
	"dream-push-backend/internal/store"
)

// Processor runs a single processing pass on demand.
type Processor interface {
	ProcessOnce(ctx context.Context) (notification.PassResult, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store          store.Store
	processor      Processor
	vapidPublicKey string
	log            *zap.Logger
}

// NewHandler creates a new API handler. processor may be nil, in which case
// on-demand passes are unavailable.
func NewHandler(s store.Store, processor Processor, vapidPublicKey string, log *zap.Logger) *Handler {
	return &Handler{
		store:          s,
		processor:      processor,
		vapidPublicKey: vapidPublicKey,
		log:            log.Named("api"),
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.log.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
