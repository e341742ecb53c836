package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dream-push-backend/internal/model"
	"dream-push-backend/internal/pusherr"
)

const (
	defaultPendingLimit = 100
	maxPendingLimit     = 1000
)

// GetUserTokens is the privileged bulk read of a user's active tokens.
func (h *Handler) GetUserTokens(c *gin.Context) {
	h.listDevices(c, c.Param("user_id"))
}

type pendingResponse struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ClaimedBy string         `json:"claimed_by,omitempty"`
}

// GetPendingNotifications lists queued notifications that are still pending.
func (h *Handler) GetPendingNotifications(c *gin.Context) {
	limit := defaultPendingLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxPendingLimit)
	}

	rows, err := h.store.ListPending(c.Request.Context(), limit)
	if err != nil {
		h.internalError(c, "failed to list pending notifications", err)
		return
	}

	out := make([]pendingResponse, len(rows))
	for i, n := range rows {
		out[i] = toPendingResponse(n)
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

func toPendingResponse(n model.QueuedNotification) pendingResponse {
	return pendingResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Body:      n.Body,
		Data:      n.Data,
		CreatedAt: n.CreatedAt,
		ClaimedBy: n.ClaimedBy,
	}
}

// PostProcess runs one processing pass and returns its summary.
func (h *Handler) PostProcess(c *gin.Context) {
	if h.processor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "processor is not configured"})
		return
	}

	result, err := h.processor.ProcessOnce(c.Request.Context())
	if err != nil {
		kind := pusherr.KindOf(err)
		h.log.Error("on-demand pass failed", zap.Stringer("kind", kind), zap.Error(err))
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "kind": kind.String()})
		return
	}

	c.JSON(http.StatusOK, result)
}
