package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dream-push-backend/internal/model"
	"dream-push-backend/internal/parse"
	"dream-push-backend/internal/store"
)

type putDeviceRequest struct {
	UserID     string           `json:"user_id" binding:"required"`
	Token      string           `json:"token" binding:"required"`
	Platform   string           `json:"platform" binding:"required"`
	DeviceInfo model.DeviceInfo `json:"device_info"`
}

type deviceResponse struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	Token      string           `json:"token"`
	Platform   model.Platform   `json:"platform"`
	DeviceInfo model.DeviceInfo `json:"device_info"`
	Active     bool             `json:"active"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func toDeviceResponse(t model.DeviceToken) deviceResponse {
	return deviceResponse{
		ID:         t.ID,
		UserID:     t.UserID,
		Token:      t.Token,
		Platform:   t.Platform,
		DeviceInfo: t.DeviceInfo.Data(),
		Active:     t.Active,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

// PutDevice registers a device token or refreshes an existing registration.
func (h *Handler) PutDevice(c *gin.Context) {
	var req putDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	platform, err := parse.Platform(req.Platform)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid platform"})
		return
	}
	if req.DeviceInfo.RegisteredAt.IsZero() {
		req.DeviceInfo.RegisteredAt = time.Now().UTC()
	}

	stored, err := h.store.UpsertToken(c.Request.Context(), store.Registration{
		UserID:   strings.TrimSpace(req.UserID),
		Token:    req.Token,
		Platform: platform,
		Info:     req.DeviceInfo,
	})
	if err != nil {
		h.internalError(c, "failed to store device token", err)
		return
	}

	c.JSON(http.StatusOK, toDeviceResponse(stored))
}

type deleteDeviceRequest struct {
	UserID string `json:"user_id"`
	Token  string `json:"token" binding:"required"`
}

// DeleteDevice deactivates a device token, typically on sign-out. With a
// user_id only that user's registration of the token is touched.
func (h *Handler) DeleteDevice(c *gin.Context) {
	var req deleteDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	if userID := strings.TrimSpace(req.UserID); userID != "" {
		err = h.store.DeactivateForUser(c.Request.Context(), userID, req.Token)
	} else {
		err = h.store.Deactivate(c.Request.Context(), req.Token)
	}
	if err != nil {
		h.internalError(c, "failed to deactivate device token", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetDevices lists the active device tokens of the user in ?user_id=.
func (h *Handler) GetDevices(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	h.listDevices(c, userID)
}

func (h *Handler) listDevices(c *gin.Context, userID string) {
	tokens, err := h.store.ListActive(c.Request.Context(), userID)
	if err != nil {
		h.internalError(c, "failed to list device tokens", err)
		return
	}

	devices := make([]deviceResponse, len(tokens))
	for i, t := range tokens {
		devices[i] = toDeviceResponse(t)
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}
