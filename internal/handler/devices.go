package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterDevice handles POST /v1/devices/register. Staff authorise a kiosk
// with the view token and get a device token pair back.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "device_id is required")
		return
	}

	tokens, err := h.issuer.Issue(req.DeviceID)
	if err != nil {
		h.logger.Error("issue device token failed", zap.String("device_id", req.DeviceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	h.logger.Info("kiosk registered", zap.String("device_id", req.DeviceID))
	c.JSON(http.StatusCreated, tokens)
}

// RefreshDevice handles POST /v1/devices/refresh.
func (h *Handler) RefreshDevice(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "refresh_token is required")
		return
	}

	tokens, err := h.issuer.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}
