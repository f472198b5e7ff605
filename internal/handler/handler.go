package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"librarylog/internal/auth"
	"librarylog/internal/broadcast"
	"librarylog/internal/library"
	"librarylog/internal/model"
)

// HealthChecker is anything /healthz should ping.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Handler serves the library HTTP API and staff view.
type Handler struct {
	svc    *library.Service
	events broadcast.Subscriber
	issuer *auth.Issuer
	health map[string]HealthChecker
	logger *zap.Logger
}

func New(svc *library.Service, events broadcast.Subscriber, issuer *auth.Issuer, health map[string]HealthChecker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, events: events, issuer: issuer, health: health, logger: logger}
}

type cardRequest struct {
	UserID string `json:"user_id" form:"user_id" binding:"required"`
}

// SignIn handles POST /signin.
func (h *Handler) SignIn(c *gin.Context) {
	var req cardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "user_id is required")
		return
	}
	visit, err := h.svc.SignIn(c.Request.Context(), req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": signedInMessage(visit), "visit": visit})
}

// SignOut handles POST /signout.
func (h *Handler) SignOut(c *gin.Context) {
	var req cardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "user_id is required")
		return
	}
	visit, err := h.svc.SignOut(c.Request.Context(), req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": signedOutMessage(visit), "visit": visit})
}

// KioskToggle handles POST /v1/kiosk/toggle.
func (h *Handler) KioskToggle(c *gin.Context) {
	var req cardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "user_id is required")
		return
	}
	ctx := c.Request.Context()
	action, visit, err := h.svc.Toggle(ctx, req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	count, err := h.svc.OpenCount(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"action":          action,
		"message":         actionMessage(action, visit),
		"signed_in_count": count,
		"visit":           visit,
	})
}

// MaxCapacity handles GET and POST /set_max_capacity.
func (h *Handler) MaxCapacity(c *gin.Context) {
	if c.Request.Method == http.MethodGet {
		c.JSON(http.StatusOK, gin.H{"max_capacity": h.svc.Capacity()})
		return
	}
	var req struct {
		MaxCapacity *int64 `json:"maxCapacity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.MaxCapacity == nil {
		h.badRequest(c, "maxCapacity must be a number")
		return
	}
	if err := h.svc.SetCapacity(*req.MaxCapacity); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Maximum capacity set successfully", "max_capacity": *req.MaxCapacity})
}

// Healthz reports database and cache reachability.
func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, checker := range h.health {
		ok := checker.Healthy(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (h *Handler) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// fail maps service errors to status codes. Unknown errors are logged and
// reported without detail.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, library.ErrPersonNotFound):
		status = http.StatusNotFound
	case errors.Is(err, library.ErrAlreadySignedIn):
		status = http.StatusConflict
	case errors.Is(err, library.ErrPersonIDRequired),
		errors.Is(err, library.ErrNotSignedIn),
		errors.Is(err, library.ErrInvalidDate),
		errors.Is(err, library.ErrInvalidCapacity):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func signedInMessage(v *model.VisitLog) string {
	return fmt.Sprintf("%s signed in successfully.", v.Person.Name)
}

func signedOutMessage(v *model.VisitLog) string {
	return fmt.Sprintf("%s signed out successfully.", v.Person.Name)
}

func actionMessage(a library.Action, v *model.VisitLog) string {
	if a == library.ActionSignOut {
		return signedOutMessage(v)
	}
	return signedInMessage(v)
}
