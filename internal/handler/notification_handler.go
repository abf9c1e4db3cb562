package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/internal/service/notify"
)

type NotificationSettings interface {
	RegisterToken(ctx context.Context, userID int, token string) error
	ClearToken(ctx context.Context, userID int) error
	Get(ctx context.Context, userID int) (*model.NotificationSettings, error)
	Update(ctx context.Context, userID int, u notify.PreferencesUpdate) (*model.NotificationSettings, error)
}

type NotificationHandler struct {
	settings NotificationSettings
	logger   *zap.Logger
}

func NewNotificationHandler(settings NotificationSettings, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{settings: settings, logger: logger}
}

// RegisterToken POST /notifications/register-token {pushToken}
func (h *NotificationHandler) RegisterToken(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req struct {
		PushToken string `json:"pushToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.settings.RegisterToken(c.Request.Context(), userID, req.PushToken); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

// ClearToken DELETE /notifications/token
func (h *NotificationHandler) ClearToken(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	if err := h.settings.ClearToken(c.Request.Context(), userID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetSettings GET /notifications/settings
func (h *NotificationHandler) GetSettings(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	s, err := h.settings.Get(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// UpdateSettings PUT /notifications/settings
func (h *NotificationHandler) UpdateSettings(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req notify.PreferencesUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s, err := h.settings.Update(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
