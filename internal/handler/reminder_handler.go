package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/internal/service/reminder"
)

type ReminderService interface {
	Create(ctx context.Context, userID int, req reminder.CreateRequest) (*model.EmailReminder, error)
	Cancel(ctx context.Context, userID, id int) (*model.EmailReminder, error)
	List(ctx context.Context, userID int, status string) ([]*model.EmailReminder, error)
}

type ReminderHandler struct {
	reminders ReminderService
	logger    *zap.Logger
}

func NewReminderHandler(reminders ReminderService, logger *zap.Logger) *ReminderHandler {
	return &ReminderHandler{reminders: reminders, logger: logger}
}

// Create POST /reminders {emailId, remindAt, reason}
func (h *ReminderHandler) Create(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req reminder.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	rm, err := h.reminders.Create(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, rm)
}

// List GET /reminders?status=
func (h *ReminderHandler) List(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	list, err := h.reminders.List(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": list, "count": len(list)})
}

// Cancel DELETE /reminders/:id
func (h *ReminderHandler) Cancel(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	rm, err := h.reminders.Cancel(c.Request.Context(), userID, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rm)
}
