package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/internal/service/task"
)

type TaskService interface {
	List(ctx context.Context, userID int, status string) ([]*model.Task, error)
	Create(ctx context.Context, userID int, req task.CreateRequest) (*model.Task, error)
	FromEmail(ctx context.Context, userID, emailID int) (*model.Task, error)
	UpdateStatus(ctx context.Context, userID, id int, status string) (*model.Task, error)
}

type TaskHandler struct {
	tasks  TaskService
	logger *zap.Logger
}

func NewTaskHandler(tasks TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// List GET /tasks?status=
func (h *TaskHandler) List(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	list, err := h.tasks.List(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": list, "count": len(list)})
}

// Create POST /tasks
func (h *TaskHandler) Create(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req task.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	t, err := h.tasks.Create(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// FromEmail POST /tasks/from-email/:id
func (h *TaskHandler) FromEmail(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	emailID, ok := paramID(c, "id")
	if !ok {
		return
	}

	t, err := h.tasks.FromEmail(c.Request.Context(), userID, emailID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// UpdateStatus PATCH /tasks/:id/status {status}
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	t, err := h.tasks.UpdateStatus(c.Request.Context(), userID, id, req.Status)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
