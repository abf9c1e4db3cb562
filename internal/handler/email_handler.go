package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/internal/repository"
	"mailtriage/internal/service/email"
)

type EmailService interface {
	Sync(ctx context.Context, userID, maxResults int) (*email.SyncResult, error)
	Get(ctx context.Context, userID, id int) (*model.Email, error)
	List(ctx context.Context, userID int, f repository.EmailFilter) ([]*model.Email, error)
	Action(ctx context.Context, userID, id int, action string) (*email.ActionResult, error)
	Draft(ctx context.Context, userID, id int) (string, error)
	Delete(ctx context.Context, userID, id int) error
}

type EmailHandler struct {
	emails EmailService
	logger *zap.Logger
}

func NewEmailHandler(emails EmailService, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{emails: emails, logger: logger}
}

// Sync POST /emails/sync {maxResults}
func (h *EmailHandler) Sync(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req struct {
		MaxResults int `json:"maxResults"`
	}
	// 空 body 使用默认值
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	res, err := h.emails.Sync(c.Request.Context(), userID, req.MaxResults)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// List GET /emails?urgency=&userAction=&limit=&offset=
func (h *EmailHandler) List(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var f repository.EmailFilter
	if v := c.Query("urgency"); v != "" {
		f.Urgency = model.ParseUrgency(v)
	}
	if v := c.Query("userAction"); v != "" {
		a, ok := model.ParseUserAction(v)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userAction"})
			return
		}
		f.UserAction = a
	}
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	emails, err := h.emails.List(c.Request.Context(), userID, f)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": emails, "count": len(emails)})
}

// Get GET /emails/:id
func (h *EmailHandler) Get(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	e, err := h.emails.Get(c.Request.Context(), userID, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// Action POST /emails/:id/action {action}
func (h *EmailHandler) Action(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.emails.Action(c.Request.Context(), userID, id, req.Action)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Draft GET /emails/:id/draft
func (h *EmailHandler) Draft(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	draft, err := h.emails.Draft(c.Request.Context(), userID, id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emailId": id, "draftReply": draft})
}

// Delete DELETE /emails/:id
func (h *EmailHandler) Delete(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.emails.Delete(c.Request.Context(), userID, id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
