package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OutboxReplayer interface {
	ReplayEvent(ctx context.Context, eventID int64) error
	ReplayFailedEvents(ctx context.Context, limit int) (int, error)
}

type AdminHandler struct {
	replay OutboxReplayer
	logger *zap.Logger
}

func NewAdminHandler(replay OutboxReplayer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{replay: replay, logger: logger}
}

// ReplayOutbox POST /admin/outbox/replay?id=xxx 或 ?limit=100
// 带 id 时重放单个事件，否则重放最多 limit 个失败事件
func (h *AdminHandler) ReplayOutbox(c *gin.Context) {
	if idStr := c.Query("id"); idStr != "" {
		eventID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id parameter"})
			return
		}
		if err := h.replay.ReplayEvent(c.Request.Context(), eventID); err != nil {
			h.logger.Error("Failed to replay event", zap.Int64("event_id", eventID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replay event"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "replayed", "event_id": eventID})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	n, err := h.replay.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to replay failed events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replay failed events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed", "success_count": n, "limit": limit})
}
