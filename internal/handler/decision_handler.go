package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/model"
)

type DecisionService interface {
	ListPending(ctx context.Context, userID int) ([]*model.Decision, error)
	Resolve(ctx context.Context, userID, id int, resolution string) (*model.Decision, error)
}

type DecisionHandler struct {
	decisions DecisionService
	logger    *zap.Logger
}

func NewDecisionHandler(decisions DecisionService, logger *zap.Logger) *DecisionHandler {
	return &DecisionHandler{decisions: decisions, logger: logger}
}

// Pending GET /decisions/pending
func (h *DecisionHandler) Pending(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	list, err := h.decisions.ListPending(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": list, "count": len(list)})
}

// Resolve POST /decisions/:id/resolve {resolution}
func (h *DecisionHandler) Resolve(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	d, err := h.decisions.Resolve(c.Request.Context(), userID, id, req.Resolution)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
