package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/internal/service/brief"
)

type DashboardService interface {
	Dashboard(ctx context.Context, userID int, timeOfDay string, forceRefresh bool) (*model.Dashboard, error)
	Brief(ctx context.Context, userID int) (*model.Brief, error)
}

type StatsService interface {
	Stats(ctx context.Context, userID int) (*model.DashboardStats, error)
}

type DashboardHandler struct {
	dashboard DashboardService
	stats     StatsService
	logger    *zap.Logger
}

func NewDashboardHandler(dashboard DashboardService, stats StatsService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, stats: stats, logger: logger}
}

// Dashboard GET /dashboard/brief?timeOfDay=&forceRefresh=
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	timeOfDay, err := brief.ParseTimeOfDay(c.Query("timeOfDay"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	force, _ := strconv.ParseBool(c.DefaultQuery("forceRefresh", "false"))

	d, err := h.dashboard.Dashboard(c.Request.Context(), userID, timeOfDay, force)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Brief GET /brief
func (h *DashboardHandler) Brief(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	b, err := h.dashboard.Brief(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Stats GET /dashboard/stats
func (h *DashboardHandler) Stats(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	s, err := h.stats.Stats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, s)
}
