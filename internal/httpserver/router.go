package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mailtriage/internal/handler"
	"mailtriage/pkg/rbac"
)

// Pinger readiness 检查依赖，pgxpool.Pool 满足
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Auth         *handler.AuthHandler
	Email        *handler.EmailHandler
	Decision     *handler.DecisionHandler
	Reminder     *handler.ReminderHandler
	Task         *handler.TaskHandler
	Dashboard    *handler.DashboardHandler
	Notification *handler.NotificationHandler
	Admin        *handler.AdminHandler
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(h Handlers, jwtSecret string, db Pinger, logger *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), MetricsMiddleware(), AccessLogMiddleware(logger))

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/register", h.Auth.Register)
	r.POST("/login", h.Auth.Login)

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/emails/sync", h.Email.Sync)
		auth.GET("/emails", h.Email.List)
		auth.GET("/emails/:id", h.Email.Get)
		auth.POST("/emails/:id/action", h.Email.Action)
		auth.GET("/emails/:id/draft", h.Email.Draft)
		auth.DELETE("/emails/:id", h.Email.Delete)

		auth.GET("/decisions/pending", h.Decision.Pending)
		auth.POST("/decisions/:id/resolve", h.Decision.Resolve)

		auth.POST("/reminders", h.Reminder.Create)
		auth.GET("/reminders", h.Reminder.List)
		auth.DELETE("/reminders/:id", h.Reminder.Cancel)

		auth.GET("/tasks", h.Task.List)
		auth.POST("/tasks", h.Task.Create)
		auth.POST("/tasks/from-email/:id", h.Task.FromEmail)
		auth.PATCH("/tasks/:id/status", h.Task.UpdateStatus)

		auth.GET("/brief", h.Dashboard.Brief)
		auth.GET("/dashboard/brief", h.Dashboard.Dashboard)
		auth.GET("/dashboard/stats", h.Dashboard.Stats)

		auth.POST("/notifications/register-token", h.Notification.RegisterToken)
		auth.DELETE("/notifications/token", h.Notification.ClearToken)
		auth.GET("/notifications/settings", h.Notification.GetSettings)
		auth.PUT("/notifications/settings", h.Notification.UpdateSettings)

		admin := auth.Group("/admin")
		admin.Use(RequirePermission(rbac.PermissionReplayOutbox))
		admin.POST("/outbox/replay", h.Admin.ReplayOutbox)
	}

	return &Router{Engine: r}
}

// Server 包装为 http.Server，由调用方负责 ListenAndServe 与 Shutdown
func (r *Router) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
