// internal/app/router.go
package app

import (
	githubHandler "devsync-agent/internal/handlers/github"
	notifyHandler "devsync-agent/internal/handlers/notification"
	sessionHandler "devsync-agent/internal/handlers/session"
	"devsync-agent/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	SessionHandler    *sessionHandler.SessionHandler
	GitHubHandler     *githubHandler.GitHubHandler
	NotifHandler      *notifyHandler.NotificationHandler
	SessionMiddleware *middleware.SessionMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Session ====================
	sessionPublic := api.Group("/session")
	{
		sessionPublic.POST("/login", h.SessionHandler.Login)
		sessionPublic.GET("", h.SessionHandler.GetSession)
	}

	sessionProtected := api.Group("/session")
	sessionProtected.Use(h.SessionMiddleware.RequireSession())
	{
		sessionProtected.POST("/logout", h.SessionHandler.Logout)
		sessionProtected.POST("/refresh", h.SessionHandler.Refresh)
	}

	// ==================== GitHub Linking ====================
	github := api.Group("/github")
	github.Use(h.SessionMiddleware.RequireSession())
	{
		github.POST("/connect", h.GitHubHandler.Connect)
		github.GET("/callback", h.GitHubHandler.Callback)
		github.GET("/status", h.GitHubHandler.Status)
		github.DELETE("/disconnect", h.GitHubHandler.Disconnect)
	}

	// ==================== Notifications ====================
	notifications := api.Group("/notifications")
	notifications.Use(h.SessionMiddleware.RequireSession())
	{
		notifications.GET("", h.NotifHandler.GetFeed)
		notifications.POST("/refresh", h.NotifHandler.RefreshFeed)
		notifications.PUT("/:id/read", h.NotifHandler.MarkAsRead)
		notifications.PUT("/read-all", h.NotifHandler.MarkAllAsRead)
		notifications.GET("/channel", h.NotifHandler.GetChannelStatus)
	}
}
