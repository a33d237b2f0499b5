package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clonebot/internal/middleware"
	"github.com/noah-isme/clonebot/internal/models"
	"github.com/noah-isme/clonebot/internal/service"
)

// Handlers groups every HTTP handler mounted by Register.
type Handlers struct {
	Redirect *RedirectHandler
	Search   *SearchHandler
	Files    *FileHandler
	Settings *SettingsHandler
	Bots     *BotHandler
	Stats    *StatsHandler
	Metrics  *MetricsHandler
}

// Register mounts public and admin routes on r.
func Register(r *gin.Engine, prefix string, h Handlers, auth *service.AuthService) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	r.GET("/redirect/:token", h.Redirect.Redirect)

	api := r.Group(prefix)
	api.GET("/search", h.Search.Search)

	admin := api.Group("")
	admin.Use(middleware.JWT(auth), middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/files", h.Files.List)
	admin.POST("/files", h.Files.Create)
	admin.GET("/files/:id", h.Files.Get)
	admin.GET("/settings", h.Settings.Get)
	admin.PUT("/settings", h.Settings.Update)
	admin.GET("/bots", h.Bots.List)
	admin.GET("/stats", h.Stats.Stats)
	admin.GET("/export", h.Stats.Export)
	admin.GET("/metrics/summary", h.Metrics.Summary)
}
