// Package router 提供路由注册
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eidos-exchange/eidos-whalesync/internal/handler"
	"github.com/eidos-exchange/eidos-whalesync/internal/middleware"
)

// Handlers 路由依赖的处理器集合
type Handlers struct {
	Health        *handler.HealthHandler
	Jobs          *handler.JobsHandler
	Feed          *handler.FeedHandler
	Alerts        *handler.AlertHandler
	Notifications *handler.NotificationHandler
}

// New 创建 gin 引擎并注册中间件与路由
func New(h *Handlers) *gin.Engine {
	engine := gin.New()
	// 中间件链: Recovery → Trace → Logger → Metrics
	engine.Use(
		middleware.Recovery(),
		middleware.Trace(),
		middleware.Logger(),
		middleware.Metrics(),
	)
	RegisterRoutes(engine, h)
	return engine
}

// RegisterRoutes 注册路由
func RegisterRoutes(engine *gin.Engine, h *Handlers) {
	// ========== 健康检查 ==========
	engine.GET("/health/live", h.Health.Live)
	engine.GET("/health/ready", h.Health.Ready)

	// ========== Prometheus 监控端点 ==========
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")

	// 任务管理
	jobs := v1.Group("/jobs")
	{
		jobs.GET("", h.Jobs.ListJobs)
		jobs.POST("/:name/trigger", h.Jobs.TriggerJob)
		jobs.GET("/:name/executions", h.Jobs.ListExecutions)
	}
	v1.GET("/sync-runs", h.Jobs.ListSyncRuns)

	// 成交动态
	v1.GET("/feed", h.Feed.Feed)

	// 用户提醒与通知, 用户身份由调用方传入
	users := v1.Group("/users/:userId")
	{
		users.GET("/alerts", h.Alerts.List)
		users.POST("/alerts/price", h.Alerts.CreatePrice)
		users.POST("/alerts/whale", h.Alerts.CreateWhale)
		users.PATCH("/alerts/:id", h.Alerts.Update)
		users.DELETE("/alerts/:id", h.Alerts.Delete)
		users.GET("/notifications", h.Notifications.List)
	}
	v1.POST("/notifications/:id/status", h.Notifications.UpdateStatus)
}
