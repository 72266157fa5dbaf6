package router

import (
	"time"

	"github.com/donkeyideas/Construction-sub000/internal/database"
	"github.com/donkeyideas/Construction-sub000/internal/handlers"
	"github.com/donkeyideas/Construction-sub000/internal/middleware"
	"github.com/donkeyideas/Construction-sub000/internal/services"
	"github.com/donkeyideas/Construction-sub000/pkg/response"

	"github.com/gin-gonic/gin"
)

// SetupRouter 设置路由
func SetupRouter() *gin.Engine {
	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.SetupCORS())

	// 注册路由
	registerRoutes(router)
	return router
}

// 注册所有路由
func registerRoutes(router *gin.Engine) {

	auth := middleware.NewAuthMiddleware()

	db := database.GetDB()
	ruleService := services.NewAutomationRuleService(db)
	logService := services.NewAutomationLogService(db)

	// API路由组
	api := router.Group("/api/v1")
	{
		// 健康检查接口
		api.GET("/health", healthCheck)
		api.GET("/ping", ping)

		// 自动化规则路由
		ruleHandler := handlers.NewAutomationRuleHandler(ruleService, logService)
		automation := api.Group("/automation")
		{
			automation.POST("/rules", auth.RequireLogin(), ruleHandler.Create)
			automation.GET("/rules", auth.RequireLogin(), ruleHandler.List)
			automation.GET("/rules/:id", auth.RequireLogin(), ruleHandler.GetByID)
			automation.PATCH("/rules/:id", auth.RequireLogin(), ruleHandler.Update)
			automation.DELETE("/rules/:id", auth.RequireLogin(), ruleHandler.Delete)
			automation.POST("/rules/:id/toggle", auth.RequireLogin(), ruleHandler.Toggle)

			// 执行日志与统计
			logHandler := handlers.NewAutomationLogHandler(logService)
			automation.GET("/logs", auth.RequireLogin(), logHandler.List)
			automation.GET("/stats", auth.RequireLogin(), ruleHandler.GetStats)
		}

		// WebSocket实时日志（token走查询参数，认证在handler内完成）
		wsHandler := handlers.NewWebSocketHandler(logService)
		api.GET("/ws/automation/logs", wsHandler.ExecutionLogs)
	}
}

// 健康检查
func healthCheck(c *gin.Context) {
	health := gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}

	// 数据库连接状态
	if sqlDB, err := database.GetDB().DB(); err != nil || sqlDB.Ping() != nil {
		health["status"] = "degraded"
		health["database"] = "down"
	} else {
		health["database"] = "up"
	}

	// Redis连接状态
	if queue := database.GetRedisQueue(); queue != nil {
		if err := queue.Ping(); err != nil {
			health["status"] = "degraded"
			health["redis"] = "down"
		} else {
			health["redis"] = "up"
		}
	}

	response.Success(c, health)
}

// ping
func ping(c *gin.Context) {
	response.SuccessWithMessage(c, "pong", nil)
}
