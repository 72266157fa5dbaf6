package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/donkeyideas/Construction-sub000/internal/database"
	"github.com/donkeyideas/Construction-sub000/internal/router"
	"github.com/donkeyideas/Construction-sub000/internal/services"
	"github.com/donkeyideas/Construction-sub000/pkg/config"
	"github.com/donkeyideas/Construction-sub000/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// 加载配置
	cfg := config.GetConfig()

	// 初始化日志
	if err := logger.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger := logger.GetLogger()
	appLogger.Info("Starting Construction Automation Engine...")

	// 初始化数据库
	if err := database.Initialize(cfg); err != nil {
		appLogger.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		// 关闭数据库连接
		if err := database.Close(); err != nil {
			appLogger.Error("Failed to close database:", err)
		}
		// 关闭Redis连接
		if err := database.CloseRedisQueue(); err != nil {
			appLogger.Error("Failed to close Redis:", err)
		}
	}()

	// 执行数据库迁移
	if err := database.Migrate(); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 组装自动化引擎
	db := database.GetDB()
	ruleService := services.NewAutomationRuleService(db)
	logService := services.NewAutomationLogService(db)

	executor := services.NewActionExecutor()
	services.RegisterDefaultHandlers(executor, db, cfg, services.NewSMTPEmailSender(cfg.SMTP))

	engine := services.NewAutomationEngine(
		ruleService,
		logService,
		executor,
		time.Duration(cfg.Automation.ActionBudgetSeconds)*time.Second,
	)

	// 启动Redis事件消费者
	var consumer *services.EventConsumer
	if cfg.Automation.ConsumerEnabled {
		consumer = services.NewEventConsumer(
			database.GetRedisQueue(),
			engine,
			time.Duration(cfg.Automation.ConsumerBlockSeconds)*time.Second,
		)
		consumer.Start()
		defer consumer.Stop()
	}

	// 启动执行日志清理任务
	logCleanup := services.NewLogCleanupService(logService, cfg.Automation.LogRetentionDays)
	if err := logCleanup.Start(); err != nil {
		appLogger.Errorf("Failed to start log cleanup scheduler: %v", err)
		// 不影响主服务启动
	}
	defer logCleanup.Stop()

	// 设置路由
	r := router.SetupRouter()

	// 启动服务器
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// 启动服务
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	appLogger.Infof("Server started on port %s", cfg.Server.Port)

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	if err := server.Close(); err != nil {
		appLogger.Error("Server forced to shutdown:", err)
	}
	appLogger.Info("Server exited")
}
