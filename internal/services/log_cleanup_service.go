package services

import (
	"github.com/donkeyideas/Construction-sub000/pkg/logger"

	"github.com/robfig/cron/v3"
)

// LogCleanupService 执行日志保留策略
// 每天凌晨清理超过保留期的执行日志
type LogCleanupService struct {
	logService    *AutomationLogService
	retentionDays int
	cron          *cron.Cron
}

// NewLogCleanupService 创建日志清理服务
func NewLogCleanupService(logService *AutomationLogService, retentionDays int) *LogCleanupService {
	return &LogCleanupService{
		logService:    logService,
		retentionDays: retentionDays,
		cron:          cron.New(cron.WithSeconds()),
	}
}

// Start 启动定时清理，保留天数为0时不清理
func (s *LogCleanupService) Start() error {
	if s.retentionDays <= 0 {
		logger.GetLogger().Info("执行日志保留策略未启用")
		return nil
	}

	// 每天凌晨3点执行
	if _, err := s.cron.AddFunc("0 0 3 * * *", s.cleanup); err != nil {
		return err
	}

	s.cron.Start()
	logger.GetLogger().Infof("执行日志清理任务已启动，保留%d天", s.retentionDays)
	return nil
}

// Stop 停止定时清理
func (s *LogCleanupService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// cleanup 执行一次清理
func (s *LogCleanupService) cleanup() {
	deleted, err := s.logService.DeleteOlderThan(s.retentionDays)
	if err != nil {
		logger.GetLogger().Errorf("清理执行日志失败: %v", err)
		return
	}
	if deleted > 0 {
		logger.GetLogger().Infof("清理执行日志完成，删除%d条", deleted)
	}
}
