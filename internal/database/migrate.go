package database

import (
	"github.com/donkeyideas/Construction-sub000/internal/models"
	"github.com/donkeyideas/Construction-sub000/pkg/logger"
)

// Migrate 执行数据库迁移
func Migrate() error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting database migration...")

	err := DB.AutoMigrate(
		&models.Tenant{},
		// 自动化引擎
		&models.AutomationRule{},
		&models.AutomationExecutionLog{},
		// 动作副作用
		&models.Notification{},
		&models.FollowUpTask{},
		&models.EntityMutation{},
	)

	if err != nil {
		appLogger.Errorf("Database migration failed: %v", err)
		return err
	}

	appLogger.Info("Database migration completed successfully")
	return nil
}
