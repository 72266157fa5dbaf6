package services

import (
	"fmt"
	"time"

	"github.com/donkeyideas/Construction-sub000/internal/models"
	"github.com/donkeyideas/Construction-sub000/pkg/logger"
	"github.com/donkeyideas/Construction-sub000/pkg/pagination"

	"gorm.io/gorm"
)

// AutomationLogService 自动化执行日志服务
// 日志是只追加的审计事实，没有更新和单条删除接口
type AutomationLogService struct {
	db *gorm.DB
}

// NewAutomationLogService 创建执行日志服务
func NewAutomationLogService(db *gorm.DB) *AutomationLogService {
	return &AutomationLogService{db: db}
}

// LogListFilters 日志列表过滤条件
type LogListFilters struct {
	Status    string
	RuleID    uint
	StartDate string // 格式 2006-01-02
	EndDate   string // 格式 2006-01-02，按整天包含
}

// Create 写入一条执行日志
func (s *AutomationLogService) Create(log *models.AutomationExecutionLog) error {
	return s.db.Create(log).Error
}

// List 获取执行日志列表，最新优先
func (s *AutomationLogService) List(tenantID uint, params *pagination.PageParams, filters LogListFilters) ([]models.AutomationExecutionLog, int64, error) {
	var logs []models.AutomationExecutionLog
	var total int64

	query := s.db.Model(&models.AutomationExecutionLog{}).Where("tenant_id = ?", tenantID)

	if filters.Status != "" {
		if !models.ValidExecutionStatuses[filters.Status] {
			return nil, 0, fmt.Errorf("无效的执行状态: %s", filters.Status)
		}
		query = query.Where("status = ?", filters.Status)
	}
	if filters.RuleID > 0 {
		query = query.Where("rule_id = ?", filters.RuleID)
	}
	if filters.StartDate != "" {
		start, err := time.Parse("2006-01-02", filters.StartDate)
		if err != nil {
			return nil, 0, fmt.Errorf("开始日期格式错误: %s", filters.StartDate)
		}
		query = query.Where("created_at >= ?", start)
	}
	if filters.EndDate != "" {
		end, err := time.Parse("2006-01-02", filters.EndDate)
		if err != nil {
			return nil, 0, fmt.Errorf("结束日期格式错误: %s", filters.EndDate)
		}
		// 结束日期按整天包含
		query = query.Where("created_at < ?", end.AddDate(0, 0, 1))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Offset(params.GetOffset()).Limit(params.GetLimit()).
		Order("created_at DESC, id DESC").
		Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// ListAfter 获取指定ID之后的日志，按ID升序（WebSocket实时推送用）
func (s *AutomationLogService) ListAfter(tenantID uint, lastID uint, limit int) ([]models.AutomationExecutionLog, error) {
	var logs []models.AutomationExecutionLog
	if err := s.db.Where("tenant_id = ? AND id > ?", tenantID, lastID).
		Order("id ASC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// LatestID 当前租户最新的日志ID，没有日志时返回0
func (s *AutomationLogService) LatestID(tenantID uint) (uint, error) {
	var log models.AutomationExecutionLog
	err := s.db.Where("tenant_id = ?", tenantID).
		Order("id DESC").
		First(&log).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return log.ID, nil
}

// ExecutionsToday 统计今日实际执行次数（按租户时区的自然日）
// skipped只是条件不匹配，不算执行
func (s *AutomationLogService) ExecutionsToday(tenantID uint) (int64, error) {
	loc := s.tenantLocation(tenantID)

	now := time.Now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	var count int64
	err := s.db.Model(&models.AutomationExecutionLog{}).
		Where("tenant_id = ? AND status != ? AND created_at >= ?",
			tenantID, models.ExecutionStatusSkipped, dayStart).
		Count(&count).Error
	return count, err
}

// DeleteOlderThan 删除指定天数之前的日志，返回删除条数（保留策略用）
func (s *AutomationLogService) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	result := s.db.Where("created_at < ?", cutoff).
		Delete(&models.AutomationExecutionLog{})
	return result.RowsAffected, result.Error
}

// tenantLocation 获取租户时区，加载失败退回UTC
func (s *AutomationLogService) tenantLocation(tenantID uint) *time.Location {
	var tenant models.Tenant
	if err := s.db.Select("timezone").First(&tenant, tenantID).Error; err != nil {
		return time.UTC
	}
	if tenant.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tenant.Timezone)
	if err != nil {
		logger.GetLogger().Warnf("租户时区无效 tenant=%d timezone=%s，退回UTC", tenantID, tenant.Timezone)
		return time.UTC
	}
	return loc
}
