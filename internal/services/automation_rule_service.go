package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/donkeyideas/Construction-sub000/internal/models"
	"github.com/donkeyideas/Construction-sub000/pkg/pagination"

	"gorm.io/gorm"
)

// ErrRuleNotFound 规则不存在（含跨租户访问，不泄露存在性）
var ErrRuleNotFound = errors.New("规则不存在")

// AutomationRuleService 自动化规则服务
type AutomationRuleService struct {
	db *gorm.DB
}

// NewAutomationRuleService 创建自动化规则服务
func NewAutomationRuleService(db *gorm.DB) *AutomationRuleService {
	return &AutomationRuleService{db: db}
}

// CreateAutomationRuleRequest 创建规则请求
type CreateAutomationRuleRequest struct {
	Name          string                       `json:"name" binding:"required,max=200"`
	Description   string                       `json:"description" binding:"max=500"`
	TriggerType   string                       `json:"trigger_type" binding:"required"`
	TriggerEntity string                       `json:"trigger_entity" binding:"required"`
	Conditions    []models.AutomationCondition `json:"conditions"`
	Actions       []models.AutomationAction    `json:"actions"`
	IsEnabled     *bool                        `json:"is_enabled"`
}

// UpdateAutomationRuleRequest 更新规则请求（部分更新）
// 触发配置是规则身份，不可修改
type UpdateAutomationRuleRequest struct {
	Name          string                        `json:"name" binding:"max=200"`
	Description   *string                       `json:"description" binding:"omitempty,max=500"`
	TriggerType   string                        `json:"trigger_type"`
	TriggerEntity string                        `json:"trigger_entity"`
	Conditions    *[]models.AutomationCondition `json:"conditions"`
	Actions       *[]models.AutomationAction    `json:"actions"`
	IsEnabled     *bool                         `json:"is_enabled"`
}

// RuleListFilters 规则列表过滤条件
type RuleListFilters struct {
	TriggerType   string
	TriggerEntity string
	EnabledOnly   bool
	Search        string
}

// AutomationStats 自动化统计（读时计算，非权威状态）
type AutomationStats struct {
	TotalRules      int64 `json:"total_rules"`
	EnabledRules    int64 `json:"enabled_rules"`
	ExecutionsToday int64 `json:"executions_today"`
}

// Create 创建自动化规则
func (s *AutomationRuleService) Create(tenantID uint, userID uint, req CreateAutomationRuleRequest) (*models.AutomationRule, error) {
	if !models.ValidTriggerTypes[req.TriggerType] {
		return nil, fmt.Errorf("无效的触发类型: %s", req.TriggerType)
	}
	if !models.ValidTriggerEntities[req.TriggerEntity] {
		return nil, fmt.Errorf("无效的触发实体: %s", req.TriggerEntity)
	}
	if err := validateConditions(req.Conditions); err != nil {
		return nil, err
	}
	if err := validateActions(req.Actions); err != nil {
		return nil, err
	}

	conditionsJSON, err := marshalList(req.Conditions)
	if err != nil {
		return nil, fmt.Errorf("序列化条件失败: %v", err)
	}
	actionsJSON, err := marshalList(req.Actions)
	if err != nil {
		return nil, fmt.Errorf("序列化动作失败: %v", err)
	}

	rule := &models.AutomationRule{
		TenantID:      tenantID,
		Name:          req.Name,
		Description:   req.Description,
		TriggerType:   req.TriggerType,
		TriggerEntity: req.TriggerEntity,
		Conditions:    conditionsJSON,
		Actions:       actionsJSON,
		IsEnabled:     true,
		CreatedBy:     userID,
		UpdatedBy:     userID,
	}
	if req.IsEnabled != nil {
		rule.IsEnabled = *req.IsEnabled
	}

	if err := s.db.Create(rule).Error; err != nil {
		return nil, err
	}

	return rule, nil
}

// Update 更新自动化规则（部分更新）
func (s *AutomationRuleService) Update(tenantID uint, ruleID uint, userID uint, req UpdateAutomationRuleRequest) (*models.AutomationRule, error) {
	// 触发配置不可变更
	if req.TriggerType != "" || req.TriggerEntity != "" {
		return nil, errors.New("触发类型和触发实体不可修改")
	}

	var rule models.AutomationRule
	if err := s.db.Where("id = ? AND tenant_id = ?", ruleID, tenantID).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}

	// 构建更新数据
	updates := map[string]interface{}{
		"updated_by": userID,
		"updated_at": time.Now(),
	}

	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.IsEnabled != nil {
		updates["is_enabled"] = *req.IsEnabled
	}
	if req.Conditions != nil {
		if err := validateConditions(*req.Conditions); err != nil {
			return nil, err
		}
		conditionsJSON, err := marshalList(*req.Conditions)
		if err != nil {
			return nil, fmt.Errorf("序列化条件失败: %v", err)
		}
		updates["conditions"] = conditionsJSON
	}
	if req.Actions != nil {
		if err := validateActions(*req.Actions); err != nil {
			return nil, err
		}
		actionsJSON, err := marshalList(*req.Actions)
		if err != nil {
			return nil, fmt.Errorf("序列化动作失败: %v", err)
		}
		updates["actions"] = actionsJSON
	}

	if err := s.db.Model(&rule).Updates(updates).Error; err != nil {
		return nil, err
	}

	// 重新加载数据
	if err := s.db.First(&rule, rule.ID).Error; err != nil {
		return nil, err
	}

	return &rule, nil
}

// Delete 删除自动化规则
// 只删除规则本身，历史执行日志保留
func (s *AutomationRuleService) Delete(tenantID uint, ruleID uint) error {
	result := s.db.Where("id = ? AND tenant_id = ?", ruleID, tenantID).
		Delete(&models.AutomationRule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// GetByID 根据ID获取规则
func (s *AutomationRuleService) GetByID(tenantID uint, ruleID uint) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	if err := s.db.Where("id = ? AND tenant_id = ?", ruleID, tenantID).
		First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// List 获取规则列表
func (s *AutomationRuleService) List(tenantID uint, params *pagination.PageParams, filters RuleListFilters) ([]models.AutomationRule, int64, error) {
	var rules []models.AutomationRule
	var total int64

	query := s.db.Model(&models.AutomationRule{}).Where("tenant_id = ?", tenantID)

	if filters.TriggerType != "" {
		query = query.Where("trigger_type = ?", filters.TriggerType)
	}
	if filters.TriggerEntity != "" {
		query = query.Where("trigger_entity = ?", filters.TriggerEntity)
	}
	if filters.EnabledOnly {
		query = query.Where("is_enabled = ?", true)
	}
	if filters.Search != "" {
		searchPattern := "%" + filters.Search + "%"
		query = query.Where("name LIKE ? OR description LIKE ?", searchPattern, searchPattern)
	}

	// 统计总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	if err := query.Offset(params.GetOffset()).Limit(params.GetLimit()).
		Order("created_at DESC, id DESC").
		Find(&rules).Error; err != nil {
		return nil, 0, err
	}

	return rules, total, nil
}

// SetEnabled 启用/禁用规则
func (s *AutomationRuleService) SetEnabled(tenantID uint, ruleID uint, userID uint, enabled bool) (*models.AutomationRule, error) {
	result := s.db.Model(&models.AutomationRule{}).
		Where("id = ? AND tenant_id = ?", ruleID, tenantID).
		Updates(map[string]interface{}{
			"is_enabled": enabled,
			"updated_by": userID,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRuleNotFound
	}

	return s.GetByID(tenantID, ruleID)
}

// FindCandidates 查找匹配触发标识的启用规则（供调度器使用）
// 按创建顺序稳定排序，保证同一快照重复调度的结果可复现
func (s *AutomationRuleService) FindCandidates(tenantID uint, triggerType, triggerEntity string) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	if err := s.db.Where("tenant_id = ? AND trigger_type = ? AND trigger_entity = ? AND is_enabled = ?",
		tenantID, triggerType, triggerEntity, true).
		Order("created_at ASC, id ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// RecordRun 记录一次实际执行（原子递增run_count并刷新last_run_at）
// 只在状态为success/failed的触发上调用，skipped不计入
func (s *AutomationRuleService) RecordRun(ruleID uint, at time.Time) error {
	return s.db.Model(&models.AutomationRule{}).
		Where("id = ?", ruleID).
		Updates(map[string]interface{}{
			"run_count":   gorm.Expr("run_count + 1"),
			"last_run_at": at,
		}).Error
}

// GetStats 获取自动化统计
func (s *AutomationRuleService) GetStats(tenantID uint, logService *AutomationLogService) (*AutomationStats, error) {
	stats := &AutomationStats{}

	if err := s.db.Model(&models.AutomationRule{}).
		Where("tenant_id = ?", tenantID).
		Count(&stats.TotalRules).Error; err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.AutomationRule{}).
		Where("tenant_id = ? AND is_enabled = ?", tenantID, true).
		Count(&stats.EnabledRules).Error; err != nil {
		return nil, err
	}

	executionsToday, err := logService.ExecutionsToday(tenantID)
	if err != nil {
		return nil, err
	}
	stats.ExecutionsToday = executionsToday

	return stats, nil
}

// validateConditions 校验条件列表：操作符合法且与值形态匹配
func validateConditions(conditions []models.AutomationCondition) error {
	for i, cond := range conditions {
		if cond.Field == "" {
			return fmt.Errorf("第%d个条件缺少字段名", i+1)
		}
		if !models.ValidOperators[cond.Operator] {
			return fmt.Errorf("第%d个条件操作符无效: %s", i+1, cond.Operator)
		}

		switch cond.Operator {
		case models.OperatorIn:
			if _, ok := cond.Value.([]interface{}); !ok {
				return fmt.Errorf("第%d个条件: in操作符要求列表值", i+1)
			}
		case models.OperatorGreaterThan, models.OperatorLessThan:
			if cond.Value == nil {
				return fmt.Errorf("第%d个条件: %s操作符要求比较值", i+1, cond.Operator)
			}
			if _, ok := cond.Value.([]interface{}); ok {
				return fmt.Errorf("第%d个条件: %s操作符不接受列表值", i+1, cond.Operator)
			}
		case models.OperatorIsEmpty, models.OperatorIsNotEmpty:
			// 不需要比较值，传入的值忽略
		}
	}
	return nil
}

// validateActions 校验动作列表：类型合法且必填配置齐全
func validateActions(actions []models.AutomationAction) error {
	for i, action := range actions {
		requiredKeys, ok := models.ActionRequiredConfigKeys[action.Type]
		if !ok {
			return fmt.Errorf("第%d个动作类型无效: %s", i+1, action.Type)
		}
		for _, key := range requiredKeys {
			if _, exists := action.Config[key]; !exists {
				return fmt.Errorf("第%d个动作(%s)缺少配置项: %s", i+1, action.Type, key)
			}
		}
	}
	return nil
}

// marshalList 序列化条件/动作列表，nil按空列表落库
func marshalList(v interface{}) (models.JSON, error) {
	if v == nil {
		return models.JSON("[]"), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return models.JSON(data), nil
}
