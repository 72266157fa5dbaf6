package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/donkeyideas/Construction-sub000/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 创建内存数据库并迁移自动化相关表
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	err = db.AutoMigrate(
		&models.Tenant{},
		&models.AutomationRule{},
		&models.AutomationExecutionLog{},
		&models.Notification{},
		&models.FollowUpTask{},
		&models.EntityMutation{},
	)
	if err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}

	// 测试租户
	if err := db.Create(&models.Tenant{Name: "测试建筑公司", Code: "test", Status: "active", Timezone: "UTC"}).Error; err != nil {
		t.Fatalf("创建测试租户失败: %v", err)
	}

	return db
}

// recordingHandler 记录调用的测试处理器
type recordingHandler struct {
	calls []models.AutomationAction
	err   error
}

func (h *recordingHandler) Execute(ctx context.Context, action models.AutomationAction, event *EntityEvent, ruleID uint) error {
	h.calls = append(h.calls, action)
	return h.err
}

// newTestEngine 组装测试引擎，返回引擎和可观察的处理器
func newTestEngine(t *testing.T, db *gorm.DB) (*AutomationEngine, *recordingHandler, *recordingHandler) {
	t.Helper()

	okHandler := &recordingHandler{}
	badHandler := &recordingHandler{err: errors.New("下游服务不可用")}

	executor := NewActionExecutor()
	executor.Register(models.ActionSendNotification, okHandler)
	executor.Register(models.ActionCreateTask, badHandler)

	engine := NewAutomationEngine(
		NewAutomationRuleService(db),
		NewAutomationLogService(db),
		executor,
		5*time.Second,
	)
	return engine, okHandler, badHandler
}

// mustCreateRule 创建测试规则
func mustCreateRule(t *testing.T, db *gorm.DB, tenantID uint, name string, conditions []models.AutomationCondition, actions []models.AutomationAction) *models.AutomationRule {
	t.Helper()

	rule, err := NewAutomationRuleService(db).Create(tenantID, 1, CreateAutomationRuleRequest{
		Name:          name,
		TriggerType:   models.TriggerEntityCreated,
		TriggerEntity: models.EntityTicket,
		Conditions:    conditions,
		Actions:       actions,
	})
	if err != nil {
		t.Fatalf("创建测试规则失败: %v", err)
	}
	return rule
}

func ticketCreatedEvent(tenantID uint, snapshot map[string]interface{}) *EntityEvent {
	return &EntityEvent{
		TenantID:      tenantID,
		TriggerType:   models.TriggerEntityCreated,
		TriggerEntity: models.EntityTicket,
		EntityID:      "101",
		Snapshot:      snapshot,
	}
}

// 场景：条件匹配，动作执行成功 -> success日志 + run_count+1
func TestEngineMatchAndExecute(t *testing.T) {
	db := setupTestDB(t)
	engine, okHandler, _ := newTestEngine(t, db)

	rule := mustCreateRule(t, db, 1, "高优先级工单通知",
		[]models.AutomationCondition{
			{Field: "priority", Operator: models.OperatorEquals, Value: "high"},
		},
		[]models.AutomationAction{
			{Type: models.ActionSendNotification, Config: map[string]interface{}{"message": "有新的高优先级工单"}},
		})

	err := engine.HandleEvent(ticketCreatedEvent(1, map[string]interface{}{"priority": "high"}))
	if err != nil {
		t.Fatalf("处理事件失败: %v", err)
	}

	if len(okHandler.calls) != 1 {
		t.Fatalf("期望动作执行1次，实际 %d 次", len(okHandler.calls))
	}

	// 恰好一条success日志
	var logs []models.AutomationExecutionLog
	db.Find(&logs)
	if len(logs) != 1 {
		t.Fatalf("期望1条执行日志，实际 %d 条", len(logs))
	}
	if logs[0].Status != models.ExecutionStatusSuccess {
		t.Errorf("期望success状态，实际 %s", logs[0].Status)
	}
	if logs[0].RuleName != rule.Name {
		t.Errorf("日志应冗余规则名，实际 %q", logs[0].RuleName)
	}

	// 执行统计更新
	var reloaded models.AutomationRule
	db.First(&reloaded, rule.ID)
	if reloaded.RunCount != 1 {
		t.Errorf("run_count应为1，实际 %d", reloaded.RunCount)
	}
	if reloaded.LastRunAt == nil {
		t.Error("last_run_at应该已设置")
	}
}

// 场景：条件不匹配 -> skipped日志，run_count不变
func TestEngineSkipped(t *testing.T) {
	db := setupTestDB(t)
	engine, okHandler, _ := newTestEngine(t, db)

	rule := mustCreateRule(t, db, 1, "高优先级工单通知",
		[]models.AutomationCondition{
			{Field: "priority", Operator: models.OperatorEquals, Value: "high"},
		},
		[]models.AutomationAction{
			{Type: models.ActionSendNotification, Config: map[string]interface{}{"message": "m"}},
		})

	if err := engine.HandleEvent(ticketCreatedEvent(1, map[string]interface{}{"priority": "low"})); err != nil {
		t.Fatalf("处理事件失败: %v", err)
	}

	if len(okHandler.calls) != 0 {
		t.Error("条件不匹配时不应该执行动作")
	}

	var log models.AutomationExecutionLog
	if err := db.First(&log).Error; err != nil {
		t.Fatalf("skipped也应该留下日志: %v", err)
	}
	if log.Status != models.ExecutionStatusSkipped {
		t.Errorf("期望skipped状态，实际 %s", log.Status)
	}

	var reloaded models.AutomationRule
	db.First(&reloaded, rule.ID)
	if reloaded.RunCount != 0 {
		t.Errorf("skipped不应计入run_count，实际 %d", reloaded.RunCount)
	}
}

// 场景：部分动作失败 -> failed日志，已执行动作的结果完整记录
func TestEnginePartialFailure(t *testing.T) {
	db := setupTestDB(t)
	engine, okHandler, _ := newTestEngine(t, db)

	rule := mustCreateRule(t, db, 1, "工单指派流程", nil,
		[]models.AutomationAction{
			{Type: models.ActionSendNotification, Config: map[string]interface{}{"message": "m"}},
			{Type: models.ActionCreateTask, Config: map[string]interface{}{"title": "跟进"}},
		})

	if err := engine.HandleEvent(ticketCreatedEvent(1, map[string]interface{}{"status": "open"})); err != nil {
		t.Fatalf("处理事件失败: %v", err)
	}

	if len(okHandler.calls) != 1 {
		t.Error("失败动作不影响成功动作执行")
	}

	var log models.AutomationExecutionLog
	db.First(&log)
	if log.Status != models.ExecutionStatusFailed {
		t.Errorf("期望failed状态，实际 %s", log.Status)
	}
	if log.ErrorMessage == "" {
		t.Error("失败日志应该带错误信息")
	}

	var outcomes []models.ActionOutcome
	if err := json.Unmarshal(log.ActionsExecuted, &outcomes); err != nil {
		t.Fatalf("解析动作结果失败: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("期望2个动作结果，实际 %d", len(outcomes))
	}
	if !outcomes[0].Succeeded || outcomes[1].Succeeded {
		t.Errorf("动作结果标记错误: %+v", outcomes)
	}

	var reloaded models.AutomationRule
	db.First(&reloaded, rule.ID)
	if reloaded.RunCount != 1 {
		t.Errorf("失败的执行也计入run_count，实际 %d", reloaded.RunCount)
	}
}

// 场景：多条规则，一条失败不影响其余规则，各自恰好一条日志
func TestEngineRuleIsolation(t *testing.T) {
	db := setupTestDB(t)
	engine, okHandler, _ := newTestEngine(t, db)

	mustCreateRule(t, db, 1, "会失败的规则", nil,
		[]models.AutomationAction{
			{Type: models.ActionCreateTask, Config: map[string]interface{}{"title": "t"}},
		})
	mustCreateRule(t, db, 1, "正常的规则", nil,
		[]models.AutomationAction{
			{Type: models.ActionSendNotification, Config: map[string]interface{}{"message": "m"}},
		})

	if err := engine.HandleEvent(ticketCreatedEvent(1, map[string]interface{}{})); err != nil {
		t.Fatalf("处理事件失败: %v", err)
	}

	if len(okHandler.calls) != 1 {
		t.Error("第一条规则失败不应影响第二条规则")
	}

	var count int64
	db.Model(&models.AutomationExecutionLog{}).Count(&count)
	if count != 2 {
		t.Errorf("每条触发的规则恰好一条日志，实际 %d 条", count)
	}
}

// 禁用的规则和其他租户的规则都不触发
func TestEngineCandidateFiltering(t *testing.T) {
	db := setupTestDB(t)
	engine, okHandler, _ := newTestEngine(t, db)

	ruleService := NewAutomationRuleService(db)

	// 禁用规则
	disabled := mustCreateRule(t, db, 1, "禁用的规则", nil,
		[]models.AutomationAction{
			{Type: models.ActionSendNotification, Config: map[string]interface{}{"message": "m"}},
		})
	if _, err := ruleService.SetEnabled(1, disabled.ID, 1, false); err != nil {
		t.Fatalf("禁用规则失败: %v", err)
	}

	// 其他租户的规则
	db.Create(&models.Tenant{Name: "另一家公司", Code: "other", Status: "active", Timezone: "UTC"})
	mustCreateRule(t, db, 2, "其他租户的规则", nil,
		[]models.AutomationAction{
			{Type: models.ActionSendNotification, Config: map[string]interface{}{"message": "m"}},
		})

	if err := engine.HandleEvent(ticketCreatedEvent(1, map[string]interface{}{})); err != nil {
		t.Fatalf("处理事件失败: %v", err)
	}

	if len(okHandler.calls) != 0 {
		t.Error("禁用规则和其他租户的规则都不应触发")
	}

	var count int64
	db.Model(&models.AutomationExecutionLog{}).Count(&count)
	if count != 0 {
		t.Errorf("没有规则触发时不应有日志，实际 %d 条", count)
	}
}

// 未注册的动作类型：failed日志，事件处理不报错
func TestEngineUnknownActionType(t *testing.T) {
	db := setupTestDB(t)
	engine, _, _ := newTestEngine(t, db)

	// 绕过服务层校验，模拟引擎升级前落库的旧动作类型
	rule := mustCreateRule(t, db, 1, "旧版本规则", nil,
		[]models.AutomationAction{
			{Type: models.ActionSendNotification, Config: map[string]interface{}{"message": "m"}},
		})
	db.Model(&models.AutomationRule{}).Where("id = ?", rule.ID).
		Update("actions", models.JSON(`[{"type":"legacy_action","config":{}}]`))

	if err := engine.HandleEvent(ticketCreatedEvent(1, map[string]interface{}{})); err != nil {
		t.Fatalf("未知动作类型不应该让事件处理失败: %v", err)
	}

	var log models.AutomationExecutionLog
	db.First(&log)
	if log.Status != models.ExecutionStatusFailed {
		t.Errorf("期望failed状态，实际 %s", log.Status)
	}
}

// EventID为空时引擎自动补齐
func TestEngineGeneratesEventID(t *testing.T) {
	db := setupTestDB(t)
	engine, _, _ := newTestEngine(t, db)

	event := ticketCreatedEvent(1, map[string]interface{}{})
	if err := engine.HandleEvent(event); err != nil {
		t.Fatalf("处理事件失败: %v", err)
	}
	if event.EventID == "" {
		t.Error("引擎应该为空EventID生成标识")
	}
}
