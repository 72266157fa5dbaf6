package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/donkeyideas/Construction-sub000/internal/models"
	"github.com/donkeyideas/Construction-sub000/pkg/logger"

	"github.com/google/uuid"
)

// AutomationEngine 自动化引擎
// 接收实体事件，匹配规则，执行动作，落执行日志
type AutomationEngine struct {
	ruleService  *AutomationRuleService
	logService   *AutomationLogService
	executor     *ActionExecutor
	actionBudget time.Duration
}

// NewAutomationEngine 创建自动化引擎
func NewAutomationEngine(ruleService *AutomationRuleService, logService *AutomationLogService, executor *ActionExecutor, actionBudget time.Duration) *AutomationEngine {
	return &AutomationEngine{
		ruleService:  ruleService,
		logService:   logService,
		executor:     executor,
		actionBudget: actionBudget,
	}
}

// HandleEvent 处理一次实体事件
// 候选规则加载失败会返回错误（调用方可重试）；单条规则的失败相互隔离，
// 一条规则panic或报错不影响其余规则，每条触发的规则恰好产生一条执行日志
func (e *AutomationEngine) HandleEvent(event *EntityEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}

	rules, err := e.ruleService.FindCandidates(event.TenantID, event.TriggerType, event.TriggerEntity)
	if err != nil {
		return fmt.Errorf("加载候选规则失败: %v", err)
	}

	if len(rules) == 0 {
		return nil
	}

	logger.GetLogger().Debugf("事件 %s 匹配到 %d 条候选规则 tenant=%d trigger=%s/%s",
		event.EventID, len(rules), event.TenantID, event.TriggerType, event.TriggerEntity)

	for i := range rules {
		e.processRule(&rules[i], event)
	}

	return nil
}

// processRule 处理单条规则，panic就地恢复，保证规则间隔离
func (e *AutomationEngine) processRule(rule *models.AutomationRule, event *EntityEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().Errorf("规则处理panic rule=%d event=%s: %v", rule.ID, event.EventID, r)
			e.writeLog(rule, event, models.ExecutionStatusFailed, nil,
				fmt.Sprintf("规则处理异常: %v", r))
			e.recordRun(rule.ID)
		}
	}()

	var conditions []models.AutomationCondition
	if len(rule.Conditions) > 0 {
		if err := json.Unmarshal(rule.Conditions, &conditions); err != nil {
			e.writeLog(rule, event, models.ExecutionStatusFailed, nil,
				fmt.Sprintf("规则条件解析失败: %v", err))
			e.recordRun(rule.ID)
			return
		}
	}

	// 条件不匹配：记skipped日志，不计入run_count
	if !EvaluateConditions(conditions, event.Snapshot) {
		e.writeLog(rule, event, models.ExecutionStatusSkipped, nil, "")
		return
	}

	var actions []models.AutomationAction
	if len(rule.Actions) > 0 {
		if err := json.Unmarshal(rule.Actions, &actions); err != nil {
			e.writeLog(rule, event, models.ExecutionStatusFailed, nil,
				fmt.Sprintf("规则动作解析失败: %v", err))
			e.recordRun(rule.ID)
			return
		}
	}

	// 规则级动作预算：超时中止剩余动作，已产生的结果保留
	ctx, cancel := context.WithTimeout(context.Background(), e.actionBudget)
	defer cancel()

	outcomes, execErr := e.executor.Execute(ctx, actions, event, rule.ID)

	status := models.ExecutionStatusSuccess
	var errorMessages []string
	for _, outcome := range outcomes {
		if !outcome.Succeeded {
			status = models.ExecutionStatusFailed
			errorMessages = append(errorMessages, fmt.Sprintf("%s: %s", outcome.Type, outcome.Error))
		}
	}
	if execErr != nil {
		status = models.ExecutionStatusFailed
		errorMessages = append(errorMessages, execErr.Error())
	}

	e.writeLog(rule, event, status, outcomes, strings.Join(errorMessages, "; "))
	e.recordRun(rule.ID)
}

// writeLog 写执行日志，失败只记录不中断（日志是事实记录，不能反过来阻塞引擎）
func (e *AutomationEngine) writeLog(rule *models.AutomationRule, event *EntityEvent, status string, outcomes []models.ActionOutcome, errorMessage string) {
	log := &models.AutomationExecutionLog{
		TenantID:      rule.TenantID,
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		TriggerType:   event.TriggerType,
		TriggerEntity: event.TriggerEntity,
		EntityID:      event.EntityID,
		Status:        status,
		ErrorMessage:  errorMessage,
	}

	if outcomes != nil {
		if data, err := json.Marshal(outcomes); err == nil {
			log.ActionsExecuted = models.JSON(data)
		}
	}

	details := map[string]interface{}{"event_id": event.EventID}
	if data, err := json.Marshal(details); err == nil {
		log.Details = models.JSON(data)
	}

	if err := e.logService.Create(log); err != nil {
		logger.GetLogger().Errorf("写执行日志失败 rule=%d event=%s: %v", rule.ID, event.EventID, err)
	}
}

// recordRun 更新规则执行统计，失败只记录
func (e *AutomationEngine) recordRun(ruleID uint) {
	if err := e.ruleService.RecordRun(ruleID, time.Now()); err != nil {
		logger.GetLogger().Errorf("更新规则执行统计失败 rule=%d: %v", ruleID, err)
	}
}
