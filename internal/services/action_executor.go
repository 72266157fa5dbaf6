package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/donkeyideas/Construction-sub000/internal/models"
	"github.com/donkeyideas/Construction-sub000/pkg/logger"
)

// EntityEvent 实体生命周期事件（引擎的输入）
// 快照是触发时刻的只读结构化视图，引擎不拥有实体结构
type EntityEvent struct {
	EventID       string
	TenantID      uint
	TriggerType   string
	TriggerEntity string
	EntityID      string
	Snapshot      map[string]interface{}
}

// ActionHandler 动作处理器接口
// 每种动作类型一个实现，进程启动时注册到执行器
type ActionHandler interface {
	Execute(ctx context.Context, action models.AutomationAction, event *EntityEvent, ruleID uint) error
}

// ErrActionBudgetExceeded 动作列表超出规则的执行时间预算
var ErrActionBudgetExceeded = errors.New("动作执行超出时间预算")

// ActionExecutor 动作执行器
// 按列表顺序逐个执行动作，单个动作失败不中断后续动作（部分成功是预期状态）
type ActionExecutor struct {
	handlers map[string]ActionHandler
}

// NewActionExecutor 创建空的动作执行器，处理器由调用方注册
func NewActionExecutor() *ActionExecutor {
	return &ActionExecutor{
		handlers: make(map[string]ActionHandler),
	}
}

// Register 注册动作处理器
func (e *ActionExecutor) Register(actionType string, handler ActionHandler) {
	e.handlers[actionType] = handler
}

// Execute 顺序执行动作列表，返回每个动作的独立结果
// 上下文超时（规则级预算）时中止剩余动作并返回ErrActionBudgetExceeded；
// 已执行动作的结果仍然完整返回
func (e *ActionExecutor) Execute(ctx context.Context, actions []models.AutomationAction, event *EntityEvent, ruleID uint) ([]models.ActionOutcome, error) {
	outcomes := make([]models.ActionOutcome, 0, len(actions))

	for _, action := range actions {
		// 动作之间检查预算，超时则剩余动作不再执行
		if ctx.Err() != nil {
			return outcomes, ErrActionBudgetExceeded
		}

		outcome := models.ActionOutcome{
			Type:   action.Type,
			Config: action.Config,
		}

		handler, ok := e.handlers[action.Type]
		if !ok {
			outcome.Error = fmt.Sprintf("不支持的动作类型: %s", action.Type)
			outcomes = append(outcomes, outcome)
			continue
		}

		if err := e.runHandler(ctx, handler, action, event, ruleID); err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.Succeeded = true
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

// runHandler 执行单个处理器，panic转为普通错误，保证兄弟动作继续执行
func (e *ActionExecutor) runHandler(ctx context.Context, handler ActionHandler, action models.AutomationAction, event *EntityEvent, ruleID uint) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().Errorf("动作处理器panic type=%s rule=%d: %v", action.Type, ruleID, r)
			err = fmt.Errorf("动作处理器异常: %v", r)
		}
	}()

	return handler.Execute(ctx, action, event, ruleID)
}
