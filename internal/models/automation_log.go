package models

import (
	"time"
)

// AutomationExecutionLog 自动化执行日志
// 每次规则触发（firing）写入一行，写入后不可变更；
// 规则删除后历史日志保留
type AutomationExecutionLog struct {
	ID       uint `gorm:"primarykey" json:"id"`
	TenantID uint `gorm:"not null;index:idx_log_tenant_created" json:"tenant_id"`

	// 规则快照信息（规则名冗余存储，规则改名/删除不影响历史）
	RuleID   uint   `gorm:"not null;index" json:"rule_id"`
	RuleName string `gorm:"size:200;not null" json:"rule_name"`

	// 触发信息
	TriggerType   string `gorm:"size:50;not null" json:"trigger_type"`
	TriggerEntity string `gorm:"size:50;not null" json:"trigger_entity"`
	EntityID      string `gorm:"size:100;not null;index" json:"entity_id"`

	// 执行结果
	Status          string `gorm:"size:20;not null;index" json:"status"`     // success/failed/skipped
	ActionsExecuted JSON   `gorm:"type:jsonb" json:"actions_executed"`       // []ActionOutcome，按执行顺序
	ErrorMessage    string `gorm:"type:text" json:"error_message,omitempty"` // 规则级错误（如超时）
	Details         JSON   `gorm:"type:jsonb" json:"details,omitempty"`      // 附加结构化信息

	CreatedAt time.Time `gorm:"not null;index:idx_log_tenant_created" json:"created_at"`
}

// TableName 指定表名
func (AutomationExecutionLog) TableName() string {
	return "automation_execution_logs"
}

// ActionOutcome 单个动作的执行结果
type ActionOutcome struct {
	Type      string                 `json:"type"`
	Config    map[string]interface{} `json:"config"`
	Succeeded bool                   `json:"succeeded"`
	Error     string                 `json:"error,omitempty"`
}

// 执行状态常量
const (
	ExecutionStatusSuccess = "success" // 所有动作执行成功
	ExecutionStatusFailed  = "failed"  // 至少一个动作失败（或规则级错误）
	ExecutionStatusSkipped = "skipped" // 条件不匹配，未执行动作
)

// ValidExecutionStatuses 合法执行状态集合（日志查询过滤用）
var ValidExecutionStatuses = map[string]bool{
	ExecutionStatusSuccess: true,
	ExecutionStatusFailed:  true,
	ExecutionStatusSkipped: true,
}
