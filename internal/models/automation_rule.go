package models

import (
	"time"
)

// AutomationRule 自动化规则
// 触发标识（TriggerType + TriggerEntity）是规则的不可变身份；
// 名称、条件、动作、启用状态为可变配置
type AutomationRule struct {
	BaseModel
	TenantID uint `gorm:"not null;index:idx_rule_tenant_trigger" json:"tenant_id"`

	// 基本信息
	Name        string `gorm:"size:200;not null" json:"name"`
	Description string `gorm:"size:500" json:"description"`
	IsEnabled   bool   `gorm:"default:true;index" json:"is_enabled"`

	// 触发配置
	TriggerType   string `gorm:"size:50;not null;index:idx_rule_tenant_trigger" json:"trigger_type"`   // entity_created/entity_updated/...
	TriggerEntity string `gorm:"size:50;not null;index:idx_rule_tenant_trigger" json:"trigger_entity"` // ticket/incident/daily_log/...

	// 条件与动作（有序列表，JSONB存储保持顺序）
	Conditions JSON `gorm:"type:jsonb" json:"conditions"` // []AutomationCondition，空表示总是匹配
	Actions    JSON `gorm:"type:jsonb" json:"actions"`    // []AutomationAction，空表示匹配但无副作用

	// 执行统计（只在实际执行动作时计数，skipped不计入）
	RunCount  int64      `gorm:"default:0" json:"run_count"`
	LastRunAt *time.Time `json:"last_run_at"`

	// 审计
	CreatedBy uint `json:"created_by"`
	UpdatedBy uint `json:"updated_by"`

	// 关联
	Tenant Tenant `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
}

// TableName 指定表名
func (AutomationRule) TableName() string {
	return "automation_rules"
}

// AutomationCondition 单个字段条件，规则内所有条件按AND组合
type AutomationCondition struct {
	Field    string      `json:"field"`    // 实体快照中的字段路径，支持点号嵌套，如 location.city
	Operator string      `json:"operator"` // equals/not_equals/contains/greater_than/less_than/in/is_empty/is_not_empty
	Value    interface{} `json:"value"`    // 比较值，in操作符要求列表
}

// AutomationAction 单个动作，按列表顺序执行，成功失败互不影响
type AutomationAction struct {
	Type   string                 `json:"type"`   // send_notification/assign_user/update_field/...
	Config map[string]interface{} `json:"config"` // 动作类型对应的配置项
}

// 触发类型常量
const (
	TriggerEntityCreated       = "entity_created"
	TriggerEntityUpdated       = "entity_updated"
	TriggerEntityStatusChanged = "entity_status_changed"
	TriggerEntityAssigned      = "entity_assigned"
)

// 触发实体常量
const (
	EntityTicket   = "ticket"
	EntityIncident = "incident"
	EntityDailyLog = "daily_log"
	EntityProject  = "project"
	EntityInvoice  = "invoice"
)

// 条件操作符常量
const (
	OperatorEquals      = "equals"
	OperatorNotEquals   = "not_equals"
	OperatorContains    = "contains"
	OperatorGreaterThan = "greater_than"
	OperatorLessThan    = "less_than"
	OperatorIn          = "in"
	OperatorIsEmpty     = "is_empty"
	OperatorIsNotEmpty  = "is_not_empty"
)

// 动作类型常量
const (
	ActionSendNotification = "send_notification"
	ActionAssignUser       = "assign_user"
	ActionUpdateField      = "update_field"
	ActionCreateTask       = "create_task"
	ActionSendEmail        = "send_email"
	ActionWebhook          = "webhook"
)

// ValidTriggerTypes 合法触发类型集合
var ValidTriggerTypes = map[string]bool{
	TriggerEntityCreated:       true,
	TriggerEntityUpdated:       true,
	TriggerEntityStatusChanged: true,
	TriggerEntityAssigned:      true,
}

// ValidTriggerEntities 合法触发实体集合
var ValidTriggerEntities = map[string]bool{
	EntityTicket:   true,
	EntityIncident: true,
	EntityDailyLog: true,
	EntityProject:  true,
	EntityInvoice:  true,
}

// ValidOperators 合法条件操作符集合
var ValidOperators = map[string]bool{
	OperatorEquals:      true,
	OperatorNotEquals:   true,
	OperatorContains:    true,
	OperatorGreaterThan: true,
	OperatorLessThan:    true,
	OperatorIn:          true,
	OperatorIsEmpty:     true,
	OperatorIsNotEmpty:  true,
}

// ActionRequiredConfigKeys 各动作类型必填的配置键
// 创建/更新规则时校验，保证落库的规则总是可执行的
var ActionRequiredConfigKeys = map[string][]string{
	ActionSendNotification: {"message"},
	ActionAssignUser:       {"user_id"},
	ActionUpdateField:      {"field", "value"},
	ActionCreateTask:       {"title"},
	ActionSendEmail:        {"to", "subject"},
	ActionWebhook:          {"url"},
}
