package models

import (
	"time"

	"gorm.io/datatypes"
)

// FollowUpTask 跟进任务
// create_task动作的落库目标，任务看板（不在本仓库范围）消费
type FollowUpTask struct {
	BaseModel
	TenantID uint `gorm:"not null;index" json:"tenant_id"`

	Title       string `gorm:"size:200;not null" json:"title"`
	Description string `gorm:"size:1000" json:"description"`

	// 指派信息
	AssigneeID uint       `gorm:"index" json:"assignee_id"`
	DueAt      *time.Time `json:"due_at"`

	// 来源实体与规则
	EntityType string         `gorm:"size:50" json:"entity_type"`
	EntityID   string         `gorm:"size:100" json:"entity_id"`
	RuleID     uint           `gorm:"index" json:"rule_id"`
	Metadata   datatypes.JSON `gorm:"type:json" json:"metadata,omitempty"`

	Status string `gorm:"size:20;default:'open';index" json:"status"` // open/done/cancelled
}

// TableName 指定表名
func (FollowUpTask) TableName() string {
	return "follow_up_tasks"
}

// 跟进任务状态常量
const (
	FollowUpTaskStatusOpen      = "open"
	FollowUpTaskStatusDone      = "done"
	FollowUpTaskStatusCancelled = "cancelled"
)
