package models

import (
	"gorm.io/datatypes"
)

// EntityMutation 实体字段变更请求（outbox）
// assign_user / update_field动作不直接写业务表——实体结构由各CRUD模块自有，
// 引擎只记录变更请求，由实体归属模块应用
type EntityMutation struct {
	BaseModel
	TenantID uint `gorm:"not null;index" json:"tenant_id"`

	EntityType string `gorm:"size:50;not null;index:idx_mutation_entity" json:"entity_type"`
	EntityID   string `gorm:"size:100;not null;index:idx_mutation_entity" json:"entity_id"`

	Field string         `gorm:"size:100;not null" json:"field"`
	Value datatypes.JSON `gorm:"type:json" json:"value"` // 目标值（JSON编码，保留类型）

	// 来源
	Source string `gorm:"size:50;default:'automation'" json:"source"`
	RuleID uint   `gorm:"index" json:"rule_id"`

	Status string `gorm:"size:20;default:'pending';index" json:"status"` // pending/applied/rejected
}

// TableName 指定表名
func (EntityMutation) TableName() string {
	return "entity_mutations"
}

// 变更请求状态常量
const (
	MutationStatusPending  = "pending"
	MutationStatusApplied  = "applied"
	MutationStatusRejected = "rejected"
)
