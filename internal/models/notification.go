package models

import (
	"gorm.io/datatypes"
)

// Notification 站内通知
// send_notification动作的落库目标，展示层（不在本仓库范围）负责推送与已读管理
type Notification struct {
	BaseModel
	TenantID uint `gorm:"not null;index" json:"tenant_id"`

	// 接收人，0表示广播给全公司
	UserID uint `gorm:"index" json:"user_id"`

	Title   string `gorm:"size:200" json:"title"`
	Message string `gorm:"size:1000;not null" json:"message"`

	// 来源实体（点击跳转用）
	EntityType string `gorm:"size:50" json:"entity_type"`
	EntityID   string `gorm:"size:100" json:"entity_id"`

	// 来源规则与附加数据
	RuleID uint           `gorm:"index" json:"rule_id"`
	Data   datatypes.JSON `gorm:"type:json" json:"data,omitempty"`

	IsRead bool `gorm:"default:false;index" json:"is_read"`
}

// TableName 指定表名
func (Notification) TableName() string {
	return "notifications"
}
