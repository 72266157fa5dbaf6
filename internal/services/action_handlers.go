package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/donkeyideas/Construction-sub000/internal/models"
	"github.com/donkeyideas/Construction-sub000/pkg/config"

	"gorm.io/gorm"
)

// RegisterDefaultHandlers 注册内置动作处理器
// 进程启动时调用一次；测试可以只注册替身
func RegisterDefaultHandlers(executor *ActionExecutor, db *gorm.DB, cfg *config.Config, sender EmailSender) {
	executor.Register(models.ActionSendNotification, &NotificationActionHandler{db: db})
	executor.Register(models.ActionAssignUser, &AssignUserActionHandler{db: db})
	executor.Register(models.ActionUpdateField, &UpdateFieldActionHandler{db: db})
	executor.Register(models.ActionCreateTask, &CreateTaskActionHandler{db: db})
	executor.Register(models.ActionSendEmail, &EmailActionHandler{sender: sender})
	executor.Register(models.ActionWebhook, &WebhookActionHandler{
		client: &http.Client{Timeout: time.Duration(cfg.Automation.WebhookTimeoutSecs) * time.Second},
	})
}

// ========== send_notification ==========

// NotificationActionHandler 站内通知动作
type NotificationActionHandler struct {
	db *gorm.DB
}

func (h *NotificationActionHandler) Execute(ctx context.Context, action models.AutomationAction, event *EntityEvent, ruleID uint) error {
	message := configString(action.Config, "message")
	if message == "" {
		return fmt.Errorf("缺少配置项: message")
	}

	notification := &models.Notification{
		TenantID:   event.TenantID,
		UserID:     configUint(action.Config, "user_id"),
		Title:      configString(action.Config, "title"),
		Message:    message,
		EntityType: event.TriggerEntity,
		EntityID:   event.EntityID,
		RuleID:     ruleID,
	}

	return h.db.WithContext(ctx).Create(notification).Error
}

// ========== assign_user ==========

// AssignUserActionHandler 指派负责人动作
// 实体表由各CRUD模块自有，这里写入变更请求（outbox），由归属模块应用
type AssignUserActionHandler struct {
	db *gorm.DB
}

func (h *AssignUserActionHandler) Execute(ctx context.Context, action models.AutomationAction, event *EntityEvent, ruleID uint) error {
	userID := configUint(action.Config, "user_id")
	if userID == 0 {
		return fmt.Errorf("缺少配置项: user_id")
	}

	value, _ := json.Marshal(userID)
	mutation := &models.EntityMutation{
		TenantID:   event.TenantID,
		EntityType: event.TriggerEntity,
		EntityID:   event.EntityID,
		Field:      "assigned_to",
		Value:      value,
		Source:     "automation",
		RuleID:     ruleID,
	}

	return h.db.WithContext(ctx).Create(mutation).Error
}

// ========== update_field ==========

// UpdateFieldActionHandler 更新实体字段动作（同样走outbox）
type UpdateFieldActionHandler struct {
	db *gorm.DB
}

func (h *UpdateFieldActionHandler) Execute(ctx context.Context, action models.AutomationAction, event *EntityEvent, ruleID uint) error {
	field := configString(action.Config, "field")
	if field == "" {
		return fmt.Errorf("缺少配置项: field")
	}
	rawValue, ok := action.Config["value"]
	if !ok {
		return fmt.Errorf("缺少配置项: value")
	}

	value, err := json.Marshal(rawValue)
	if err != nil {
		return fmt.Errorf("序列化目标值失败: %v", err)
	}

	mutation := &models.EntityMutation{
		TenantID:   event.TenantID,
		EntityType: event.TriggerEntity,
		EntityID:   event.EntityID,
		Field:      field,
		Value:      value,
		Source:     "automation",
		RuleID:     ruleID,
	}

	return h.db.WithContext(ctx).Create(mutation).Error
}

// ========== create_task ==========

// CreateTaskActionHandler 创建跟进任务动作
type CreateTaskActionHandler struct {
	db *gorm.DB
}

func (h *CreateTaskActionHandler) Execute(ctx context.Context, action models.AutomationAction, event *EntityEvent, ruleID uint) error {
	title := configString(action.Config, "title")
	if title == "" {
		return fmt.Errorf("缺少配置项: title")
	}

	task := &models.FollowUpTask{
		TenantID:    event.TenantID,
		Title:       title,
		Description: configString(action.Config, "description"),
		AssigneeID:  configUint(action.Config, "assignee_id"),
		EntityType:  event.TriggerEntity,
		EntityID:    event.EntityID,
		RuleID:      ruleID,
		Status:      models.FollowUpTaskStatusOpen,
	}

	if days := configUint(action.Config, "due_in_days"); days > 0 {
		dueAt := time.Now().AddDate(0, 0, int(days))
		task.DueAt = &dueAt
	}

	return h.db.WithContext(ctx).Create(task).Error
}

// ========== send_email ==========

// EmailActionHandler 邮件通知动作
type EmailActionHandler struct {
	sender EmailSender
}

func (h *EmailActionHandler) Execute(ctx context.Context, action models.AutomationAction, event *EntityEvent, ruleID uint) error {
	to := configString(action.Config, "to")
	subject := configString(action.Config, "subject")
	if to == "" || subject == "" {
		return fmt.Errorf("缺少配置项: to/subject")
	}

	body := configString(action.Config, "body")
	if body == "" {
		body = fmt.Sprintf("自动化规则触发: %s #%s", event.TriggerEntity, event.EntityID)
	}

	// 支持逗号分隔的多个收件人
	recipients := make([]string, 0)
	for _, addr := range strings.Split(to, ",") {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}

	return h.sender.Send(recipients, subject, body)
}

// ========== webhook ==========

// WebhookActionHandler 外发HTTP回调动作
type WebhookActionHandler struct {
	client *http.Client
}

// webhookPayload 回调请求体
type webhookPayload struct {
	EventID       string                 `json:"event_id"`
	TenantID      uint                   `json:"tenant_id"`
	RuleID        uint                   `json:"rule_id"`
	TriggerType   string                 `json:"trigger_type"`
	TriggerEntity string                 `json:"trigger_entity"`
	EntityID      string                 `json:"entity_id"`
	Snapshot      map[string]interface{} `json:"snapshot"`
}

func (h *WebhookActionHandler) Execute(ctx context.Context, action models.AutomationAction, event *EntityEvent, ruleID uint) error {
	url := configString(action.Config, "url")
	if url == "" {
		return fmt.Errorf("缺少配置项: url")
	}

	body, err := json.Marshal(webhookPayload{
		EventID:       event.EventID,
		TenantID:      event.TenantID,
		RuleID:        ruleID,
		TriggerType:   event.TriggerType,
		TriggerEntity: event.TriggerEntity,
		EntityID:      event.EntityID,
		Snapshot:      event.Snapshot,
	})
	if err != nil {
		return fmt.Errorf("序列化回调请求体失败: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// 配置了secret时附带HMAC-SHA256签名，接收方校验来源
	if secret := configString(action.Config, "secret"); secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		req.Header.Set("X-Automation-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("回调请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("回调返回非成功状态码: %d", resp.StatusCode)
	}

	return nil
}

// ========== 配置读取辅助 ==========

// configString 读取字符串配置项，缺失或类型不符返回空串
func configString(cfg map[string]interface{}, key string) string {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// configUint 读取数字配置项
// JSON反序列化后数字是float64，前端也可能传字符串，统一兼容
func configUint(cfg map[string]interface{}, key string) uint {
	switch v := cfg[key].(type) {
	case float64:
		if v > 0 {
			return uint(v)
		}
	case int:
		if v > 0 {
			return uint(v)
		}
	case string:
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint(n)
		}
	}
	return 0
}
