package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/donkeyideas/Construction-sub000/internal/models"

	"github.com/stretchr/testify/assert"
)

// fakeEmailSender 记录发送请求的测试替身
type fakeEmailSender struct {
	to      []string
	subject string
	body    string
}

func (f *fakeEmailSender) Send(to []string, subject, body string) error {
	f.to = to
	f.subject = subject
	f.body = body
	return nil
}

func TestNotificationActionHandler(t *testing.T) {
	db := setupTestDB(t)
	handler := &NotificationActionHandler{db: db}

	action := models.AutomationAction{
		Type: models.ActionSendNotification,
		Config: map[string]interface{}{
			"message": "三层浇筑工单已创建",
			"title":   "新工单",
			"user_id": float64(9),
		},
	}

	err := handler.Execute(context.Background(), action, testEvent(), 5)
	assert.NoError(t, err)

	var notification models.Notification
	assert.NoError(t, db.First(&notification).Error)
	assert.Equal(t, "三层浇筑工单已创建", notification.Message)
	assert.Equal(t, uint(9), notification.UserID)
	assert.Equal(t, models.EntityTicket, notification.EntityType)
	assert.Equal(t, uint(5), notification.RuleID)

	// 缺少message报错
	err = handler.Execute(context.Background(), models.AutomationAction{
		Type:   models.ActionSendNotification,
		Config: map[string]interface{}{},
	}, testEvent(), 5)
	assert.Error(t, err)
}

func TestAssignUserActionHandler(t *testing.T) {
	db := setupTestDB(t)
	handler := &AssignUserActionHandler{db: db}

	action := models.AutomationAction{
		Type:   models.ActionAssignUser,
		Config: map[string]interface{}{"user_id": float64(7)},
	}

	err := handler.Execute(context.Background(), action, testEvent(), 3)
	assert.NoError(t, err)

	// 不直接改业务表，写变更请求
	var mutation models.EntityMutation
	assert.NoError(t, db.First(&mutation).Error)
	assert.Equal(t, "assigned_to", mutation.Field)
	assert.Equal(t, models.MutationStatusPending, mutation.Status)
	assert.JSONEq(t, "7", string(mutation.Value))
}

func TestUpdateFieldActionHandler(t *testing.T) {
	db := setupTestDB(t)
	handler := &UpdateFieldActionHandler{db: db}

	action := models.AutomationAction{
		Type: models.ActionUpdateField,
		Config: map[string]interface{}{
			"field": "priority",
			"value": "high",
		},
	}

	err := handler.Execute(context.Background(), action, testEvent(), 3)
	assert.NoError(t, err)

	var mutation models.EntityMutation
	assert.NoError(t, db.First(&mutation).Error)
	assert.Equal(t, "priority", mutation.Field)
	assert.JSONEq(t, `"high"`, string(mutation.Value))
}

func TestCreateTaskActionHandler(t *testing.T) {
	db := setupTestDB(t)
	handler := &CreateTaskActionHandler{db: db}

	action := models.AutomationAction{
		Type: models.ActionCreateTask,
		Config: map[string]interface{}{
			"title":       "复查混凝土强度",
			"assignee_id": float64(4),
			"due_in_days": float64(3),
		},
	}

	err := handler.Execute(context.Background(), action, testEvent(), 8)
	assert.NoError(t, err)

	var task models.FollowUpTask
	assert.NoError(t, db.First(&task).Error)
	assert.Equal(t, "复查混凝土强度", task.Title)
	assert.Equal(t, uint(4), task.AssigneeID)
	assert.Equal(t, models.FollowUpTaskStatusOpen, task.Status)
	if assert.NotNil(t, task.DueAt) {
		expected := time.Now().AddDate(0, 0, 3)
		assert.WithinDuration(t, expected, *task.DueAt, time.Minute)
	}
}

func TestEmailActionHandler(t *testing.T) {
	sender := &fakeEmailSender{}
	handler := &EmailActionHandler{sender: sender}

	action := models.AutomationAction{
		Type: models.ActionSendEmail,
		Config: map[string]interface{}{
			"to":      "pm@site.com, safety@site.com",
			"subject": "工单提醒",
			"body":    "请关注新建工单",
		},
	}

	err := handler.Execute(context.Background(), action, testEvent(), 1)
	assert.NoError(t, err)
	assert.Equal(t, []string{"pm@site.com", "safety@site.com"}, sender.to)
	assert.Equal(t, "工单提醒", sender.subject)
}

func TestWebhookActionHandler(t *testing.T) {
	var received webhookPayload
	var signature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-Automation-Signature")
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	handler := &WebhookActionHandler{client: server.Client()}

	action := models.AutomationAction{
		Type: models.ActionWebhook,
		Config: map[string]interface{}{
			"url":    server.URL,
			"secret": "s3cret",
		},
	}

	err := handler.Execute(context.Background(), action, testEvent(), 6)
	assert.NoError(t, err)
	assert.Equal(t, "evt-1", received.EventID)
	assert.Equal(t, uint(6), received.RuleID)
	assert.NotEmpty(t, signature, "配置secret时应附带签名")
}

func TestWebhookActionHandlerNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	handler := &WebhookActionHandler{client: server.Client()}

	action := models.AutomationAction{
		Type:   models.ActionWebhook,
		Config: map[string]interface{}{"url": server.URL},
	}

	err := handler.Execute(context.Background(), action, testEvent(), 1)
	assert.Error(t, err, "非2xx回调视为失败")
}
