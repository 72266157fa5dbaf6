package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisQueue 实体事件队列（Redis实现）
// CRUD模块在创建/更新实体后投递生命周期事件，自动化引擎消费
type RedisQueue struct {
	client *redis.Client
	prefix string
}

// EntityEventMessage 队列中的实体生命周期事件
type EntityEventMessage struct {
	EventID       string                 `json:"event_id"`       // 事件唯一标识（幂等去重用）
	TenantID      uint                   `json:"tenant_id"`      // 公司（租户）ID
	TriggerType   string                 `json:"trigger_type"`   // entity_created / entity_updated / ...
	TriggerEntity string                 `json:"trigger_entity"` // ticket / incident / daily_log / ...
	EntityID      string                 `json:"entity_id"`      // 触发实体ID
	Snapshot      map[string]interface{} `json:"snapshot"`       // 触发时的实体快照
	OccurredAt    int64                  `json:"occurred_at"`    // 事件发生时间（Unix秒）
}

// ProcessedKey 幂等标记键：同一事件重复投递时保证动作只执行一次
func (m *EntityEventMessage) ProcessedKey() string {
	return fmt.Sprintf("%d:%s:%s:%s:%s", m.TenantID, m.TriggerType, m.TriggerEntity, m.EntityID, m.EventID)
}

// Config Redis配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

// NewRedisQueue 创建Redis队列实例
func NewRedisQueue(config *Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	prefix := config.Prefix
	if prefix == "" {
		prefix = "construction:automation"
	}

	return &RedisQueue{
		client: client,
		prefix: prefix,
	}
}

// Close 关闭Redis连接
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Ping 测试Redis连接
func (q *RedisQueue) Ping() error {
	ctx := context.Background()
	return q.client.Ping(ctx).Err()
}

// PublishEntityEvent 投递实体生命周期事件
// EventID为空时自动生成
func (q *RedisQueue) PublishEntityEvent(event *EntityEventMessage) error {
	ctx := context.Background()

	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.OccurredAt == 0 {
		event.OccurredAt = time.Now().Unix()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %v", err)
	}

	// 左侧入队，消费侧BRPOP保证FIFO
	if err := q.client.LPush(ctx, q.eventQueueKey(), data).Err(); err != nil {
		return fmt.Errorf("事件入队失败: %v", err)
	}

	return nil
}

// ConsumeEntityEvent 阻塞消费一条事件
// 超时无事件时返回 (nil, nil)
func (q *RedisQueue) ConsumeEntityEvent(blockTimeout time.Duration) (*EntityEventMessage, error) {
	ctx := context.Background()

	result, err := q.client.BRPop(ctx, blockTimeout, q.eventQueueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	// BRPop返回 [key, value]
	if len(result) < 2 {
		return nil, nil
	}

	var event EntityEventMessage
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		return nil, fmt.Errorf("反序列化事件失败: %v", err)
	}

	return &event, nil
}

// MarkEventProcessed 标记事件已处理
// 返回true表示首次处理，false表示重复投递（应跳过）
func (q *RedisQueue) MarkEventProcessed(processedKey string) (bool, error) {
	ctx := context.Background()
	key := fmt.Sprintf("%s:processed:%s", q.prefix, processedKey)

	// SETNX + 24小时过期：重复事件的去重窗口
	return q.client.SetNX(ctx, key, time.Now().Unix(), 24*time.Hour).Result()
}

// IsEventProcessed 查询事件是否已处理过
func (q *RedisQueue) IsEventProcessed(processedKey string) (bool, error) {
	ctx := context.Background()
	key := fmt.Sprintf("%s:processed:%s", q.prefix, processedKey)

	count, err := q.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// QueueLength 当前队列长度
func (q *RedisQueue) QueueLength() (int64, error) {
	ctx := context.Background()
	return q.client.LLen(ctx, q.eventQueueKey()).Result()
}

// eventQueueKey 事件队列键名
func (q *RedisQueue) eventQueueKey() string {
	return fmt.Sprintf("%s:events", q.prefix)
}

// GetClient 获取Redis客户端（用于高级操作）
func (q *RedisQueue) GetClient() *redis.Client {
	return q.client
}
