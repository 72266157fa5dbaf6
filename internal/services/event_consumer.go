package services

import (
	"sync"
	"time"

	"github.com/donkeyideas/Construction-sub000/pkg/logger"
	"github.com/donkeyideas/Construction-sub000/pkg/queue"
)

// EventConsumer Redis事件消费者
// 从队列取实体事件，幂等去重后交给自动化引擎处理
type EventConsumer struct {
	queue        *queue.RedisQueue
	engine       *AutomationEngine
	blockTimeout time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewEventConsumer 创建事件消费者
func NewEventConsumer(q *queue.RedisQueue, engine *AutomationEngine, blockTimeout time.Duration) *EventConsumer {
	return &EventConsumer{
		queue:        q,
		engine:       engine,
		blockTimeout: blockTimeout,
		stopChan:     make(chan struct{}),
	}
}

// Start 启动消费循环
func (c *EventConsumer) Start() {
	c.wg.Add(1)
	go c.loop()
	logger.GetLogger().Info("自动化事件消费者已启动")
}

// Stop 停止消费循环，等待当前事件处理完成
func (c *EventConsumer) Stop() {
	close(c.stopChan)
	c.wg.Wait()
	logger.GetLogger().Info("自动化事件消费者已停止")
}

// loop 消费循环：任何单次错误都只记录，不能让消费者退出
func (c *EventConsumer) loop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		message, err := c.queue.ConsumeEntityEvent(c.blockTimeout)
		if err != nil {
			logger.GetLogger().Errorf("消费实体事件失败: %v", err)
			// Redis瞬时故障时退避，避免空转刷日志
			time.Sleep(time.Second)
			continue
		}
		if message == nil {
			continue
		}

		c.handleMessage(message)
	}
}

// handleMessage 处理一条事件：先SETNX抢占幂等标记，重复投递直接丢弃
// 队列是at-least-once语义，去重保证动作只执行一次
func (c *EventConsumer) handleMessage(message *queue.EntityEventMessage) {
	first, err := c.queue.MarkEventProcessed(message.ProcessedKey())
	if err != nil {
		// 去重标记失败时仍然处理：宁可重复执行，不可丢事件
		logger.GetLogger().Errorf("标记事件处理状态失败 event=%s: %v", message.EventID, err)
	} else if !first {
		logger.GetLogger().Debugf("跳过重复事件 event=%s", message.EventID)
		return
	}

	event := &EntityEvent{
		EventID:       message.EventID,
		TenantID:      message.TenantID,
		TriggerType:   message.TriggerType,
		TriggerEntity: message.TriggerEntity,
		EntityID:      message.EntityID,
		Snapshot:      message.Snapshot,
	}

	if err := c.engine.HandleEvent(event); err != nil {
		logger.GetLogger().Errorf("处理实体事件失败 event=%s tenant=%d: %v",
			message.EventID, message.TenantID, err)
	}
}
