package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Kosei0128/Plane-SNS/internal/config"
	"github.com/Kosei0128/Plane-SNS/internal/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event 领域事件信封
type Event struct {
	EventID    string      `json:"event_id"`
	EventType  string      `json:"event_type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// Publisher 领域事件发布接口
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, data interface{}) error
	Close() error
}

// NewEvent 构建事件信封
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// NewPublisher 按配置创建发布器，未启用 kafka 时返回空实现
func NewPublisher(cfg config.KafkaConfig) Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return NoopPublisher{}
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = "storefront-events"
	}
	return NewKafkaPublisher(cfg.Brokers, topic)
}

// KafkaPublisher 基于 kafka-go 的事件发布器
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher 创建 kafka 发布器
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	return &KafkaPublisher{writer: writer}
}

// Publish 发布事件；同一 key 的事件落在同一分区保持顺序
func (p *KafkaPublisher) Publish(ctx context.Context, eventType, key string, data interface{}) error {
	event := NewEvent(eventType, data)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message failed: %w", err)
	}
	logger.Debugw("event_published", "event_type", eventType, "event_id", event.EventID, "key", key)
	return nil
}

// Close 关闭 writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher 未配置消息总线时使用
type NoopPublisher struct{}

// Publish 丢弃事件
func (NoopPublisher) Publish(context.Context, string, string, interface{}) error { return nil }

// Close 无操作
func (NoopPublisher) Close() error { return nil }

// OrderKey 订单事件分区键
func OrderKey(orderID uint) string {
	return fmt.Sprintf("order-%d", orderID)
}

// UserKey 用户事件分区键
func UserKey(userID string) string {
	return "user-" + strings.TrimSpace(userID)
}
