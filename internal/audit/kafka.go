package audit

import (
	"PhonePilot/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher 封装了向 Kafka 发送审计事件的逻辑。
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher 创建一个新的 KafkaPublisher 实例。
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	// 为审计主题创建一个新的 writer 实例配置
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	})
	return &KafkaPublisher{writer: writer}
}

// LogStep 将 StepEvent 序列化为 JSON 并发送到 Kafka，消息按任务 ID 分区。
func (p *KafkaPublisher) LogStep(ctx context.Context, event *models.StepEvent) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TaskID),
		Value: jsonData,
	})
	if err != nil {
		return fmt.Errorf("failed to write audit event to kafka: %w", err)
	}

	return nil
}

// Close 关闭底层的 writer 连接。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
