package notify

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/d60-Lab/food-order/internal/service"
)

// KafkaPublisher 将订单事件写入 Kafka，按订单 ID 分区保证同一订单有序
type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		timeout: 5 * time.Second,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msgs ...service.EventMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, toKafkaMessages(msgs)...)
}

func toKafkaMessages(msgs []service.EventMessage) []kafka.Message {
	out := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		out[i] = kafka.Message{
			Key:     []byte(m.Key),
			Value:   m.Value,
			Headers: []kafka.Header{{Key: "event-type", Value: []byte(m.Type)}},
		}
	}
	return out
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
