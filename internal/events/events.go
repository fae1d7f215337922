// Package events публикует события жизненного цикла заказа в Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Типы событий заказа.
const (
	OrderCreated   = "order_created"
	OrderPaid      = "order_paid"
	OrderCancelled = "order_cancelled"
)

// Event: сообщение о смене состояния заказа.
type Event struct {
	EventType  string    `json:"event_type"`
	OrderID    string    `json:"order_id"`
	UserID     int64     `json:"user_id"`
	ServiceID  string    `json:"service_id"`
	TotalPrice int64     `json:"total_price"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher отправляет события заказа.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NewSyncProducer создаёт синхронного продюсера Kafka.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// KafkaPublisher публикует события в топик; ключ сообщения: идентификатор заказа,
// поэтому события одного заказа попадают в одну партицию.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaPublisher создаёт публикатор поверх готового продюсера.
func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

// Publish отправляет событие и дожидается подтверждения брокера.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(e.OrderID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(e.EventType)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	p.logger.Debug("order event published",
		zap.String("topic", p.topic),
		zap.String("event_type", e.EventType),
		zap.String("order_id", e.OrderID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close закрывает продюсера.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// Nop: публикатор по умолчанию, когда Kafka не настроена.
type Nop struct{}

// Publish ничего не делает.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close ничего не делает.
func (Nop) Close() error { return nil }
