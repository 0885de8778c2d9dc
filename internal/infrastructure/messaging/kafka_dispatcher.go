// Package messaging delivers customer notifications to Kafka or the log.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/storefront/backend/internal/application/notification"
	"go.uber.org/zap"
)

// KafkaConfig holds the notification producer settings
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer used by the dispatcher
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher publishes notifications as JSON records keyed by order ID,
// so every message of an order lands on the same partition
type KafkaDispatcher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  *zap.Logger
}

var _ notification.Dispatcher = (*KafkaDispatcher)(nil)

// NewKafkaDispatcher creates a dispatcher writing to cfg.Topic
func NewKafkaDispatcher(cfg KafkaConfig, logger *zap.Logger) (*KafkaDispatcher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: false,
	}
	return newKafkaDispatcher(w, cfg.Topic, cfg.WriteTimeout, logger), nil
}

func newKafkaDispatcher(w messageWriter, topic string, timeout time.Duration, logger *zap.Logger) *KafkaDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaDispatcher{writer: w, topic: topic, timeout: timeout, logger: logger}
}

// Dispatch publishes msg and waits for the broker acknowledgement
func (d *KafkaDispatcher) Dispatch(ctx context.Context, msg notification.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("kafka: failed to encode notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err = d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.OrderID),
		Value: value,
		Time:  msg.OccurredAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(msg.Kind)},
			{Key: "store_id", Value: []byte(msg.StoreID.String())},
			{Key: "message_id", Value: []byte(msg.ID.String())},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka: failed to publish %s to %s: %w", msg.Kind, d.topic, err)
	}
	d.logger.Debug("Notification published",
		zap.String("topic", d.topic),
		zap.String("kind", msg.Kind),
		zap.String("order_id", msg.OrderID))
	return nil
}

// Close flushes pending writes and closes the producer
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
