package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaConfig struct {
	Brokers      []string
	TopicPrefix  string
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// KafkaPublisher writes outbox messages to Kafka, one topic per outbox topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	prefix string
	source string
	logger *zap.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("outbox: kafka brokers required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return &KafkaPublisher{writer: writer, prefix: cfg.TopicPrefix, source: "union-claims", logger: logger}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	km := kafkaMessage(msg, p.prefix, p.source)
	if err := p.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("outbox: publish %s: %w", km.Topic, err)
	}
	p.logger.Debug("outbox message published", zap.String("topic", km.Topic), zap.String("outbox_id", msg.ID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Claim events are keyed by claim id so the hash balancer keeps one claim's
// history on one partition.
func kafkaMessage(msg Message, prefix, source string) kafka.Message {
	return kafka.Message{
		Topic: prefix + msg.Topic,
		Key:   []byte(msg.Key),
		Value: msg.Payload,
		Time:  msg.CreatedAt,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "source-service", Value: []byte(source)},
			{Key: "outbox-id", Value: []byte(msg.ID)},
		},
	}
}

// LogPublisher logs messages instead of sending them. It is used when no
// brokers are configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, msg Message) error {
	p.logger.Info("outbox message",
		zap.String("outbox_id", msg.ID),
		zap.String("topic", msg.Topic),
		zap.String("key", msg.Key),
		zap.ByteString("payload", msg.Payload),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
