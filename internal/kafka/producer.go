package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON messages to the configured topic.
type Producer struct {
	writer MessageWriter
	topic  string
	logger *slog.Logger
	closed atomic.Bool

	produced atomic.Int64
	failed   atomic.Int64
}

// NewProducer creates a producer backed by a kafka.Writer.
func NewProducer(config *Config, logger *slog.Logger) (*Producer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dialer, err := config.Dialer()
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: config.BatchTimeout,
		MaxAttempts:  config.MaxAttempts,
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		Compression:  config.Compression(),
		Transport: &kafka.Transport{
			Dial: dialer.DialFunc,
			TLS:  dialer.TLS,
			SASL: dialer.SASLMechanism,
		},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	logger.Info("kafka producer initialized",
		"brokers", config.Brokers,
		"topic", config.Topic,
		"compression", config.CompressionType,
	)

	return NewProducerWithWriter(writer, config.Topic, logger), nil
}

// NewProducerWithWriter wraps an existing writer.
func NewProducerWithWriter(w MessageWriter, topic string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{writer: w, topic: topic, logger: logger}
}

// PublishJSON marshals value and writes it keyed by key. Messages with the
// same key land on the same partition, so one anchor's events stay ordered.
func (p *Producer) PublishJSON(ctx context.Context, key string, value any, headers map[string]string) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.failed.Add(1)
		p.logger.Warn("kafka publish failed", "topic", p.topic, "key", key, "error", err)
		return fmt.Errorf("kafka: publish to %s: %w", p.topic, err)
	}

	p.produced.Add(1)
	return nil
}

// Counts returns the number of published and failed messages.
func (p *Producer) Counts() (produced, failed int64) {
	return p.produced.Load(), p.failed.Load()
}

// Close flushes buffered messages and closes the writer.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close producer: %w", err)
	}
	return nil
}
