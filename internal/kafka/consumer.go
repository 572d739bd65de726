package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is a consumed audit message.
type Message struct {
	Partition int
	Offset    int64
	Key       string
	Value     []byte
	Headers   map[string]string
	Time      time.Time
}

// MessageReader is the part of *kafka.Reader the tailer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Tailer reads the audit topic for the CLI's audit tail command.
type Tailer struct {
	reader MessageReader
	logger *slog.Logger
}

// NewTailer creates a tailer backed by a kafka.Reader.
func NewTailer(config *Config, logger *slog.Logger) (*Tailer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dialer, err := config.Dialer()
	if err != nil {
		return nil, err
	}

	rc := kafka.ReaderConfig{
		Brokers:     config.Brokers,
		GroupID:     config.ConsumerGroup,
		Topic:       config.Topic,
		Dialer:      dialer,
		MaxWait:     500 * time.Millisecond,
		StartOffset: config.StartOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-reader")
		}),
	}
	return NewTailerWithReader(kafka.NewReader(rc), logger), nil
}

// NewTailerWithReader wraps an existing reader.
func NewTailerWithReader(r MessageReader, logger *slog.Logger) *Tailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tailer{reader: r, logger: logger}
}

// Tail calls fn for each message until ctx is done, fn returns an error, or
// limit messages have been read (limit <= 0 means unbounded). Cancellation
// is not reported as an error.
func (t *Tailer) Tail(ctx context.Context, limit int, fn func(Message) error) error {
	for n := 0; limit <= 0 || n < limit; n++ {
		m, err := t.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("kafka: read audit message: %w", err)
		}

		msg := Message{
			Partition: m.Partition,
			Offset:    m.Offset,
			Key:       string(m.Key),
			Value:     m.Value,
			Time:      m.Time,
			Headers:   make(map[string]string, len(m.Headers)),
		}
		for _, h := range m.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}

		if err := fn(msg); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the reader.
func (t *Tailer) Close() error {
	return t.reader.Close()
}
