package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// EnsureTopic creates the configured topic through the cluster controller
// when it does not already exist.
func EnsureTopic(ctx context.Context, config *Config, logger *slog.Logger) error {
	dialer, err := config.Dialer()
	if err != nil {
		return err
	}

	conn, err := dialer.DialContext(ctx, "tcp", config.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka: failed to connect to broker: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(config.Topic)
	if err == nil && len(partitions) > 0 {
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka: failed to get controller: %w", err)
	}

	ctrl, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka: failed to connect to controller: %w", err)
	}
	defer ctrl.Close()

	if err := ctrl.CreateTopics(topicConfig(config)); err != nil {
		return fmt.Errorf("kafka: failed to create topic %s: %w", config.Topic, err)
	}

	if logger != nil {
		logger.Info("kafka topic created", "topic", config.Topic, "partitions", config.Partitions)
	}
	return nil
}

func topicConfig(config *Config) kafka.TopicConfig {
	return kafka.TopicConfig{
		Topic:             config.Topic,
		NumPartitions:     config.Partitions,
		ReplicationFactor: config.ReplicationFactor,
		ConfigEntries: []kafka.ConfigEntry{
			{ConfigName: "retention.ms", ConfigValue: strconv.FormatInt(config.RetentionMs, 10)},
			{ConfigName: "cleanup.policy", ConfigValue: "delete"},
		},
	}
}
