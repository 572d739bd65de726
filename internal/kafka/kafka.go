// Package kafka publishes and tails the investigator audit topic.
package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Config holds Kafka connection and behavior configuration.
type Config struct {
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`

	// ConsumerGroup is used by the audit tail; empty reads partition 0 directly.
	ConsumerGroup string `json:"consumer_group" yaml:"consumer_group"`

	Partitions        int   `json:"partitions" yaml:"partitions"`
	ReplicationFactor int   `json:"replication_factor" yaml:"replication_factor"`
	RetentionMs       int64 `json:"retention_ms" yaml:"retention_ms"`

	// CompressionType: none, gzip, snappy, lz4, zstd.
	CompressionType string `json:"compression_type" yaml:"compression_type"`

	// SecurityProtocol: PLAINTEXT, SSL, SASL_PLAINTEXT, SASL_SSL.
	SecurityProtocol string `json:"security_protocol" yaml:"security_protocol"`

	// SASLMechanism: PLAIN, SCRAM-SHA-256, SCRAM-SHA-512.
	SASLMechanism string `json:"sasl_mechanism,omitempty" yaml:"sasl_mechanism,omitempty"`
	SASLUsername  string `json:"sasl_username,omitempty" yaml:"sasl_username,omitempty"`
	SASLPassword  string `json:"sasl_password,omitempty" yaml:"sasl_password,omitempty"`

	TLSEnabled    bool   `json:"tls_enabled" yaml:"tls_enabled"`
	TLSCAFile     string `json:"tls_ca_file,omitempty" yaml:"tls_ca_file,omitempty"`
	TLSCertFile   string `json:"tls_cert_file,omitempty" yaml:"tls_cert_file,omitempty"`
	TLSKeyFile    string `json:"tls_key_file,omitempty" yaml:"tls_key_file,omitempty"`
	TLSSkipVerify bool   `json:"tls_skip_verify,omitempty" yaml:"tls_skip_verify,omitempty"`

	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout"`
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"`
	RequiredAcks int           `json:"required_acks" yaml:"required_acks"` // -1=all, 0=none, 1=leader

	// StartOffset for the audit tail: -1=latest, -2=earliest.
	StartOffset int64 `json:"start_offset" yaml:"start_offset"`

	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Brokers:           []string{"localhost:9092"},
		Topic:             "workbench-audit",
		ConsumerGroup:     "",
		Partitions:        3,
		ReplicationFactor: 1,
		RetentionMs:       30 * 24 * 60 * 60 * 1000, // 30 days
		CompressionType:   "lz4",
		SecurityProtocol:  "PLAINTEXT",
		BatchTimeout:      50 * time.Millisecond,
		MaxAttempts:       3,
		RequiredAcks:      -1,
		StartOffset:       kafka.FirstOffset,
		DialTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("kafka: topic is required")
	}
	if c.Partitions < 1 {
		return errors.New("kafka: partitions must be at least 1")
	}
	if c.ReplicationFactor < 1 {
		return errors.New("kafka: replication factor must be at least 1")
	}

	switch c.SecurityProtocol {
	case "PLAINTEXT", "SSL":
	case "SASL_PLAINTEXT", "SASL_SSL":
		switch c.SASLMechanism {
		case "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
		default:
			return fmt.Errorf("kafka: invalid SASL mechanism: %s", c.SASLMechanism)
		}
		if c.SASLUsername == "" || c.SASLPassword == "" {
			return errors.New("kafka: SASL username and password required for SASL authentication")
		}
	default:
		return fmt.Errorf("kafka: invalid security protocol: %s", c.SecurityProtocol)
	}
	return nil
}

// Compression returns the kafka-go compression codec.
func (c *Config) Compression() kafka.Compression {
	switch c.CompressionType {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}

// Dialer returns a kafka.Dialer with TLS and SASL applied.
func (c *Config) Dialer() (*kafka.Dialer, error) {
	dialer := &kafka.Dialer{
		Timeout:   c.DialTimeout,
		DualStack: true,
	}

	if c.TLSEnabled || c.SecurityProtocol == "SSL" || c.SecurityProtocol == "SASL_SSL" {
		tlsConfig, err := c.tlsConfig()
		if err != nil {
			return nil, fmt.Errorf("kafka: failed to configure TLS: %w", err)
		}
		dialer.TLS = tlsConfig
	}

	if c.SecurityProtocol == "SASL_PLAINTEXT" || c.SecurityProtocol == "SASL_SSL" {
		mechanism, err := c.saslMechanism()
		if err != nil {
			return nil, fmt.Errorf("kafka: failed to configure SASL: %w", err)
		}
		dialer.SASLMechanism = mechanism
	}

	return dialer, nil
}

func (c *Config) tlsConfig() (*tls.Config, error) {
	if c.TLSSkipVerify {
		slog.Warn("TLS certificate verification is disabled for Kafka")
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: c.TLSSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	if c.TLSCAFile != "" {
		caCert, err := os.ReadFile(c.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	if c.TLSCertFile != "" && c.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func (c *Config) saslMechanism() (sasl.Mechanism, error) {
	switch c.SASLMechanism {
	case "PLAIN":
		return plain.Mechanism{Username: c.SASLUsername, Password: c.SASLPassword}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, c.SASLUsername, c.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, c.SASLUsername, c.SASLPassword)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", c.SASLMechanism)
	}
}

// Common errors
var (
	ErrProducerClosed = errors.New("kafka: producer is closed")
	ErrInvalidMessage = errors.New("kafka: invalid message")
)
