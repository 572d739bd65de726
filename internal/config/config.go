// Package config handles configuration loading for the fraud workbench.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"fraud-workbench/internal/kafka"
	"fraud-workbench/internal/storage"
	s3store "fraud-workbench/internal/storage/s3"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	API            APIConfig          `yaml:"api"`
	Defaults       DefaultsConfig     `yaml:"defaults"`
	Selection      SelectionConfig    `yaml:"selection"`
	Graph          GraphConfig        `yaml:"graph"`
	Investigator   InvestigatorConfig `yaml:"investigator"`
	Redis          RedisConfig        `yaml:"redis"`
	Kafka          KafkaConfig        `yaml:"kafka"`
	ClickHouse     ClickHouseConfig   `yaml:"clickhouse"`
	S3             S3Config           `yaml:"s3"`
	Metrics        MetricsConfig      `yaml:"metrics"`
	Logging        LoggingConfig      `yaml:"logging"`
	ProductionMode bool               `yaml:"production_mode"` // Sanitize status lines and hide server detail
}

// APIConfig holds backend connection settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"` // Overrides persisted settings when set
	Timeout      time.Duration `yaml:"timeout"`
	APIKey       string        `yaml:"api_key"`
	APIKeyHeader string        `yaml:"api_key_header"`
}

// DefaultsConfig holds rule parameter defaults.
type DefaultsConfig struct {
	Rule               string  `yaml:"rule"`
	RiskThreshold      float64 `yaml:"risk_threshold"`
	HighRiskThreshold  float64 `yaml:"high_risk_threshold"`
	MinRiskyAccounts   int     `yaml:"min_risky_accounts"`
	Limit              int     `yaml:"limit"`
	SendTemporalParams bool    `yaml:"send_temporal_params"`
}

// SelectionConfig holds anchor selection settings.
type SelectionConfig struct {
	AccountIDPattern string `yaml:"account_id_pattern"` // "relaxed", "strict" or a regular expression
	ActionPolicy     string `yaml:"action_policy"`      // "search-only" or "any-selection"
}

// GraphConfig selects the graph source.
type GraphConfig struct {
	Source string     `yaml:"source"` // "http" or "bolt"
	Bolt   BoltConfig `yaml:"bolt"`
}

// BoltConfig holds direct Neo4j connection settings.
type BoltConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// InvestigatorConfig identifies the person driving the workbench.
type InvestigatorConfig struct {
	Actor string `yaml:"actor"`
}

// RedisConfig holds the case mirror and dashboard cache settings.
type RedisConfig struct {
	Enabled             bool          `yaml:"enabled"`
	storage.RedisConfig `yaml:",inline"`
	CaseKeyPrefix       string        `yaml:"case_key_prefix"`
	CaseTTL             time.Duration `yaml:"case_ttl"`
	AnalyticsTTL        time.Duration `yaml:"analytics_ttl"`
}

// KafkaConfig holds the audit topic settings.
type KafkaConfig struct {
	Enabled      bool `yaml:"enabled"`
	kafka.Config `yaml:",inline"`
	CreateTopic  bool `yaml:"create_topic"`
}

// ClickHouseConfig holds the audit table settings.
type ClickHouseConfig struct {
	Enabled                  bool                      `yaml:"enabled"`
	storage.ClickHouseConfig `yaml:",inline"`
	BatchWriter              storage.BatchWriterConfig `yaml:"batch_writer"`
	Retention                time.Duration             `yaml:"retention"`
}

// S3Config holds case export settings.
type S3Config struct {
	Enabled        bool `yaml:"enabled"`
	s3store.Config `yaml:",inline"`
	Compress       bool `yaml:"compress"`
}

// MetricsConfig holds the Prometheus listener settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"` // Required for the terminal UI, which owns stdout
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Timeout:      10 * time.Second,
			APIKeyHeader: "X-API-Key",
		},
		Defaults: DefaultsConfig{
			Rule:              "R1",
			RiskThreshold:     0.8,
			HighRiskThreshold: 0.8,
			MinRiskyAccounts:  2,
			Limit:             50,
		},
		Selection: SelectionConfig{
			AccountIDPattern: "relaxed",
			ActionPolicy:     "search-only",
		},
		Graph: GraphConfig{
			Source: "http",
			Bolt: BoltConfig{
				URI:      "neo4j://localhost:7687",
				Username: "neo4j",
				Database: "neo4j",
			},
		},
		Investigator: InvestigatorConfig{
			Actor: "investigator",
		},
		Redis: RedisConfig{
			Enabled:       false, // Case state lives in memory unless enabled
			RedisConfig:   storage.DefaultRedisConfig(),
			CaseKeyPrefix: "workbench:case:",
			CaseTTL:       7 * 24 * time.Hour,
			AnalyticsTTL:  10 * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Config:  *kafka.DefaultConfig(),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:          false,
			ClickHouseConfig: storage.DefaultClickHouseConfig(),
			BatchWriter:      storage.DefaultBatchWriterConfig(),
			Retention:        365 * 24 * time.Hour,
		},
		S3: S3Config{
			Enabled:  false,
			Config:   *s3store.DefaultConfig(),
			Compress: true,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration file named by WORKBENCH_CONFIG_PATH
// (default configs/workbench.yaml). A missing file yields defaults.
// Environment overrides apply in both cases.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("WORKBENCH_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/workbench.yaml"
	}

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// File doesn't exist, use defaults
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("WORKBENCH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if base := os.Getenv("WORKBENCH_API_BASE"); base != "" {
		c.API.BaseURL = base
	}

	if key := os.Getenv("WORKBENCH_API_KEY"); key != "" {
		c.API.APIKey = key
	}

	if actor := os.Getenv("WORKBENCH_ACTOR"); actor != "" {
		c.Investigator.Actor = actor
	}

	if timeout := os.Getenv("WORKBENCH_API_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.API.Timeout = d
		}
	}

	if addr := os.Getenv("WORKBENCH_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
		c.Redis.Enabled = true
	}

	if brokers := os.Getenv("WORKBENCH_KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitAndTrim(brokers, ",")
		c.Kafka.Enabled = true
	}

	if hosts := os.Getenv("WORKBENCH_CLICKHOUSE_HOSTS"); hosts != "" {
		c.ClickHouse.Hosts = splitAndTrim(hosts, ",")
		c.ClickHouse.Enabled = true
	}

	if pw := os.Getenv("WORKBENCH_NEO4J_PASSWORD"); pw != "" {
		c.Graph.Bolt.Password = pw
	}

	if prod := os.Getenv("WORKBENCH_PRODUCTION_MODE"); prod != "" {
		c.ProductionMode = prod == "true" || prod == "1"
	}
}

// splitAndTrim splits s by sep and drops empty parts.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// SecretFields returns the credential fields that may hold "env:" or
// "file:" references.
func (c *Config) SecretFields() []*string {
	return []*string{
		&c.API.APIKey,
		&c.Graph.Bolt.Password,
		&c.Redis.Password,
		&c.Kafka.SASLPassword,
		&c.ClickHouse.Password,
		&c.S3.SecretAccessKey,
		&c.S3.SessionToken,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive")
	}

	if c.Defaults.RiskThreshold < 0 || c.Defaults.RiskThreshold > 1 {
		return fmt.Errorf("risk_threshold must be between 0 and 1: %v", c.Defaults.RiskThreshold)
	}
	if c.Defaults.HighRiskThreshold < 0 || c.Defaults.HighRiskThreshold > 1 {
		return fmt.Errorf("high_risk_threshold must be between 0 and 1: %v", c.Defaults.HighRiskThreshold)
	}
	if c.Defaults.Limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}

	switch c.Selection.ActionPolicy {
	case "", "search-only", "any-selection":
	default:
		return fmt.Errorf("invalid action_policy: %s", c.Selection.ActionPolicy)
	}

	switch c.Graph.Source {
	case "http":
	case "bolt":
		if c.Graph.Bolt.URI == "" {
			return fmt.Errorf("graph.bolt.uri is required for the bolt source")
		}
	default:
		return fmt.Errorf("invalid graph source: %s", c.Graph.Source)
	}

	if c.Kafka.Enabled {
		if err := c.Kafka.Validate(); err != nil {
			return err
		}
	}

	if c.ClickHouse.Enabled && len(c.ClickHouse.Hosts) == 0 {
		return fmt.Errorf("clickhouse hosts are required when clickhouse is enabled")
	}

	if c.S3.Enabled {
		if err := c.S3.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics listen_addr is required when metrics are enabled")
	}

	return nil
}
