package secrets

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// EnvProvider retrieves secrets from environment variables.
type EnvProvider struct {
	logger *slog.Logger
}

// NewEnvProvider creates a new environment variable provider.
func NewEnvProvider(logger *slog.Logger) *EnvProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnvProvider{logger: logger}
}

// Name returns the provider name.
func (e *EnvProvider) Name() string {
	return "env"
}

// Get reads the variable named key, then its WORKBENCH_ form.
func (e *EnvProvider) Get(ctx context.Context, key string) (*Secret, error) {
	for _, name := range []string{key, normalizeEnvKey(key)} {
		if value := os.Getenv(name); value != "" {
			return &Secret{
				Value:    value,
				Metadata: map[string]string{"source": "environment", "name": name},
			}, nil
		}
	}
	return nil, ErrSecretNotFound
}

// normalizeEnvKey converts a key to uppercase environment variable format.
// Examples:
//   - "neo4j_password" -> "WORKBENCH_NEO4J_PASSWORD"
//   - "kafka.sasl-password" -> "WORKBENCH_KAFKA_SASL_PASSWORD"
//   - "WORKBENCH_API_KEY" -> "WORKBENCH_API_KEY"
func normalizeEnvKey(key string) string {
	normalized := strings.ToUpper(key)
	normalized = strings.ReplaceAll(normalized, ".", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")

	if !strings.HasPrefix(normalized, "WORKBENCH_") {
		normalized = "WORKBENCH_" + normalized
	}
	return normalized
}
