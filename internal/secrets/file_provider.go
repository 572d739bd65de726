package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileProvider retrieves secrets from files on disk, such as Docker or
// Kubernetes secrets mounted as files.
type FileProvider struct {
	baseDir string
	logger  *slog.Logger
}

// NewFileProvider creates a new file-based secret provider. Relative keys
// are read from baseDir.
func NewFileProvider(baseDir string, logger *slog.Logger) *FileProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileProvider{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Name returns the provider name.
func (f *FileProvider) Name() string {
	return "file"
}

// Get retrieves a secret from a file. Absolute keys are used as paths.
func (f *FileProvider) Get(ctx context.Context, key string) (*Secret, error) {
	fullPath := key
	if !filepath.IsAbs(key) {
		fullPath = filepath.Join(f.baseDir, f.keyToFilename(key))
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}

	// Trim trailing newline (common in Docker/K8s secrets)
	value := strings.TrimRight(string(data), "\n\r")

	return &Secret{
		Value:    value,
		Metadata: map[string]string{"source": "file", "path": fullPath},
	}, nil
}

// keyToFilename converts a secret key to a safe filename.
// Examples:
//   - "neo4j_password" -> "neo4j_password"
//   - "kafka/sasl-password" -> "kafka_sasl_password"
func (f *FileProvider) keyToFilename(key string) string {
	filename := strings.ReplaceAll(key, "/", "_")
	filename = strings.ReplaceAll(filename, ".", "_")
	filename = strings.ReplaceAll(filename, "-", "_")
	return strings.ToLower(filename)
}
