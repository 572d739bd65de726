// Package secrets resolves secret references in configuration values.
// A value of the form "env:NAME" or "file:/path" is replaced with the
// secret it names; anything else is used literally.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrSecretNotFound is returned when a referenced secret does not exist.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrNoProvider is returned when a reference names an unknown provider.
	ErrNoProvider = errors.New("no secret provider configured")
)

// Secret represents a retrieved secret with metadata.
type Secret struct {
	Value    string
	Metadata map[string]string
}

// Provider is the interface that secret providers must implement.
type Provider interface {
	// Name is the reference prefix the provider answers to.
	Name() string

	// Get retrieves a secret by key.
	Get(ctx context.Context, key string) (*Secret, error)
}

// Manager routes references to providers by prefix.
type Manager struct {
	providers map[string]Provider
	logger    *slog.Logger
}

// NewManager creates a manager over providers.
func NewManager(logger *slog.Logger, providers ...Provider) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{providers: make(map[string]Provider, len(providers)), logger: logger}
	for _, p := range providers {
		m.providers[p.Name()] = p
	}
	return m
}

// Default returns a manager with the environment and file providers.
func Default(logger *slog.Logger) *Manager {
	return NewManager(logger, NewEnvProvider(logger), NewFileProvider("/run/secrets", logger))
}

// ParseSecretRef parses a secret reference string.
// Formats supported:
//   - "value" - literal value
//   - "env:VAR_NAME" - environment variable
//   - "file:/path/to/secret" - file-based secret
//
// Other prefixes, such as a URL scheme or a password containing a colon,
// are literal.
func ParseSecretRef(ref string) (provider, key string) {
	prefix, rest, ok := strings.Cut(ref, ":")
	if !ok {
		return "literal", ref
	}
	switch prefix {
	case "env", "file":
		return prefix, rest
	default:
		return "literal", ref
	}
}

// ResolveSecret resolves a secret reference. Literal values are returned
// as-is.
func (m *Manager) ResolveSecret(ctx context.Context, ref string) (string, error) {
	provider, key := ParseSecretRef(ref)
	if provider == "literal" {
		return key, nil
	}

	p, ok := m.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoProvider, provider)
	}
	secret, err := p.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", ref, err)
	}
	m.logger.Debug("secret resolved", "provider", provider, "key", key)
	return secret.Value, nil
}

// ResolveAll replaces every referenced value in place. Empty values are
// skipped.
func (m *Manager) ResolveAll(ctx context.Context, values ...*string) error {
	for _, v := range values {
		if v == nil || *v == "" {
			continue
		}
		resolved, err := m.ResolveSecret(ctx, *v)
		if err != nil {
			return err
		}
		*v = resolved
	}
	return nil
}
