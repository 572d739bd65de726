package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultAPIBase is used when nothing else names a backend.
const DefaultAPIBase = "http://localhost:5005/api"

// tunnelHostSuffix marks launch hosts that serve the API on the same origin.
const tunnelHostSuffix = ".ngrok-free.dev"

// Source names where the API base came from.
type Source string

const (
	SourceLaunchURL Source = "launch-url"
	SourceOverride  Source = "override"
	SourceSettings  Source = "settings"
	SourceOrigin    Source = "same-origin"
	SourceDefault   Source = "default"
)

// Settings is the locally persisted user settings file.
type Settings struct {
	APIBase string `yaml:"api_base,omitempty"`
}

// SettingsPath returns the settings file location under the user config
// directory (~/.config/fraud-workbench/settings.yaml on Linux).
func SettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(dir, "fraud-workbench", "settings.yaml"), nil
}

// LoadSettings reads path. A missing file yields empty settings.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return s, nil
}

// SaveSettings writes s to path, creating the directory if needed.
func SaveSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// ValidateAPIBase checks that base is an absolute http(s) URL.
func ValidateAPIBase(base string) error {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return fmt.Errorf("invalid api base: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("invalid api base: must be an absolute http(s) URL")
	}
	return nil
}

// ResolveAPIBase picks the API base in priority order: the launch URL's
// apiBase query parameter, the override, the persisted setting, then the
// launch origin plus /api for tunnel hosts, else DefaultAPIBase. Trailing
// slashes are dropped.
func ResolveAPIBase(launchURL, override string, settings Settings) (string, Source) {
	var launch *url.URL
	if launchURL != "" {
		if u, err := url.Parse(launchURL); err == nil {
			launch = u
		}
	}

	if launch != nil {
		if v := strings.TrimSpace(launch.Query().Get("apiBase")); v != "" {
			return trimBase(v), SourceLaunchURL
		}
	}
	if v := strings.TrimSpace(override); v != "" {
		return trimBase(v), SourceOverride
	}
	if v := strings.TrimSpace(settings.APIBase); v != "" {
		return trimBase(v), SourceSettings
	}
	if launch != nil && launch.Host != "" && strings.HasSuffix(strings.ToLower(launch.Hostname()), tunnelHostSuffix) {
		return launch.Scheme + "://" + launch.Host + "/api", SourceOrigin
	}
	return DefaultAPIBase, SourceDefault
}

func trimBase(s string) string {
	return strings.TrimRight(s, "/")
}
