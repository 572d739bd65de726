// Package startup provides preflight diagnostics for the workbench
package startup

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"fraud-workbench/internal/config"
	"fraud-workbench/internal/logging"
	"fraud-workbench/internal/secrets"
)

// DiagnosticResult represents the result of a diagnostic check
type DiagnosticResult struct {
	Name    string
	Status  Status
	Message string
	Details map[string]string
}

// Status represents the status of a diagnostic check
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusError:
		return "ERROR"
	case StatusSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc opens a connection for reachability checks.
type DialFunc func(network, address string, timeout time.Duration) (net.Conn, error)

// Diagnostics runs all preflight checks
type Diagnostics struct {
	cfg     *config.Config
	apiBase string
	results []DiagnosticResult
	logger  *slog.Logger

	dial        DialFunc
	dialTimeout time.Duration
}

// NewDiagnostics creates a new diagnostics runner for the resolved API base.
func NewDiagnostics(cfg *config.Config, apiBase string, logger *slog.Logger) *Diagnostics {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Diagnostics{
		cfg:         cfg,
		apiBase:     apiBase,
		logger:      logger,
		dial:        net.DialTimeout,
		dialTimeout: 3 * time.Second,
	}
}

// WithDialer replaces the reachability dialer.
func (d *Diagnostics) WithDialer(dial DialFunc) *Diagnostics {
	d.dial = dial
	return d
}

// RunAll runs all diagnostic checks
func (d *Diagnostics) RunAll() []DiagnosticResult {
	d.logger.Info("running workbench diagnostics")

	d.checkRuntime()
	d.checkConfiguration()
	d.checkLogFile()
	d.checkSecurity()
	d.checkSecrets()
	d.checkIntegrations()
	d.checkReachability()
	d.checkMetricsPort()

	d.printSummary()
	return d.results
}

// Results returns the results collected so far.
func (d *Diagnostics) Results() []DiagnosticResult {
	return d.results
}

func (d *Diagnostics) addResult(result DiagnosticResult) {
	d.results = append(d.results, result)

	attrs := []any{
		"check", result.Name,
		"status", result.Status.String(),
	}
	if result.Message != "" {
		attrs = append(attrs, "message", result.Message)
	}
	for k, v := range result.Details {
		attrs = append(attrs, k, v)
	}

	switch result.Status {
	case StatusOK:
		d.logger.Info("diagnostic check passed", attrs...)
	case StatusWarning:
		d.logger.Warn("diagnostic check warning", attrs...)
	case StatusError:
		d.logger.Error("diagnostic check failed", attrs...)
	case StatusSkipped:
		d.logger.Debug("diagnostic check skipped", attrs...)
	}
}

func (d *Diagnostics) checkRuntime() {
	d.addResult(DiagnosticResult{
		Name:    "runtime",
		Status:  StatusOK,
		Message: "Go runtime detected",
		Details: map[string]string{
			"go_version": runtime.Version(),
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
		},
	})
}

func (d *Diagnostics) checkConfiguration() {
	configPath := os.Getenv("WORKBENCH_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/workbench.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		d.addResult(DiagnosticResult{
			Name:    "config_file",
			Status:  StatusWarning,
			Message: "Config file not found, using defaults",
			Details: map[string]string{"path": configPath},
		})
	} else {
		d.addResult(DiagnosticResult{
			Name:    "config_file",
			Status:  StatusOK,
			Message: "Config file found",
			Details: map[string]string{"path": configPath},
		})
	}

	if err := d.cfg.Validate(); err != nil {
		d.addResult(DiagnosticResult{
			Name:    "config_validation",
			Status:  StatusError,
			Message: fmt.Sprintf("Configuration validation failed: %s", err),
		})
	} else {
		d.addResult(DiagnosticResult{
			Name:    "config_validation",
			Status:  StatusOK,
			Message: "Configuration is valid",
		})
	}

	if err := config.ValidateAPIBase(d.apiBase); err != nil {
		d.addResult(DiagnosticResult{
			Name:    "api_base",
			Status:  StatusError,
			Message: err.Error(),
			Details: map[string]string{"api_base": d.apiBase},
		})
	} else {
		d.addResult(DiagnosticResult{
			Name:    "api_base",
			Status:  StatusOK,
			Message: "API base is valid",
			Details: map[string]string{"api_base": d.apiBase},
		})
	}
}

func (d *Diagnostics) checkLogFile() {
	path := d.cfg.Logging.File
	if path == "" {
		d.addResult(DiagnosticResult{
			Name:    "log_file",
			Status:  StatusSkipped,
			Message: "Logging to standard error",
		})
		return
	}

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		d.addResult(DiagnosticResult{
			Name:    "log_file",
			Status:  StatusWarning,
			Message: "Log directory will be created",
			Details: map[string]string{"dir": dir},
		})
	case err != nil:
		d.addResult(DiagnosticResult{
			Name:    "log_file",
			Status:  StatusError,
			Message: fmt.Sprintf("Error checking log directory: %s", err),
		})
	case !info.IsDir():
		d.addResult(DiagnosticResult{
			Name:    "log_file",
			Status:  StatusError,
			Message: "Log path parent is not a directory",
			Details: map[string]string{"dir": dir},
		})
	default:
		d.addResult(DiagnosticResult{
			Name:    "log_file",
			Status:  StatusOK,
			Message: "Log directory exists",
			Details: map[string]string{"path": path},
		})
	}
}

func (d *Diagnostics) checkSecurity() {
	if d.cfg.API.APIKey == "" {
		d.addResult(DiagnosticResult{
			Name:    "api_key",
			Status:  StatusWarning,
			Message: "No API key configured",
			Details: map[string]string{"recommendation": "Set WORKBENCH_API_KEY"},
		})
	} else {
		d.addResult(DiagnosticResult{
			Name:    "api_key",
			Status:  StatusOK,
			Message: "API key configured",
			Details: map[string]string{"key": logging.MaskAPIKey(d.cfg.API.APIKey)},
		})
	}

	if u, err := url.Parse(d.apiBase); err == nil && u.Scheme == "http" && !isLoopback(u.Hostname()) {
		d.addResult(DiagnosticResult{
			Name:    "api_transport",
			Status:  StatusWarning,
			Message: "API base uses plain HTTP to a remote host",
			Details: map[string]string{"host": u.Host},
		})
	} else {
		d.addResult(DiagnosticResult{
			Name:    "api_transport",
			Status:  StatusOK,
			Message: "API transport is local or encrypted",
		})
	}

	if !d.cfg.ProductionMode {
		d.addResult(DiagnosticResult{
			Name:    "production_mode",
			Status:  StatusWarning,
			Message: "Production mode is DISABLED - server error detail is shown",
		})
	} else {
		d.addResult(DiagnosticResult{
			Name:    "production_mode",
			Status:  StatusOK,
			Message: "Production mode is enabled",
		})
	}
}

// checkSecrets resolves env: and file: references without writing the
// values back into the configuration.
func (d *Diagnostics) checkSecrets() {
	mgr := secrets.Default(d.logger)
	refs, failed := 0, 0
	for _, field := range d.cfg.SecretFields() {
		provider, key := secrets.ParseSecretRef(*field)
		if provider == "literal" {
			continue
		}
		refs++
		if _, err := mgr.ResolveSecret(context.Background(), *field); err != nil {
			failed++
			d.addResult(DiagnosticResult{
				Name:    "secrets",
				Status:  StatusError,
				Message: "Secret reference cannot be resolved",
				Details: map[string]string{"reference": provider + ":" + key},
			})
		}
	}

	switch {
	case refs == 0:
		d.addResult(DiagnosticResult{
			Name:    "secrets",
			Status:  StatusSkipped,
			Message: "No secret references configured",
		})
	case failed == 0:
		d.addResult(DiagnosticResult{
			Name:    "secrets",
			Status:  StatusOK,
			Message: fmt.Sprintf("%d secret references resolved", refs),
		})
	}
}

func (d *Diagnostics) checkIntegrations() {
	integrations := []struct {
		name    string
		enabled bool
	}{
		{"Redis Case Mirror", d.cfg.Redis.Enabled},
		{"Kafka Audit", d.cfg.Kafka.Enabled},
		{"ClickHouse Audit", d.cfg.ClickHouse.Enabled},
		{"S3 Case Export", d.cfg.S3.Enabled},
		{"Bolt Graph Source", d.cfg.Graph.Source == "bolt"},
		{"Prometheus Metrics", d.cfg.Metrics.Enabled},
	}

	enabledCount := 0
	for _, m := range integrations {
		status := StatusSkipped
		message := "Disabled"
		if m.enabled {
			status = StatusOK
			message = "Enabled"
			enabledCount++
		}
		d.addResult(DiagnosticResult{
			Name:    fmt.Sprintf("integration_%s", m.name),
			Status:  status,
			Message: message,
		})
	}

	d.logger.Info("integrations summary", "enabled", enabledCount, "total", len(integrations))
}

func (d *Diagnostics) checkReachability() {
	type target struct {
		name string
		addr string
	}
	var targets []target

	if host := apiHost(d.apiBase); host != "" {
		targets = append(targets, target{"api", host})
	}
	if d.cfg.Redis.Enabled {
		targets = append(targets, target{"redis", d.cfg.Redis.Addr})
	}
	if d.cfg.Kafka.Enabled && len(d.cfg.Kafka.Brokers) > 0 {
		targets = append(targets, target{"kafka", d.cfg.Kafka.Brokers[0]})
	}
	if d.cfg.ClickHouse.Enabled && len(d.cfg.ClickHouse.Hosts) > 0 {
		targets = append(targets, target{"clickhouse", d.cfg.ClickHouse.Hosts[0]})
	}
	if d.cfg.Graph.Source == "bolt" {
		if host := boltHost(d.cfg.Graph.Bolt.URI); host != "" {
			targets = append(targets, target{"neo4j", host})
		}
	}

	for _, t := range targets {
		conn, err := d.dial("tcp", t.addr, d.dialTimeout)
		if err != nil {
			d.addResult(DiagnosticResult{
				Name:    fmt.Sprintf("%s_connectivity", t.name),
				Status:  StatusError,
				Message: fmt.Sprintf("Cannot reach %s: %s", t.name, err),
				Details: map[string]string{"host": t.addr},
			})
			continue
		}
		conn.Close()
		d.addResult(DiagnosticResult{
			Name:    fmt.Sprintf("%s_connectivity", t.name),
			Status:  StatusOK,
			Message: fmt.Sprintf("%s is reachable", t.name),
			Details: map[string]string{"host": t.addr},
		})
	}
}

func (d *Diagnostics) checkMetricsPort() {
	if !d.cfg.Metrics.Enabled {
		return
	}
	listener, err := net.Listen("tcp", d.cfg.Metrics.ListenAddr)
	if err != nil {
		d.addResult(DiagnosticResult{
			Name:    "metrics_port",
			Status:  StatusError,
			Message: fmt.Sprintf("Metrics address is not available: %s", err),
			Details: map[string]string{"addr": d.cfg.Metrics.ListenAddr},
		})
		return
	}
	listener.Close()
	d.addResult(DiagnosticResult{
		Name:    "metrics_port",
		Status:  StatusOK,
		Message: "Metrics address is available",
		Details: map[string]string{"addr": d.cfg.Metrics.ListenAddr},
	})
}

func (d *Diagnostics) printSummary() {
	var ok, warnings, errors, skipped int
	for _, r := range d.results {
		switch r.Status {
		case StatusOK:
			ok++
		case StatusWarning:
			warnings++
		case StatusError:
			errors++
		case StatusSkipped:
			skipped++
		}
	}

	d.logger.Info("diagnostics summary",
		"passed", ok,
		"warnings", warnings,
		"errors", errors,
		"skipped", skipped,
	)

	if errors > 0 {
		d.logger.Error("diagnostics found critical errors - the workbench may not function correctly")
	} else if warnings > 0 {
		d.logger.Warn("diagnostics found warnings - review before investigating live cases")
	}
}

// HasErrors returns true if any diagnostic check failed
func (d *Diagnostics) HasErrors() bool {
	for _, r := range d.results {
		if r.Status == StatusError {
			return true
		}
	}
	return false
}

// HasWarnings returns true if any diagnostic check has warnings
func (d *Diagnostics) HasWarnings() bool {
	for _, r := range d.results {
		if r.Status == StatusWarning {
			return true
		}
	}
	return false
}

// apiHost returns host:port of an API base URL.
func apiHost(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// boltHost returns host:port of a neo4j or bolt URI.
func boltHost(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), "7687")
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// PrintBanner prints the startup banner
func PrintBanner(version string) {
	fmt.Println()
	fmt.Println("  ┌──────────────────────────────────────────┐")
	fmt.Println("  │  Fraud Workbench                         │")
	fmt.Println("  │  Alert to investigation, anchor first    │")
	fmt.Println("  └──────────────────────────────────────────┘")
	fmt.Printf("  Version: %s\n\n", version)
}
