// Package main provides the command-line client for the fraud workbench.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"fraud-workbench/internal/app"
	"fraud-workbench/internal/config"
	wberrors "fraud-workbench/internal/errors"
	"fraud-workbench/internal/logging"
	"fraud-workbench/internal/rules"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newCLI(os.Stdout, os.Stderr).run(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

type command struct {
	summary string
	run     func(ctx context.Context, args []string) error
}

type cli struct {
	out      io.Writer
	errOut   io.Writer
	commands map[string]command
}

func newCLI(out, errOut io.Writer) *cli {
	c := &cli{out: out, errOut: errOut}
	c.commands = map[string]command{
		"alerts":    {"Run a rule query or load an alert family", c.runAlerts},
		"lookup":    {"Resolve an account or identifier", c.runLookup},
		"graph":     {"Show the neighborhood of an account or identifier", c.runGraph},
		"note":      {"Add a case note", c.runNote},
		"action":    {"Record BLOCK, SAFE or ESCALATE", c.runAction},
		"flag":      {"Flag an account or identifier as fraudulent", c.runFlag},
		"refresh":   {"Regenerate alerts on the backend", c.runRefresh},
		"dispute":   {"Create, hold and release AFASA disputes", c.runDispute},
		"analytics": {"Show the analytics dashboard", c.runAnalytics},
		"rules":     {"List rule definitions", c.runRules},
		"export":    {"Export a case bundle to object storage", c.runExport},
		"audit":     {"Tail or query the audit trail", c.runAudit},
		"config":    {"Show or persist client settings", c.runConfig},
		"health":    {"Check the graph backend", c.runHealth},
		"doctor":    {"Run preflight diagnostics", c.runDoctor},
	}
	return c
}

func (c *cli) run(ctx context.Context, args []string) int {
	if len(args) < 1 {
		c.printUsage()
		return 1
	}

	switch args[0] {
	case "-version", "--version", "-v":
		fmt.Fprintf(c.out, "workbench-cli %s\n", version)
		return 0
	case "help", "-h", "--help":
		c.printUsage()
		return 0
	}

	cmd, ok := c.commands[args[0]]
	if !ok {
		fmt.Fprintf(c.errOut, "Unknown subcommand: %s\n", args[0])
		c.printUsage()
		return 1
	}
	if err := cmd.run(ctx, args[1:]); err != nil {
		fmt.Fprintf(c.errOut, "Error: %s\n", wberrors.SafeMessage(err))
		return 1
	}
	return 0
}

func (c *cli) printUsage() {
	fmt.Fprintf(c.errOut, "Usage: workbench-cli <command> [flags] [args]\n\n")
	fmt.Fprintf(c.errOut, "Commands:\n")
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.errOut, "  %-10s %s\n", name, c.commands[name].summary)
	}
	fmt.Fprintf(c.errOut, "\nFlags:\n")
	fmt.Fprintf(c.errOut, "  -version  Show version and exit\n")
}

// sessionFlags are shared by every command that talks to the backend.
type sessionFlags struct {
	launchURL string
	apiBase   string
	verbose   bool
}

func addSessionFlags(fs *flag.FlagSet) *sessionFlags {
	sf := &sessionFlags{}
	fs.StringVar(&sf.launchURL, "url", "", "Launch URL; an apiBase query parameter selects the backend")
	fs.StringVar(&sf.apiBase, "api-base", "", "Backend API base URL")
	fs.BoolVar(&sf.verbose, "verbose", false, "Log at debug level")
	return sf
}

// loadConfig reads and validates the configuration for a command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	wberrors.SetProductionMode(cfg.ProductionMode)
	return cfg, nil
}

func loadSettings() (config.Settings, string, error) {
	path, err := config.SettingsPath()
	if err != nil {
		return config.Settings{}, "", err
	}
	s, err := config.LoadSettings(path)
	return s, path, err
}

// open wires a session. Logs go to stderr at warn level unless -verbose
// is set or a log file is configured.
func (c *cli) open(ctx context.Context, sf *sessionFlags) (*app.App, io.Closer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	opts := logging.Options{Level: "warn", Format: "text", File: cfg.Logging.File}
	if cfg.Logging.File != "" {
		opts.Level = cfg.Logging.Level
		opts.Format = cfg.Logging.Format
	}
	if sf.verbose {
		opts.Level = "debug"
	}
	logger, closer, err := logging.Open(opts, c.errOut)
	if err != nil {
		return nil, nil, err
	}

	settings, _, err := loadSettings()
	if err != nil {
		logger.Warn("ignoring unreadable settings", "error", err)
	}

	a, err := app.New(ctx, cfg, app.Options{
		LaunchURL: sf.launchURL,
		APIBase:   sf.apiBase,
		Settings:  settings,
		Logger:    logger,
	})
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return a, closerFunc(func() error {
		err := a.Close()
		closer.Close()
		return err
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// paramFlag collects repeated -p key=value rule parameters.
type paramFlag rules.Params

func (p paramFlag) String() string {
	parts := make([]string, 0, len(p))
	for k, v := range p {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (p paramFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("parameter %q must be key=value", s)
	}
	p[strings.TrimSpace(k)] = strings.TrimSpace(v)
	return nil
}
