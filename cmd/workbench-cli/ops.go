package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fraud-workbench/internal/config"
	wberrors "fraud-workbench/internal/errors"
	"fraud-workbench/internal/kafka"
	"fraud-workbench/internal/logging"
	"fraud-workbench/internal/secrets"
	"fraud-workbench/internal/startup"
	"fraud-workbench/internal/storage"
)

// resolveSecrets replaces env: and file: references for commands that
// connect without a full session.
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	if err := secrets.Default(nil).ResolveAll(ctx, cfg.SecretFields()...); err != nil {
		return fmt.Errorf("resolve secrets: %w", err)
	}
	return nil
}

func (c *cli) runAudit(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return wberrors.Validation("audit", "usage: workbench-cli audit <tail|history> [flags]")
	}
	switch args[0] {
	case "tail":
		return c.runAuditTail(ctx, args[1:])
	case "history":
		return c.runAuditHistory(ctx, args[1:])
	default:
		return wberrors.Validation("audit", "unknown audit command "+args[0])
	}
}

// runAuditTail prints audit events from the Kafka topic.
func (c *cli) runAuditTail(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "audit tail")
	limit := fs.Int("limit", 20, "Stop after this many events (0 follows forever)")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Kafka.Enabled {
		return wberrors.Validation("audit.tail", "kafka audit is not enabled")
	}
	if err := resolveSecrets(ctx, cfg); err != nil {
		return err
	}

	logger := logging.New(c.errOut, logging.Options{Level: "warn", Format: "text"})
	tailer, err := kafka.NewTailer(&cfg.Kafka.Config, logger)
	if err != nil {
		return err
	}
	defer tailer.Close()

	return tailer.Tail(ctx, *limit, func(m kafka.Message) error {
		fmt.Fprintf(c.out, "%s  %-24s  %s\n", m.Time.Format(time.RFC3339), m.Key, m.Value)
		return nil
	})
}

// runAuditHistory prints the newest audit rows of one anchor key.
func (c *cli) runAuditHistory(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "audit history")
	limit := fs.Int("limit", 20, "Number of rows")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return wberrors.Validation("audit.history", "usage: workbench-cli audit history [flags] <rule:anchor-id>")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.ClickHouse.Enabled {
		return wberrors.Validation("audit.history", "clickhouse audit is not enabled")
	}
	if err := resolveSecrets(ctx, cfg); err != nil {
		return err
	}

	ch, err := storage.NewClickHouseClient(ctx, cfg.ClickHouse.ClickHouseConfig)
	if err != nil {
		return err
	}
	defer ch.Close()

	rows, err := ch.RecentAudit(ctx, fs.Arg(0), *limit)
	if err != nil {
		return err
	}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{r.OccurredAt.Format(time.RFC3339), r.Type, r.Actor, r.Detail})
	}
	c.table([]string{"WHEN", "TYPE", "ACTOR", "DETAIL"}, out)
	return nil
}

func (c *cli) runConfig(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return wberrors.Validation("config", "usage: workbench-cli config <show|set-api-base|clear-api-base>")
	}
	switch args[0] {
	case "show":
		return c.runConfigShow(args[1:])
	case "set-api-base":
		if len(args) != 2 {
			return wberrors.Validation("config", "usage: workbench-cli config set-api-base <url>")
		}
		return c.saveAPIBase(strings.TrimSpace(args[1]))
	case "clear-api-base":
		return c.saveAPIBase("")
	default:
		return wberrors.Validation("config", "unknown config command "+args[0])
	}
}

func (c *cli) runConfigShow(args []string) error {
	fs := newFlagSet(c, "config show")
	sf := addSessionFlags(fs)
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings, path, err := loadSettings()
	if err != nil {
		return err
	}

	override := sf.apiBase
	if override == "" {
		override = cfg.API.BaseURL
	}
	base, source := config.ResolveAPIBase(sf.launchURL, override, settings)

	c.table([]string{"SETTING", "VALUE"}, [][]string{
		{"api_base", base},
		{"api_base_source", string(source)},
		{"api_key", logging.MaskAPIKey(cfg.API.APIKey)},
		{"settings_file", path},
		{"rule", cfg.Defaults.Rule},
		{"action_policy", cfg.Selection.ActionPolicy},
		{"graph_source", cfg.Graph.Source},
		{"redis", strconv.FormatBool(cfg.Redis.Enabled)},
		{"kafka", strconv.FormatBool(cfg.Kafka.Enabled)},
		{"clickhouse", strconv.FormatBool(cfg.ClickHouse.Enabled)},
		{"s3", strconv.FormatBool(cfg.S3.Enabled)},
		{"production_mode", strconv.FormatBool(cfg.ProductionMode)},
	})
	return nil
}

// saveAPIBase persists base to the settings file. An empty base clears it.
func (c *cli) saveAPIBase(base string) error {
	if base != "" {
		if err := config.ValidateAPIBase(base); err != nil {
			return err
		}
	}
	settings, path, err := loadSettings()
	if err != nil {
		return err
	}
	settings.APIBase = strings.TrimRight(base, "/")
	if err := config.SaveSettings(path, settings); err != nil {
		return err
	}
	if base == "" {
		fmt.Fprintf(c.out, "Cleared API base in %s\n", path)
	} else {
		fmt.Fprintf(c.out, "Saved API base %s to %s\n", settings.APIBase, path)
	}
	return nil
}

func (c *cli) runHealth(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "health")
	sf := addSessionFlags(fs)
	fs.Parse(args)

	a, closer, err := c.open(ctx, sf)
	if err != nil {
		return err
	}
	defer closer.Close()

	h, err := a.Workbench.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, a.Workbench.Status())
	if !h.OK() {
		return wberrors.New("health", wberrors.KindServer, "graph backend reports "+h.Status)
	}
	return nil
}

func (c *cli) runDoctor(ctx context.Context, args []string) error {
	fs := newFlagSet(c, "doctor")
	sf := addSessionFlags(fs)
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	settings, _, err := loadSettings()
	if err != nil {
		return err
	}
	override := sf.apiBase
	if override == "" {
		override = cfg.API.BaseURL
	}
	base, _ := config.ResolveAPIBase(sf.launchURL, override, settings)

	level := "warn"
	if sf.verbose {
		level = "debug"
	}
	d := startup.NewDiagnostics(cfg, base, logging.New(c.errOut, logging.Options{Level: level, Format: "text"}))

	results := d.RunAll()
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Status.String(), r.Name, r.Message})
	}
	c.table([]string{"STATUS", "CHECK", "MESSAGE"}, rows)
	if d.HasErrors() {
		return wberrors.New("doctor", wberrors.KindValidation, "diagnostics found errors")
	}
	return nil
}
