// Package app wires configuration into a running workbench session. Both
// the terminal UI and the CLI start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fraud-workbench/internal/analytics"
	"fraud-workbench/internal/api"
	"fraud-workbench/internal/audit"
	"fraud-workbench/internal/cases"
	"fraud-workbench/internal/config"
	"fraud-workbench/internal/export"
	"fraud-workbench/internal/graph"
	"fraud-workbench/internal/kafka"
	"fraud-workbench/internal/logging"
	"fraud-workbench/internal/metrics"
	"fraud-workbench/internal/rules"
	"fraud-workbench/internal/secrets"
	"fraud-workbench/internal/selection"
	"fraud-workbench/internal/storage"
	s3store "fraud-workbench/internal/storage/s3"
	"fraud-workbench/internal/workflow"
)

const analyticsKeyPrefix = "workbench:analytics:"

// Options carry the launch inputs that are not part of the config file.
type Options struct {
	LaunchURL string // URL the workbench was opened from, may carry ?apiBase=
	APIBase   string // Explicit override, wins over the config file
	Settings  config.Settings
	Logger    *slog.Logger
}

// App is a wired workbench session and the connections it owns.
type App struct {
	Config     *config.Config
	Workbench  *workflow.Workbench
	Transport  *api.Client
	Metrics    *metrics.Metrics
	ClickHouse *storage.ClickHouseClient
	APIBase    string
	APISource  config.Source

	logger  *slog.Logger
	closers []func() error
}

// New connects every enabled integration and builds the workbench. On
// error, whatever was already opened is closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (app *App, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	override := opts.APIBase
	if override == "" {
		override = cfg.API.BaseURL
	}
	base, source := config.ResolveAPIBase(opts.LaunchURL, override, opts.Settings)
	if err := config.ValidateAPIBase(base); err != nil {
		return nil, err
	}
	if err := secrets.Default(logger).ResolveAll(ctx, cfg.SecretFields()...); err != nil {
		return nil, fmt.Errorf("resolve secrets: %w", err)
	}

	a := &App{
		Config:    cfg,
		Metrics:   metrics.New(),
		APIBase:   base,
		APISource: source,
		logger:    logger,
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	clientOpts := []api.Option{
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logger),
		api.WithObserver(a.Metrics.ObserveRequest),
	}
	if cfg.API.APIKey != "" {
		clientOpts = append(clientOpts, api.WithAPIKey(cfg.API.APIKeyHeader, cfg.API.APIKey))
	}
	a.Transport = api.NewClient(base, clientOpts...)

	logger.Info("api configured",
		"base", base,
		"source", source,
		"api_key", logging.MaskAPIKey(cfg.API.APIKey),
	)

	pattern, err := selection.CompileAccountIDPattern(cfg.Selection.AccountIDPattern)
	if err != nil {
		return nil, fmt.Errorf("selection: %w", err)
	}
	policy, err := selection.ParsePolicy(cfg.Selection.ActionPolicy)
	if err != nil {
		return nil, fmt.Errorf("selection: %w", err)
	}

	var caseOpts []cases.Option
	var cache analytics.Cache = analytics.NewMemoryCache()
	if cfg.Redis.Enabled {
		rdb, err := storage.NewRedisClient(ctx, cfg.Redis.RedisConfig)
		if err != nil {
			return nil, err
		}
		a.onClose(rdb.Close)
		caseOpts = append(caseOpts, cases.WithMirror(cases.NewRedisMirror(rdb, cfg.Redis.CaseKeyPrefix, cfg.Redis.CaseTTL)))
		cache = analytics.NewRedisCache(rdb, analyticsKeyPrefix)
		logger.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	sink, err := a.auditSinks(ctx)
	if err != nil {
		return nil, err
	}

	var exporter *export.Exporter
	if cfg.S3.Enabled {
		s3c, err := s3store.NewClient(ctx, &cfg.S3.Config, logger)
		if err != nil {
			return nil, err
		}
		exporter = export.NewExporter(s3c, cfg.S3.Compress)
	}

	var graphSource graph.Source
	if cfg.Graph.Source == "bolt" {
		bolt, err := graph.NewBoltSource(graph.BoltConfig{
			URI:      cfg.Graph.Bolt.URI,
			Username: cfg.Graph.Bolt.Username,
			Password: cfg.Graph.Bolt.Password,
			Database: cfg.Graph.Bolt.Database,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.onClose(func() error { return bolt.Close(context.Background()) })
		graphSource = bolt
	}

	a.Workbench, err = workflow.New(workflow.Config{
		Transport: a.Transport,
		Catalog:   rules.Default(),
		Defaults: rules.Defaults{
			RiskThreshold:     cfg.Defaults.RiskThreshold,
			HighRiskThreshold: cfg.Defaults.HighRiskThreshold,
			MinRiskyAccounts:  cfg.Defaults.MinRiskyAccounts,
			Limit:             cfg.Defaults.Limit,
			SendTemporal:      cfg.Defaults.SendTemporalParams,
		},
		Selection: selection.Config{
			AccountIDPattern: pattern,
			Policy:           policy,
			Logger:           logger,
		},
		InitialRule: cfg.Defaults.Rule,
		GraphSource: graphSource,
		CaseOptions: caseOpts,
		Actor:       cfg.Investigator.Actor,
		AuditSink:   sink,
		Exporter:    exporter,
		Analytics:   analytics.NewClient(a.Transport, cache, cfg.Redis.AnalyticsTTL, logger),
		Metrics:     a.Metrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := a.Metrics.Serve(ctx, cfg.Metrics.ListenAddr, logger); err != nil {
				logger.Error("metrics listener stopped", "error", err)
			}
		}()
	}
	return a, nil
}

// auditSinks opens the Kafka and ClickHouse audit destinations.
func (a *App) auditSinks(ctx context.Context) (audit.Sink, error) {
	cfg := a.Config
	var sinks []audit.Sink

	if cfg.Kafka.Enabled {
		if cfg.Kafka.CreateTopic {
			if err := kafka.EnsureTopic(ctx, &cfg.Kafka.Config, a.logger); err != nil {
				return nil, err
			}
		}
		producer, err := kafka.NewProducer(&cfg.Kafka.Config, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose(producer.Close)
		sinks = append(sinks, audit.NewKafkaSink(producer))
	}

	if cfg.ClickHouse.Enabled {
		ch, err := a.OpenClickHouse(ctx)
		if err != nil {
			return nil, err
		}
		if err := storage.NewMigrator(ch, a.logger).Run(ctx); err != nil {
			return nil, err
		}
		if err := storage.ApplyAuditRetention(ctx, ch, cfg.ClickHouse.Retention, a.logger); err != nil {
			a.logger.Warn("audit retention not applied", "error", err)
		}
		bw := storage.NewBatchWriter(ch, cfg.ClickHouse.BatchWriter, a.logger)
		a.onClose(bw.Close)
		sinks = append(sinks, audit.NewClickHouseSink(bw))
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	return audit.Multi(sinks...), nil
}

// OpenClickHouse connects to the audit database once and keeps the client
// for the lifetime of the app.
func (a *App) OpenClickHouse(ctx context.Context) (*storage.ClickHouseClient, error) {
	if a.ClickHouse != nil {
		return a.ClickHouse, nil
	}
	ch, err := storage.NewClickHouseClient(ctx, a.Config.ClickHouse.ClickHouseConfig)
	if err != nil {
		return nil, err
	}
	a.onClose(ch.Close)
	a.ClickHouse = ch
	return ch, nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
