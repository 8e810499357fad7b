// Package app wires configured components into a running engine.
package app

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/api/job"
	"github.com/newthinker/prism/internal/backtest"
	"github.com/newthinker/prism/internal/collector"
	"github.com/newthinker/prism/internal/collector/binance"
	"github.com/newthinker/prism/internal/collector/eastmoney"
	"github.com/newthinker/prism/internal/collector/parquet"
	"github.com/newthinker/prism/internal/collector/yahoo"
	"github.com/newthinker/prism/internal/config"
	"github.com/newthinker/prism/internal/generator"
	"github.com/newthinker/prism/internal/library"
	"github.com/newthinker/prism/internal/llm/factory"
	"github.com/newthinker/prism/internal/metrics"
	"github.com/newthinker/prism/internal/notifier"
	"github.com/newthinker/prism/internal/notifier/telegram"
	"github.com/newthinker/prism/internal/notifier/webhook"
	"github.com/newthinker/prism/internal/storage/archive"
	"github.com/newthinker/prism/internal/strategy"
)

// App owns the component graph built from one configuration.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	collectors *collector.Registry
	parquet    *parquet.Store // nil when disabled
	storage    archive.Storage
	library    *library.Library
	sandbox    *strategy.Sandbox
	backtester *backtest.Backtester
	generator  *generator.Generator
	jobs       *job.Store
	notifiers  *notifier.Registry
	metrics    *metrics.Registry // nil when disabled
}

// New builds every component from cfg. The config is validated first.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry()
	}

	a.collectors = collector.NewRegistry(logger.Named("collector"))
	if cfg.Collectors.Parquet.Enabled {
		a.parquet = parquet.New(collector.Config{
			Enabled: true,
			Path:    cfg.Collectors.Parquet.Path,
		})
		a.collectors.Register(a.parquet)
	}
	if src := cfg.Collectors.Eastmoney; src.Enabled {
		a.collectors.Register(eastmoney.New(sourceConfig(src)))
	}
	if src := cfg.Collectors.Binance; src.Enabled {
		a.collectors.Register(binance.New(sourceConfig(src)))
	}
	if src := cfg.Collectors.Yahoo; src.Enabled {
		a.collectors.Register(yahoo.New(sourceConfig(src)))
	}

	storage, err := archive.New(archive.Config{
		Type: cfg.Storage.Type,
		Path: cfg.Storage.Path,
		DSN:  cfg.Storage.DSN,
		S3: archive.S3Config{
			Bucket:    cfg.Storage.S3.Bucket,
			Endpoint:  cfg.Storage.S3.Endpoint,
			Region:    cfg.Storage.S3.Region,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Prefix:    cfg.Storage.S3.Prefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Type, err)
	}
	a.storage = storage

	catalog, err := library.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("loading template catalog: %w", err)
	}
	a.library = library.New(catalog, library.NewStore(storage, logger.Named("library")))

	a.sandbox = strategy.NewSandbox(strategy.SandboxConfig{
		Timeout:   cfg.Sandbox.Timeout,
		MaxAllocs: cfg.Sandbox.MaxAllocs,
	}, logger.Named("sandbox"))

	a.backtester = backtest.New(a.sandbox, backtest.Config{
		InitialCapital: cfg.Backtest.InitialCapital,
		CommissionRate: cfg.Backtest.Commission,
		MinBars:        cfg.Backtest.MinBars,
	}, logger.Named("backtest"))
	a.backtester.SetProvider(a.collectors)

	provider, err := factory.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	a.generator = generator.New(provider, logger.Named("generator"))

	if a.metrics != nil {
		a.collectors.SetRecorder(a.metrics)
		a.backtester.SetRecorder(a.metrics)
		a.generator.SetRecorder(a.metrics)
	}

	if a.notifiers, err = buildNotifiers(cfg.Notifications); err != nil {
		return nil, err
	}

	a.jobs = job.NewStore(cfg.Server.MaxJobs, time.Duration(cfg.Server.JobTTLHours)*time.Hour)

	logger.Info("engine ready",
		zap.Int("collectors", len(a.collectors.GetAll())),
		zap.String("storage", cfg.Storage.Type),
		zap.String("llm", cfg.LLM.Provider),
		zap.Int("notifiers", a.notifiers.Len()),
		zap.Duration("sandbox_timeout", a.sandbox.Timeout()),
	)
	return a, nil
}

func sourceConfig(src config.SourceConfig) collector.Config {
	return collector.Config{
		Enabled:           true,
		BaseURL:           src.BaseURL,
		RequestsPerMinute: src.RequestsPerMinute,
		Timeout:           src.Timeout,
	}
}

func buildNotifiers(cfg config.NotificationsConfig) (*notifier.Registry, error) {
	reg := notifier.NewRegistry()
	if cfg.Webhook.URL != "" {
		if err := reg.Register(webhook.New(cfg.Webhook.URL, cfg.Webhook.Headers)); err != nil {
			return nil, err
		}
	}
	if cfg.Telegram.BotToken != "" {
		tg, err := telegram.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(tg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Close releases the storage backend.
func (a *App) Close() error {
	if c, ok := a.storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (a *App) Config() *config.Config           { return a.cfg }
func (a *App) Collectors() *collector.Registry  { return a.collectors }
func (a *App) Library() *library.Library        { return a.library }
func (a *App) Backtester() *backtest.Backtester { return a.backtester }
func (a *App) Generator() *generator.Generator  { return a.generator }
func (a *App) Jobs() *job.Store                 { return a.jobs }
func (a *App) Notifiers() *notifier.Registry    { return a.notifiers }
func (a *App) Metrics() *metrics.Registry       { return a.metrics }

// Parquet returns the local bar store, or nil when it is disabled.
func (a *App) Parquet() *parquet.Store { return a.parquet }

// Parallelism is the configured batch width.
func (a *App) Parallelism() int { return a.cfg.Backtest.Parallelism }
