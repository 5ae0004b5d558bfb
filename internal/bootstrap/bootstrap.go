// Package bootstrap wires the order sync components from configuration. The
// HTTP server and the syncctl CLI share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appintegration "github.com/erp/ordersync/internal/application/integration"
	appreport "github.com/erp/ordersync/internal/application/report"
	"github.com/erp/ordersync/internal/domain/report"
	"github.com/erp/ordersync/internal/infrastructure/cache"
	"github.com/erp/ordersync/internal/infrastructure/config"
	"github.com/erp/ordersync/internal/infrastructure/ecommerce"
	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/infrastructure/persistence"
	"github.com/erp/ordersync/internal/infrastructure/scheduler"
	"github.com/erp/ordersync/internal/infrastructure/telemetry"
)

// App holds every long-lived component
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB      *persistence.Database
	Store   cache.Store
	Limiter *ecommerce.Limiter

	Orders    *persistence.GormOrderRepository
	Runs      *persistence.GormSyncRunRepository
	Sync      *appintegration.OrderSyncService
	Scheduler *scheduler.SyncScheduler
	Reports   *appreport.ReportService

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// NewLogger builds the process logger. When OTEL logs are enabled every entry
// is also forwarded to the collector; the returned func flushes that bridge.
func NewLogger(ctx context.Context, cfg *config.Config) (*zap.Logger, func(context.Context) error, error) {
	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	}

	base, err := logger.New(logCfg)
	if err != nil {
		return nil, nil, err
	}
	noop := func(context.Context) error { return nil }
	if !cfg.Telemetry.Enabled || !cfg.Telemetry.LogsEnabled {
		return base, noop, nil
	}

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           true,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, base)
	if err != nil {
		base.Warn("OTEL log bridge unavailable, logging locally only", zap.Error(err))
		return base, noop, nil
	}

	teed, err := logger.New(logCfg, logger.WithTee(telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		LoggerProvider: lp,
		Level:          zapcore.InfoLevel,
	})))
	if err != nil {
		return nil, nil, err
	}
	return teed, lp.Shutdown, nil
}

// New wires the application. Close must be called even when New fails halfway;
// it releases whatever was opened.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	if err := a.initTelemetry(ctx); err != nil {
		return a, err
	}
	metrics, err := a.initMetrics(ctx)
	if err != nil {
		return a, err
	}
	if err := a.initDatabase(); err != nil {
		return a, err
	}
	if err := a.initStore(); err != nil {
		return a, err
	}

	fetcher, err := a.newFetcher()
	if err != nil {
		return a, err
	}

	a.Orders = persistence.NewGormOrderRepository(a.DB.DB)
	a.Runs = persistence.NewGormSyncRunRepository(a.DB.DB)
	txScope := persistence.NewGormTransactionScope(a.DB.DB)

	driver := appintegration.NewSyncDriver(fetcher, txScope, a.Orders, a.Runs, appintegration.DriverConfig{
		PageSize:     cfg.Sync.PageSize,
		MaxPages:     cfg.Sync.MaxPages,
		PageThrottle: cfg.Sync.PageThrottle,
		Watermark: appintegration.WatermarkPolicy{
			ActiveStoreWindow: cfg.Sync.ActiveStoreWindow,
			Buffer:            cfg.Sync.Buffer,
			IdleLookback:      cfg.Sync.IdleLookback,
			ColdStartLookback: cfg.Sync.ColdStartLookback,
		},
	}, log, appintegration.WithMetrics(metrics))

	refresher := appintegration.NewOrderRefresher(fetcher, txScope, a.Orders, a.Store, appintegration.RefreshConfig{
		Enabled:   cfg.HotRefresh.Enabled,
		MaxAge:    cfg.HotRefresh.MaxAge,
		GuardTTL:  cfg.HotRefresh.GuardTTL,
		ChunkSize: cfg.Sync.SpecificChunkSize,
	}, metrics, log)

	a.Sync = appintegration.NewOrderSyncService(driver, refresher, a.newGate(), log)

	a.Scheduler, err = scheduler.NewSyncScheduler(scheduler.SyncSchedulerConfig{
		Enabled:     cfg.Scheduler.Enabled,
		Interval:    cfg.Scheduler.Interval,
		RunOnStart:  cfg.Scheduler.RunOnStart,
		HistorySize: cfg.Scheduler.HistorySize,
	}, a.Sync, metrics, log)
	if err != nil {
		return a, fmt.Errorf("scheduler: %w", err)
	}
	a.onClose("scheduler", a.Scheduler.Stop)

	zones, err := report.NewMarketplaceZones(cfg.Report.MarketplaceOffsets)
	if err != nil {
		return a, fmt.Errorf("report zones: %w", err)
	}
	a.Reports = appreport.NewReportService(
		persistence.NewGormSalesRollupRepository(a.DB.DB),
		zones,
		appreport.RollupLimits{Default: cfg.Report.DefaultLimit, Max: cfg.Report.MaxLimit},
		log,
	)

	return a, nil
}

func (a *App) initTelemetry(ctx context.Context) error {
	t := a.Config.Telemetry
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           t.Enabled,
		CollectorEndpoint: t.CollectorEndpoint,
		SamplingRatio:     t.SamplingRatio,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("tracer provider: %w", err)
	}
	a.onClose("tracer provider", tp.Shutdown)
	return nil
}

func (a *App) initMetrics(ctx context.Context) (*telemetry.SyncMetrics, error) {
	t := a.Config.Telemetry
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           t.Enabled && t.MetricsEnabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ExportInterval:    t.MetricsInterval,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("meter provider: %w", err)
	}
	a.onClose("meter provider", mp.Shutdown)

	metrics, err := telemetry.NewSyncMetrics(mp.Meter("ordersync/sync"))
	if err != nil {
		return nil, fmt.Errorf("sync metrics: %w", err)
	}
	return metrics, nil
}

func (a *App) initDatabase() error {
	cfg := a.Config
	gormLog := logger.NewGormLogger(a.Logger, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
	)

	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	a.DB = db
	a.onClose("database", func(context.Context) error { return db.Close() })

	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        dbSystem(db.Driver()),
		}, a.Logger)
		if err := plugin.RegisterOtelGorm(db.DB); err != nil {
			return fmt.Errorf("database tracing: %w", err)
		}
	}

	// SQLite is the single-file development setup; the other drivers are
	// migrated with cmd/migrate.
	if db.Driver() == config.DriverSQLite {
		if err := persistence.AutoMigrate(db.DB); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	a.Logger.Info("Database connected", zap.String("driver", db.Driver()))
	return nil
}

func (a *App) initStore() error {
	store, err := cache.NewStoreFactory(a.Config.Redis,
		cache.WithLogger(a.Logger),
		cache.WithInMemoryFallback(!a.Config.Scheduler.DistributedLock),
	).CreateStore()
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	a.Store = store
	a.onClose("cache store", func(context.Context) error { return store.Close() })
	return nil
}

func (a *App) newFetcher() (*ecommerce.OrderFetcher, error) {
	remote := a.Config.Remote
	clientCfg := ecommerce.NewClientConfig(remote.AppID, remote.AppSecret)
	clientCfg.BaseURL = remote.BaseURL
	if remote.TokenPath != "" {
		clientCfg.TokenPath = remote.TokenPath
	}
	clientCfg.Timeout = remote.RequestTimeout

	// one limiter for every outbound call, token requests included
	a.Limiter = ecommerce.NewLimiter(remote.MinCallInterval)
	tokens := ecommerce.NewTokenSource(clientCfg, a.Store, a.Limiter, a.Logger)
	client, err := ecommerce.NewClient(clientCfg, tokens, a.Limiter, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("remote client: %w", err)
	}

	return ecommerce.NewOrderFetcher(client, ecommerce.FetcherConfig{
		Path:        remote.OrderListPath,
		MaxAttempts: remote.MaxAttempts,
		RetryDelay:  remote.RetryDelay,
	}, a.Logger), nil
}

func (a *App) newGate() appintegration.RunGate {
	if a.Config.Scheduler.DistributedLock {
		a.Logger.Info("Sync run gate shared through the cache store")
		return scheduler.NewLeaseGate(a.Store, "", a.Config.Scheduler.LockTTL, a.Logger)
	}
	return scheduler.NewLocalGate()
}

// HealthChecks returns the dependency probes exposed by /health
func (a *App) HealthChecks() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"database": func(context.Context) error { return a.DB.Ping() },
	}
}

// Close releases components in reverse order of creation
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.Logger.Error("Shutdown step failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func dbSystem(driver string) string {
	switch driver {
	case config.DriverMySQL:
		return "mysql"
	case config.DriverSQLite:
		return "sqlite"
	default:
		return "postgresql"
	}
}
