package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/bootstrap"
	"github.com/erp/ordersync/internal/infrastructure/config"
	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/interfaces/http/handler"
	"github.com/erp/ordersync/internal/interfaces/http/router"
)

//	@title			Order Sync API
//	@version		1.0
//	@description	Marketplace order synchronisation and sales rollup service
//	@BasePath		/api/v1

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()

	log, flushLogs, err := bootstrap.NewLogger(ctx, cfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
		_ = flushLogs(context.Background())
	}()

	log.Info("Starting order sync service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		_ = app.Close(ctx)
		log.Fatal("Failed to initialize application", zap.Error(err))
	}

	checks := make(map[string]handler.Pinger)
	for name, check := range app.HealthChecks() {
		checks[name] = check
	}

	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:         cfg.Telemetry.ServiceName,
		TracingEnabled:      cfg.Telemetry.Enabled,
		MaxBodySize:         cfg.HTTP.MaxBodySize,
		TrustedProxies:      cfg.HTTP.TrustedProxies,
		SyncTriggerInterval: cfg.HTTP.SyncTriggerInterval,
		SyncTriggerBurst:    cfg.HTTP.SyncTriggerBurst,
	}, router.Handlers{
		Sync:   handler.NewSyncHandler(app.Scheduler, app.Sync, app.Runs, app.Limiter),
		Orders: handler.NewOrderHandler(app.Sync, app.Orders),
		Report: handler.NewReportHandler(app.Reports),
		System: handler.NewSystemHandler(cfg.App.Name, version, checks),
	}, log)
	if err != nil {
		_ = app.Close(ctx)
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	// Periodic runs stop with the process; manual runs keep their request context
	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	if err := app.Scheduler.Start(schedulerCtx); err != nil {
		_ = app.Close(ctx)
		log.Fatal("Failed to start sync scheduler", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	stopScheduler()
	if err := app.Close(shutdownCtx); err != nil {
		log.Error("Shutdown incomplete", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
