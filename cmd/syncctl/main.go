// Command syncctl runs order syncs and reports from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erp/ordersync/internal/bootstrap"
	"github.com/erp/ordersync/internal/infrastructure/config"
	"github.com/erp/ordersync/internal/interfaces/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand(newBackend)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

// newBackend wires the application the same way the server does, minus the
// periodic scheduler. Logs go to stderr so stdout stays parseable.
func newBackend(ctx context.Context, configPath string) (*cli.Backend, func(context.Context) error, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Log.Output == "" || cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}
	cfg.Scheduler.Enabled = false

	log, flushLogs, err := bootstrap.NewLogger(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		_ = flushLogs(context.Background())
		return nil, nil, err
	}

	closeFn := func(ctx context.Context) error {
		err := app.Close(ctx)
		_ = log.Sync()
		return errors.Join(err, flushLogs(ctx))
	}
	return &cli.Backend{Sync: app.Sync, Runs: app.Runs, Reports: app.Reports}, closeFn, nil
}
