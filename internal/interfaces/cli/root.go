// Package cli implements syncctl, the operator command line for the order
// sync service. Commands run the same services as the HTTP server against
// the configured database.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	appintegration "github.com/erp/ordersync/internal/application/integration"
	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/domain/report"
)

// SyncService is the part of the sync application service the CLI drives
type SyncService interface {
	RunIncrementalSync(ctx context.Context, opts integration.SyncOptions) appintegration.SyncResult
	SyncSpecificOrders(ctx context.Context, orderIDs []string) appintegration.SpecificSyncResult
	RefreshOneOrder(ctx context.Context, orderID string) appintegration.RefreshResult
}

// RollupService computes the sales rollup
type RollupService interface {
	GetSalesRollup(ctx context.Context, filter report.RollupFilter, dimension report.Dimension, sort report.SortSpec) (*report.SalesRollup, error)
}

// Backend is what a command needs from the wired application
type Backend struct {
	Sync    SyncService
	Runs    integration.SyncRunRepository
	Reports RollupService
}

// BackendFactory builds a Backend and returns a close function for it
type BackendFactory func(ctx context.Context, configPath string) (*Backend, func(context.Context) error, error)

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"

	factory BackendFactory
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the syncctl root command
func NewRootCommand(factory BackendFactory) *cobra.Command {
	opts := &RootOptions{factory: factory}

	cmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Operate the marketplace order sync",
		Long:          "Run order syncs, refresh single orders and print sales rollups against the configured database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewOrdersCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withBackend builds the backend, runs fn and closes the backend
func (o *RootOptions) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b *Backend, out *OutputFormatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	backend, closeFn, err := o.factory(ctx, o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	runErr := fn(ctx, backend, &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()})

	if closeFn != nil {
		if err := closeFn(context.Background()); err != nil && runErr == nil {
			return WrapExitError(ExitCommandError, "failed to shut down", err)
		}
	}
	return runErr
}
