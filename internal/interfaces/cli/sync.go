package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/erp/ordersync/internal/domain/integration"
)

// NewSyncCommand groups the sync subcommands
func NewSyncCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run and inspect order syncs",
	}
	cmd.AddCommand(newSyncRunCommand(root))
	cmd.AddCommand(newSyncOrdersCommand(root))
	cmd.AddCommand(newSyncRunsCommand(root))
	return cmd
}

// SyncRunOptions holds flags for "sync run"
type SyncRunOptions struct {
	*RootOptions
	Mode    string
	Start   string
	End     string
	Timeout time.Duration
}

func newSyncRunCommand(root *RootOptions) *cobra.Command {
	opts := &SyncRunOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync now",
		Long: `Run one sync against the remote orders API and wait for it.

incremental derives its window from the stored watermark. range and
backfill need --start and --end (RFC 3339); backfill filters on purchase
date instead of last update.`,
		Example: `  syncctl sync run
  syncctl sync run --mode backfill --start 2024-01-01T00:00:00Z --end 2024-02-01T00:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncRun(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", string(integration.SyncModeIncremental), "sync mode (incremental|range|backfill)")
	cmd.Flags().StringVar(&opts.Start, "start", "", "window start, RFC 3339")
	cmd.Flags().StringVar(&opts.End, "end", "", "window end, RFC 3339")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "give up waiting for a run in progress after this long (0 waits indefinitely); a started run always finishes")

	return cmd
}

func runSyncRun(cmd *cobra.Command, opts *SyncRunOptions) error {
	syncOpts, err := opts.syncOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid sync options", err)
	}

	return opts.withBackend(cmd, func(ctx context.Context, b *Backend, out *OutputFormatter) error {
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}

		result := b.Sync.RunIncrementalSync(ctx, syncOpts)
		if err := out.Print(result.Success, result, result.Error, func(w io.Writer) {
			fmt.Fprintf(w, "mode:    %s\n", result.Mode)
			fmt.Fprintf(w, "window:  %s .. %s\n", formatTime(result.Window.Start), formatTime(result.Window.End))
			fmt.Fprintf(w, "orders:  %d\n", result.Count)
			fmt.Fprintf(w, "pages:   %d\n", result.Pages)
			if result.Stop != "" {
				fmt.Fprintf(w, "stop:    %s\n", result.Stop)
			}
			fmt.Fprintf(w, "elapsed: %s\n", result.Elapsed.Round(time.Millisecond))
		}); err != nil {
			return err
		}
		if !result.Success {
			return NewExitError(ExitFailure, "sync failed")
		}
		return nil
	})
}

// syncOptions validates the flags into domain options
func (o *SyncRunOptions) syncOptions() (integration.SyncOptions, error) {
	opts := integration.SyncOptions{
		Mode:    integration.SyncMode(o.Mode),
		Trigger: integration.SyncTriggerCLI,
	}

	if o.Start != "" || o.End != "" {
		start, err := parseTimeFlag("start", o.Start)
		if err != nil {
			return opts, err
		}
		end, err := parseTimeFlag("end", o.End)
		if err != nil {
			return opts, err
		}
		opts.Range = &integration.TimeRange{Start: start, End: end}
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: --%s is required with a window", integration.ErrInvalidSyncOptions, name)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --%s: %v", integration.ErrInvalidSyncOptions, name, err)
	}
	return t.UTC(), nil
}

func newSyncOrdersCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "orders <order-id>...",
		Short:   "Refresh specific orders by id",
		Example: "  syncctl sync orders 111-2222222-3333333 111-4444444-5555555",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withBackend(cmd, func(ctx context.Context, b *Backend, out *OutputFormatter) error {
				result := b.Sync.SyncSpecificOrders(ctx, args)
				if err := out.Print(result.Success, result, result.Error, func(w io.Writer) {
					fmt.Fprintf(w, "requested: %d\n", result.Requested)
					fmt.Fprintf(w, "chunks:    %d\n", result.Chunks)
					fmt.Fprintf(w, "pages:     %d\n", result.Pages)
					fmt.Fprintf(w, "saved:     %d\n", result.Count)
				}); err != nil {
					return err
				}
				if !result.Success {
					return NewExitError(ExitFailure, "order sync failed")
				}
				return nil
			})
		},
	}
}

func newSyncRunsCommand(root *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent persisted sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > 500 {
				return NewExitError(ExitCommandError, "--limit must be between 1 and 500")
			}
			return root.withBackend(cmd, func(ctx context.Context, b *Backend, out *OutputFormatter) error {
				runs, err := b.Runs.ListRecent(ctx, limit)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list sync runs", err)
				}

				views := make([]runView, 0, len(runs))
				for _, run := range runs {
					views = append(views, newRunView(run))
				}
				return out.Print(true, views, "", func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "STARTED\tTYPE\tSTATUS\tDURATION\tDETAIL")
					for _, v := range views {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%s\n", formatTime(v.StartedAt), v.RunType, v.Status, v.DurationMs, v.Detail)
					}
					tw.Flush()
				})
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

type runView struct {
	ID         string    `json:"id"`
	RunType    string    `json:"run_type"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
	Detail     string    `json:"detail,omitempty"`
}

func newRunView(run integration.SyncRun) runView {
	return runView{
		ID:         run.ID.String(),
		RunType:    run.RunType.String(),
		Status:     string(run.Status),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		DurationMs: run.Duration().Milliseconds(),
		Detail:     run.Detail,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
