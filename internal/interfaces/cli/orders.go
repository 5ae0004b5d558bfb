package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewOrdersCommand groups the single-order subcommands
func NewOrdersCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect stored orders",
	}
	cmd.AddCommand(newOrdersRefreshCommand(root))
	return cmd
}

func newOrdersRefreshCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <order-id>",
		Short: "Read one order, refreshing it from the remote API when stale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withBackend(cmd, func(ctx context.Context, b *Backend, out *OutputFormatter) error {
				result := b.Sync.RefreshOneOrder(ctx, args[0])
				if err := out.Print(result.Success, result, result.Msg, func(w io.Writer) {
					fmt.Fprintf(w, "outcome:   %s\n", result.Outcome)
					fmt.Fprintf(w, "refreshed: %t\n", result.Refreshed)
					for _, o := range result.Orders {
						store := "-"
						if o.StoreName != nil {
							store = *o.StoreName
						}
						fmt.Fprintf(w, "%s  store=%s  status=%s  total=%s %s  updated=%s\n",
							o.OrderID, store, o.Status, o.OrderTotal.StringFixed(2), o.Currency, formatTime(o.UpdatedAt))
					}
				}); err != nil {
					return err
				}
				if !result.Success {
					return NewExitError(ExitFailure, result.Msg)
				}
				return nil
			})
		},
	}
}
