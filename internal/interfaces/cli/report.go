package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/erp/ordersync/internal/domain/report"
)

// NewReportCommand groups the report subcommands
func NewReportCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Sales reports over stored orders",
	}
	cmd.AddCommand(newRollupCommand(root))
	return cmd
}

// RollupOptions holds flags for "report rollup"
type RollupOptions struct {
	*RootOptions
	Dimension    string
	Sort         string
	Order        string
	Marketplaces []string
	Stores       []string
	Search       string
	Limit        int
}

func newRollupCommand(root *RootOptions) *cobra.Command {
	opts := &RollupOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Per-product sales for today, yesterday, last week and last year",
		Example: `  syncctl report rollup --dimension seller_sku --sort today_revenue --limit 20
  syncctl report rollup --marketplace ATVPDKIKX0DER --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollup(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Dimension, "dimension", "d", string(report.DimensionASIN), "group by asin|seller_sku|local_sku")
	cmd.Flags().StringVar(&opts.Sort, "sort", report.DefaultRollupSortField, "sort field")
	cmd.Flags().StringVar(&opts.Order, "order", "desc", "sort order (asc|desc)")
	cmd.Flags().StringSliceVarP(&opts.Marketplaces, "marketplace", "m", nil, "marketplace ids (repeat or comma separate)")
	cmd.Flags().StringSliceVarP(&opts.Stores, "store", "s", nil, "store names (repeat or comma separate)")
	cmd.Flags().StringVar(&opts.Search, "search", "", "substring match on the dimension value or title")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum groups (0 uses the server default)")

	return cmd
}

func runRollup(cmd *cobra.Command, opts *RollupOptions) error {
	dimension, ok := report.ParseDimension(opts.Dimension)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown dimension %q", opts.Dimension))
	}
	order := strings.ToLower(opts.Order)
	if order != "asc" && order != "desc" {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid order %q: must be asc or desc", opts.Order))
	}
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}

	filter := report.RollupFilter{
		MarketplaceIDs: opts.Marketplaces,
		StoreNames:     opts.Stores,
		Search:         opts.Search,
		Limit:          opts.Limit,
	}
	sort := report.SortSpec{Field: opts.Sort, Order: order}

	return opts.withBackend(cmd, func(ctx context.Context, b *Backend, out *OutputFormatter) error {
		rollup, err := b.Reports.GetSalesRollup(ctx, filter, dimension, sort)
		if err != nil {
			if errors.Is(err, report.ErrUnknownMarketplace) || errors.Is(err, report.ErrInvalidDimension) {
				return WrapExitError(ExitCommandError, "invalid rollup query", err)
			}
			return WrapExitError(ExitFailure, "rollup failed", err)
		}

		return out.Print(true, rollup, "", func(w io.Writer) {
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintf(tw, "%s\tMARKETPLACE\tTODAY\tYESTERDAY\tLAST WEEK\tLAST YEAR\tTODAY REV\t\n", strings.ToUpper(string(rollup.Dimension)))
			for _, row := range rollup.Rows {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t\n",
					row.DimensionValue, row.MarketplaceID,
					row.Today.Quantity, row.Yesterday.Quantity, row.LastWeek.Quantity, row.LastYear.Quantity,
					row.Today.Revenue.StringFixed(2))
			}
			s := rollup.Summary
			fmt.Fprintf(tw, "TOTAL (%d)\t\t%d\t%d\t%d\t%d\t%s\t\n",
				s.Groups, s.Today.Quantity, s.Yesterday.Quantity, s.LastWeek.Quantity, s.LastYear.Quantity,
				s.Today.Revenue.StringFixed(2))
			tw.Flush()
		})
	})
}
