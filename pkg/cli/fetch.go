package cli

import (
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/services"
)

const defaultPreviewRows = 20

type fetchOptions struct {
	sources     []string
	filters     []string
	limit       int
	orderColumn string
	all         bool
	maxRows     int
}

func newFetchCommand(e *env) *cobra.Command {
	opts := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch measurements from production lines",
		Long: `Fetch runs one filtered query against every selected production line in
parallel and prints the merged rows. A line that fails is reported and the
others still return data.

Filters are "<column> <operator> <value>" such as "Weight > 10" or
"RefName IN Widget-A,Widget-B". Values are always bound as parameters.`,
		Example: `  lineqa fetch --filter "Weight > 10" --limit 50
  lineqa fetch --source line1 --source line2 --all
  lineqa fetch --filter "RefName = Widget-A" -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var limit *int
			if cmd.Flags().Changed("limit") {
				limit = &opts.limit
			}
			if len(opts.filters) == 0 && limit == nil && !opts.all {
				return apperrors.Invalid(apperrors.ErrInvalidFilter, "", "set --filter, --limit, or --all to fetch every row")
			}

			app, err := e.openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Fetcher.FetchAll(cmd.Context(), opts.sources, services.FetchRequest{
				Filters:     opts.filters,
				Limit:       limit,
				OrderColumn: opts.orderColumn,
			})
			if err != nil {
				return err
			}

			p := e.printer(cmd)
			if p.json() {
				return p.JSON(map[string]any{
					"total_rows": res.Table.Len(),
					"columns":    res.Table.Columns(),
					"rows":       tableJSON(res.Table, opts.maxRows),
					"sources":    res.Statuses(),
				})
			}
			p.SourceStatuses(res.Statuses())
			p.Preview(res.Table, opts.maxRows)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&opts.sources, "source", "s", nil, "Source to query (repeatable; default all)")
	cmd.Flags().StringArrayVarP(&opts.filters, "filter", "f", nil, "Filter condition (repeatable, combined with AND)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum rows per source")
	cmd.Flags().StringVar(&opts.orderColumn, "order-column", "", "Order rows by this column, newest first")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Fetch every row when no filter or limit is given")
	cmd.Flags().IntVar(&opts.maxRows, "max-rows", defaultPreviewRows, "Rows to print (0 prints all)")
	return cmd
}
