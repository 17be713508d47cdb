package cli

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/services"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/storage"
)

type extractOptions struct {
	columns       []string
	productColumn string
	from          string
	to            string
	sources       []string
	out           string
}

func newExtractCommand(e *env) *cobra.Command {
	opts := &extractOptions{}

	cmd := &cobra.Command{
		Use:   "extract <product>",
		Short: "Export one product's measurements from every line to CSV",
		Long: `Extract collects the rows of one product type from every production line.
The product matches case-insensitively as a substring of the product column.`,
		Example: `  lineqa extract Widget-A
  lineqa extract widget --column TraceCode --column Weight --from 2024-03-01 --out widgets.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Products.Extract(cmd.Context(), services.ExtractRequest{
				ProductName:   args[0],
				ProductColumn: opts.productColumn,
				Columns:       opts.columns,
				DateFrom:      opts.from,
				DateTo:        opts.to,
				Sources:       opts.sources,
			})
			if err != nil {
				return err
			}

			path := opts.out
			if path == "" {
				path = "product_" + fileSafe(args[0]) + ".csv"
			}
			if err := writeCSVFile(path, res); err != nil {
				return err
			}

			p := e.printer(cmd)
			if p.json() {
				return p.JSON(map[string]any{
					"file":             path,
					"rows":             res.Table.Len(),
					"production_lines": res.Lines,
					"missing_columns":  res.MissingColumns,
					"sources":          res.Sources,
				})
			}
			p.SourceStatuses(res.Sources)
			if len(res.MissingColumns) > 0 {
				p.Printf("Columns not found on any line: %s\n", strings.Join(res.MissingColumns, ", "))
			}
			p.Printf("Wrote %d rows from %d lines to %s\n", res.Table.Len(), len(res.Lines), path)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&opts.columns, "column", "c", nil, "Column to export (repeatable; default all)")
	cmd.Flags().StringVar(&opts.productColumn, "product-column", "", "Column holding the product name")
	cmd.Flags().StringVar(&opts.from, "from", "", "Start date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "End date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringSliceVarP(&opts.sources, "source", "s", nil, "Source to search (repeatable; default all)")
	cmd.Flags().StringVar(&opts.out, "out", "", "Output CSV path (default product_<name>.csv)")
	return cmd
}

func writeCSVFile(path string, res *services.ExtractResult) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	if err := storage.WriteCSV(f, res.Table); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func fileSafe(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}

type searchOptions struct {
	limit         int
	productColumn string
	sources       []string
}

func newSearchCommand(e *env) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search [pattern]",
		Short: "Find product types across every line",
		Long: `Search lists product names containing the pattern, with how many rows and
lines carry each one. Without a pattern, or with "*", every product is listed.`,
		Example: `  lineqa search widget
  lineqa search --limit 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}

			app, err := e.openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Products.Search(cmd.Context(), services.SearchRequest{
				Pattern:       pattern,
				ProductColumn: opts.productColumn,
				Limit:         opts.limit,
				Sources:       opts.sources,
			})
			if err != nil {
				return err
			}

			p := e.printer(cmd)
			if p.json() {
				return p.JSON(res)
			}
			if len(res.Products) == 0 {
				p.Println("No matching products.")
				return nil
			}
			rows := make([][]any, len(res.Products))
			for i, m := range res.Products {
				rows[i] = []any{m.ProductName, m.TotalCount, m.ProductionLines, strings.Join(m.Lines, ", ")}
			}
			p.Table([]string{"Product", "Rows", "Lines", "Found on"}, rows)
			if res.ProductsFound > len(res.Products) {
				p.Printf("(%d of %d products)\n", len(res.Products), res.ProductsFound)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Maximum products to list")
	cmd.Flags().StringVar(&opts.productColumn, "product-column", "", "Column holding the product name")
	cmd.Flags().StringSliceVarP(&opts.sources, "source", "s", nil, "Source to search (repeatable; default all)")
	return cmd
}
