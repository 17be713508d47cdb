package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/services"
)

type combineOptions struct {
	name            string
	sources         []string
	filters         []string
	limit           int
	uniqueID        string
	timestampColumn string
	lineColumn      string
	strategy        string
}

func newCombineCommand(e *env) *cobra.Command {
	opts := &combineOptions{}

	cmd := &cobra.Command{
		Use:   "combine",
		Short: "Combine all lines into one deduplicated dataset",
		Long: `Combine fetches every selected line, tags each row with its production
line, removes duplicate parts by the unique identifier and stores the result
as a named dataset.

Strategies:
  latest_wins       keep the most recent measurement of each part
  first_occurrence  keep the first measurement seen`,
		Example: `  lineqa combine --name march --filter "timestamp >= 2024-03-01"
  lineqa combine --unique-id TraceCode --strategy first_occurrence`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var limit *int
			if cmd.Flags().Changed("limit") {
				limit = &opts.limit
			}

			app, err := e.openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Combiner.Combine(cmd.Context(), services.CombineRequest{
				Name:                 opts.name,
				Sources:              opts.sources,
				Filters:              opts.filters,
				Limit:                limit,
				UniqueIdentifier:     opts.uniqueID,
				TimestampColumn:      opts.timestampColumn,
				ProductionLineColumn: opts.lineColumn,
				Strategy:             opts.strategy,
			})
			if err != nil {
				return err
			}

			p := e.printer(cmd)
			if p.json() {
				return p.JSON(map[string]any{"dataset": res.Metadata, "sources": res.Sources})
			}
			p.SourceStatuses(res.Sources)
			printDatasetMetadata(p, res.Metadata)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "Dataset name (default from config)")
	cmd.Flags().StringSliceVarP(&opts.sources, "source", "s", nil, "Source to combine (repeatable; default all)")
	cmd.Flags().StringArrayVarP(&opts.filters, "filter", "f", nil, "Filter condition (repeatable)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum rows per source")
	cmd.Flags().StringVar(&opts.uniqueID, "unique-id", "", "Column identifying one part")
	cmd.Flags().StringVar(&opts.timestampColumn, "timestamp-column", "", "Column ordering measurements in time")
	cmd.Flags().StringVar(&opts.lineColumn, "line-column", "", "Column receiving the production line name")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Merge strategy: latest_wins or first_occurrence")
	_ = cmd.RegisterFlagCompletionFunc("strategy", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{models.StrategyLatestWins, models.StrategyFirstOccurrence}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func printDatasetMetadata(p *printer, m *models.DatasetMetadata) {
	strategy := m.Dedup.Strategy
	if m.Dedup.RequestedStrategy != "" && m.Dedup.RequestedStrategy != m.Dedup.Strategy {
		strategy = fmt.Sprintf("%s (requested %s)", m.Dedup.Strategy, m.Dedup.RequestedStrategy)
	}
	p.KeyValues("Dataset "+m.Name, [][2]any{
		{"Lines", len(m.Lines)},
		{"Initial records", m.InitialCount},
		{"Final records", m.FinalCount},
		{"Duplicates removed", m.DuplicatesRemoved},
		{"Unique identifier", m.Dedup.UniqueIdentifier},
		{"Strategy", strategy},
		{"Data file", m.Path},
		{"Created", m.CreatedAt.Format("2006-01-02 15:04:05")},
	})
	if len(m.LineDistribution) == 0 {
		return
	}
	rows := make([][]any, len(m.LineDistribution))
	for i, ls := range m.LineDistribution {
		rows[i] = []any{ls.Line, ls.Count, fmt.Sprintf("%.1f%%", ls.Percentage)}
	}
	p.Table([]string{"Line", "Records", "Share"}, rows)
}
