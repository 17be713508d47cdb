package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/metrics"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/services"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/storage"
)

type analyzeOptions struct {
	dataset      string
	file         string
	column       string
	usl          float64
	lsl          float64
	dateColumn   string
	from         string
	to           string
	filterColumn string
	filterValue  string
}

func newAnalyzeCommand(e *env) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Report on the quality of one measurement column",
		Long: `Analyze computes descriptive statistics, outliers and process stability
for a numeric column of a combined dataset or a CSV file. With --usl or --lsl
it also reports out-of-spec counts and the Cp/Cpk capability indices.`,
		Example: `  lineqa analyze --column Weight --usl 14 --lsl 9
  lineqa analyze --dataset march --column Weight --filter-column RefName --filter-value widget
  lineqa analyze --file export.csv --column Weight --date-column timestamp --from 2024-03-01`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.file != "" && cmd.Flags().Changed("dataset") {
				return apperrors.Invalid(apperrors.ErrInvalidIdentifier, opts.file, "use either --dataset or --file")
			}
			req := services.AnalyzeRequest{
				Column:       opts.column,
				DateColumn:   opts.dateColumn,
				DateFrom:     opts.from,
				DateTo:       opts.to,
				FilterColumn: opts.filterColumn,
				FilterValue:  opts.filterValue,
			}
			if cmd.Flags().Changed("usl") {
				req.USL = &opts.usl
			}
			if cmd.Flags().Changed("lsl") {
				req.LSL = &opts.lsl
			}

			report, err := e.runAnalyze(cmd, opts, req)
			if err != nil {
				return err
			}

			p := e.printer(cmd)
			if p.json() {
				return p.JSON(report)
			}
			printReport(p, report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.column, "column", "c", "", "Numeric column to analyze (required)")
	cmd.Flags().StringVarP(&opts.dataset, "dataset", "d", "", "Combined dataset to analyze (default from config)")
	cmd.Flags().StringVar(&opts.file, "file", "", "Analyze a CSV file instead of a stored dataset")
	cmd.Flags().Float64Var(&opts.usl, "usl", 0, "Upper specification limit")
	cmd.Flags().Float64Var(&opts.lsl, "lsl", 0, "Lower specification limit")
	cmd.Flags().StringVar(&opts.dateColumn, "date-column", "", "Column to apply the date range to")
	cmd.Flags().StringVar(&opts.from, "from", "", "Start date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "End date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.filterColumn, "filter-column", "", "Keep rows whose column contains --filter-value")
	cmd.Flags().StringVar(&opts.filterValue, "filter-value", "", "Substring to match in --filter-column")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func (e *env) runAnalyze(cmd *cobra.Command, opts *analyzeOptions, req services.AnalyzeRequest) (*models.QualityReport, error) {
	if opts.file != "" {
		f, err := os.Open(opts.file)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", opts.file, err)
		}
		defer f.Close()
		t, err := storage.ReadCSV(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", opts.file, err)
		}
		analyzer := services.NewAnalyzerService(analyzerConfig(e.cfg), nil, metrics.Nop{}, e.logger)
		return analyzer.Analyze(t, req)
	}

	app, err := e.openApp(cmd)
	if err != nil {
		return nil, err
	}
	defer app.Close()

	name := opts.dataset
	if name == "" {
		name = e.cfg.Combination.DefaultName
	}
	return app.Analyzer.AnalyzeDataset(cmd.Context(), name, req)
}

func printReport(p *printer, r *models.QualityReport) {
	s := r.Statistics
	p.KeyValues("Statistics: "+r.Column, [][2]any{
		{"Count", s.Count},
		{"Mean", formatFloat(s.Mean)},
		{"Median", formatFloat(s.Median)},
		{"Std", formatFloat(s.Std)},
		{"Min", formatFloat(s.Min)},
		{"Max", formatFloat(s.Max)},
		{"Q25", formatFloat(s.Q25)},
		{"Q75", formatFloat(s.Q75)},
		{"Skewness", formatOptional(s.Skewness)},
		{"Kurtosis", formatOptional(s.Kurtosis)},
	})

	if q := r.Quality; q != nil {
		pairs := [][2]any{}
		if q.USL != nil {
			pairs = append(pairs,
				[2]any{"USL", formatFloat(*q.USL)},
				[2]any{"Above USL", formatCount(q.OutOfSpecHigh)},
				[2]any{"NOK high %", formatOptional(q.NOKPercentageHigh)})
		}
		if q.LSL != nil {
			pairs = append(pairs,
				[2]any{"LSL", formatFloat(*q.LSL)},
				[2]any{"Below LSL", formatCount(q.OutOfSpecLow)},
				[2]any{"NOK low %", formatOptional(q.NOKPercentageLow)})
		}
		if q.TotalNOK != nil {
			pairs = append(pairs,
				[2]any{"Total NOK", formatCount(q.TotalNOK)},
				[2]any{"Total OK %", formatOptional(q.TotalOKPercentage)})
		}
		if q.Cp != nil {
			pairs = append(pairs, [2]any{"Cp", formatCell(float64(*q.Cp))})
		}
		if q.Cpk != nil {
			pairs = append(pairs, [2]any{"Cpk", formatCell(float64(*q.Cpk))})
		}
		p.KeyValues("Specification limits", pairs)
	}

	in := r.Insights
	insights := [][2]any{
		{"Outlier method", fmt.Sprintf("%s (%.2f)", in.OutlierMethod, in.OutlierFactor)},
		{"Outliers", fmt.Sprintf("%d (%.2f%%)", in.OutliersDetected, in.OutlierPercentage)},
	}
	if in.OutlierBounds != nil {
		insights = append(insights, [2]any{"Outlier bounds", fmt.Sprintf("[%s, %s]", formatFloat(in.OutlierBounds.Lower), formatFloat(in.OutlierBounds.Upper))})
	}
	if in.DistributionShape != "" {
		insights = append(insights, [2]any{"Distribution", in.DistributionShape})
	}
	if in.ProcessStability != "" {
		insights = append(insights, [2]any{"Stability", fmt.Sprintf("%s (RSD %s%%)", in.ProcessStability, formatOptional(in.RelativeStdPercent))})
	}
	p.KeyValues("Insights", insights)

	if len(in.LinePerformance) > 0 {
		rows := make([][]any, len(in.LinePerformance))
		for i, l := range in.LinePerformance {
			rows[i] = []any{l.Line, l.Count, formatFloat(l.Mean), formatFloat(l.Std)}
		}
		p.Table([]string{"Line", "Count", "Mean", "Std"}, rows)
	}

	f := r.Filtering
	p.Printf("Analyzed %d of %d records (%d removed by filters)\n", r.AnalyzedRecords, f.OriginalRecords, f.RecordsRemoved)
}
