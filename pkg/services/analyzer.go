package services

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/metrics"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/stats"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/storage"
)

// AnalyzeRequest selects the column to analyze and the rows to include.
// USL and LSL are optional specification limits.
type AnalyzeRequest struct {
	Column       string   `json:"column"`
	DateColumn   string   `json:"date_column,omitempty"`
	DateFrom     string   `json:"date_from,omitempty"`
	DateTo       string   `json:"date_to,omitempty"`
	FilterColumn string   `json:"filter_column,omitempty"`
	FilterValue  string   `json:"filter_value,omitempty"`
	USL          *float64 `json:"usl,omitempty"`
	LSL          *float64 `json:"lsl,omitempty"`
}

// AnalyzerConfig holds the analysis defaults.
type AnalyzerConfig struct {
	OutlierMethod        string
	OutlierFactor        float64
	StableThreshold      float64
	UnstableThreshold    float64
	DefaultDateRangeDays int
	CaseSensitive        bool
	ProductionLineColumn string
}

// AnalyzerService computes quality reports on numeric columns.
type AnalyzerService interface {
	// Analyze reports on one column of table. The table is not modified.
	Analyze(table *models.Table, req AnalyzeRequest) (*models.QualityReport, error)

	// AnalyzeDataset loads a stored dataset and analyzes it.
	AnalyzeDataset(ctx context.Context, name string, req AnalyzeRequest) (*models.QualityReport, error)
}

type analyzerService struct {
	cfg     AnalyzerConfig
	store   storage.DatasetStore
	metrics metrics.Backend
	logger  *zap.Logger
	now     func() time.Time
}

// NewAnalyzerService creates an analyzer. store may be nil when only
// in-memory tables are analyzed.
func NewAnalyzerService(cfg AnalyzerConfig, store storage.DatasetStore, m metrics.Backend, logger *zap.Logger) AnalyzerService {
	if cfg.OutlierMethod == "" {
		cfg.OutlierMethod = models.OutlierMethodIQR
	}
	if cfg.OutlierFactor <= 0 {
		cfg.OutlierFactor = 1.5
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = 10
	}
	if cfg.UnstableThreshold <= 0 {
		cfg.UnstableThreshold = 25
	}
	if cfg.ProductionLineColumn == "" {
		cfg.ProductionLineColumn = "production_line"
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &analyzerService{
		cfg:     cfg,
		store:   store,
		metrics: m,
		logger:  logger.Named("analyzer"),
		now:     time.Now,
	}
}

func (s *analyzerService) AnalyzeDataset(ctx context.Context, name string, req AnalyzeRequest) (*models.QualityReport, error) {
	if s.store == nil {
		return nil, apperrors.ErrNotFound
	}
	table, err := s.store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.Analyze(table, req)
}

func (s *analyzerService) Analyze(table *models.Table, req AnalyzeRequest) (*models.QualityReport, error) {
	if !table.HasColumn(req.Column) {
		return nil, &apperrors.ColumnError{Kind: apperrors.ErrColumnNotFound, Column: req.Column, Available: table.Columns()}
	}

	filtered, err := s.applyFilters(table, req)
	if err != nil {
		return nil, err
	}
	if filtered.Empty() {
		return nil, &apperrors.ColumnError{
			Kind:      apperrors.ErrEmptyColumn,
			Column:    req.Column,
			Available: table.Columns(),
			Detail:    "no rows left after filtering",
		}
	}

	values := numericValues(filtered, req.Column)
	if len(values) == 0 {
		return nil, &apperrors.ColumnError{
			Kind:      apperrors.ErrEmptyColumn,
			Column:    req.Column,
			Available: table.Columns(),
			Detail:    "column has no numeric values",
		}
	}

	summary := stats.Describe(values)
	quality, err := stats.Capability(values, summary.Mean, summary.Std, req.USL, req.LSL)
	if err != nil {
		return nil, err
	}
	insights, err := s.insights(values, summary, filtered, req.Column)
	if err != nil {
		return nil, err
	}

	report := &models.QualityReport{
		Column:     req.Column,
		Statistics: summary,
		Quality:    quality,
		Insights:   insights,
		Filtering: models.FilteringInfo{
			OriginalRecords: table.Len(),
			RecordsAfter:    filtered.Len(),
			RecordsRemoved:  table.Len() - filtered.Len(),
		},
		AnalyzedRecords: len(values),
	}

	s.metrics.IncCounter(metrics.AnalyzeRunsTotal, 1, metrics.Labels{"method": insights.OutlierMethod})
	s.logger.Debug("Column analyzed",
		zap.String("column", req.Column),
		zap.Int("records", len(values)),
		zap.Int("outliers", insights.OutliersDetected),
	)
	return report, nil
}

// applyFilters narrows the table by date range and value. Explicit bounds
// win over the default range; the default needs a date column too.
func (s *analyzerService) applyFilters(table *models.Table, req AnalyzeRequest) (*models.Table, error) {
	out := table

	if req.DateColumn != "" && table.HasColumn(req.DateColumn) {
		from, err := optionalDate(req.DateFrom, "date_from")
		if err != nil {
			return nil, err
		}
		to, err := optionalDate(req.DateTo, "date_to")
		if err != nil {
			return nil, err
		}
		if from == nil && to == nil && s.cfg.DefaultDateRangeDays > 0 {
			cutoff := s.now().Add(-time.Duration(s.cfg.DefaultDateRangeDays) * 24 * time.Hour)
			from = &cutoff
		}
		if from != nil || to != nil {
			out = filterDates(out, req.DateColumn, from, to)
		}
	}

	if req.FilterColumn != "" && req.FilterValue != "" && out.HasColumn(req.FilterColumn) && !out.Empty() {
		out = filterValue(out, req.FilterColumn, req.FilterValue, s.cfg.CaseSensitive)
	}
	return out, nil
}

func filterDates(t *models.Table, column string, from, to *time.Time) *models.Table {
	cells, _ := t.Column(column)
	return t.Filter(func(row int) bool {
		at, ok := models.ToTime(cells[row])
		if !ok {
			return false
		}
		if from != nil && at.Before(*from) {
			return false
		}
		if to != nil && at.After(*to) {
			return false
		}
		return true
	})
}

// filterValue keeps rows equal to value. The column's first cell decides
// between numeric and text comparison.
func filterValue(t *models.Table, column, value string, caseSensitive bool) *models.Table {
	cells, _ := t.Column(column)
	if isNumberCell(cells[0]) {
		if want, ok := models.ToFloat(value); ok {
			return t.Filter(func(row int) bool {
				got, ok := models.ToFloat(cells[row])
				return ok && got == want
			})
		}
	}
	return t.Filter(func(row int) bool {
		if models.IsMissing(cells[row]) {
			return false
		}
		got := models.ToString(cells[row])
		if caseSensitive {
			return got == value
		}
		return strings.EqualFold(got, value)
	})
}

func isNumberCell(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func numericValues(t *models.Table, column string) []float64 {
	cells, _ := t.Column(column)
	out := make([]float64, 0, len(cells))
	for _, c := range cells {
		if f, ok := models.ToFloat(c); ok {
			out = append(out, f)
		}
	}
	return out
}

func (s *analyzerService) insights(values []float64, summary models.Statistics, t *models.Table, column string) (models.Insights, error) {
	var in models.Insights

	if summary.Std > 0 {
		shape := (summary.Mean - summary.Median) / summary.Std
		switch {
		case math.Abs(shape) < 0.5:
			in.DistributionShape = models.ShapeSymmetric
		case shape > 0.5:
			in.DistributionShape = models.ShapeRightSkewed
		default:
			in.DistributionShape = models.ShapeLeftSkewed
		}
	}

	out, err := stats.Outliers(values, summary, s.cfg.OutlierMethod, s.cfg.OutlierFactor)
	if err != nil {
		return in, err
	}
	in.OutlierMethod = out.Method
	in.OutlierFactor = out.Factor
	in.OutliersDetected = out.Count
	in.OutlierPercentage = out.Percentage
	in.OutlierBounds = out.Bounds

	if summary.Max-summary.Min > 0 && summary.Mean != 0 {
		rsd := summary.Std / math.Abs(summary.Mean) * 100
		in.RelativeStdPercent = &rsd
		switch {
		case rsd < s.cfg.StableThreshold:
			in.ProcessStability = models.StabilityStable
		case rsd < s.cfg.UnstableThreshold:
			in.ProcessStability = models.StabilityModerate
		default:
			in.ProcessStability = models.StabilityUnstable
		}
	}

	lineCol := s.cfg.ProductionLineColumn
	if t.HasColumn(lineCol) {
		in.LineDistribution = LineDistribution(t, lineCol)
		if len(in.LineDistribution) > 1 {
			in.LinePerformance = linePerformance(t, lineCol, column, in.LineDistribution)
		}
	}
	return in, nil
}

// linePerformance summarises column per line, in distribution order.
func linePerformance(t *models.Table, lineCol, column string, lines []models.LineShare) []models.LineStats {
	lineCells, _ := t.Column(lineCol)
	valueCells, _ := t.Column(column)
	byLine := make(map[string][]float64, len(lines))
	for row, l := range lineCells {
		if f, ok := models.ToFloat(valueCells[row]); ok {
			key := models.ToString(l)
			byLine[key] = append(byLine[key], f)
		}
	}

	out := make([]models.LineStats, 0, len(lines))
	for _, share := range lines {
		vals := byLine[share.Line]
		if len(vals) == 0 {
			continue
		}
		mean, std := stats.MeanStd(vals)
		out = append(out, models.LineStats{Line: share.Line, Count: len(vals), Mean: mean, Std: std})
	}
	return out
}
