package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/metrics"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/repositories"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/sources"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/storage"
)

// CombineRequest describes one combination run. Empty fields take the
// combiner's configured defaults.
type CombineRequest struct {
	Name                 string
	Sources              []string
	Filters              []string
	Limit                *int
	UniqueIdentifier     string
	TimestampColumn      string
	ProductionLineColumn string
	Strategy             string
}

// CombineResult is the canonical table of a run with its metadata.
type CombineResult struct {
	Table    *models.Table
	Metadata *models.DatasetMetadata
	// Sources reports every requested source, including ones skipped for
	// lacking the unique identifier.
	Sources []models.SourceStatus
}

// CombinerService merges every line's measurements into one deduplicated dataset.
type CombinerService interface {
	Combine(ctx context.Context, req CombineRequest) (*CombineResult, error)
}

// CombinerDefaults fills unset CombineRequest fields.
type CombinerDefaults struct {
	Name                 string
	UniqueIdentifier     string
	TimestampColumn      string
	ProductionLineColumn string
	Strategy             string
	OrderColumn          string
}

type combinerService struct {
	resolver sources.Resolver
	fetcher  Fetcher
	store    storage.DatasetStore
	repo     repositories.DatasetRepository
	defaults CombinerDefaults
	metrics  metrics.Backend
	logger   *zap.Logger
	now      func() time.Time
}

// NewCombinerService wires the fetch, dedup and persistence steps. A nil
// metrics backend records nothing.
func NewCombinerService(
	resolver sources.Resolver,
	fetcher Fetcher,
	store storage.DatasetStore,
	repo repositories.DatasetRepository,
	defaults CombinerDefaults,
	m metrics.Backend,
	logger *zap.Logger,
) CombinerService {
	if defaults.Name == "" {
		defaults.Name = "combined_production_data"
	}
	if defaults.UniqueIdentifier == "" {
		defaults.UniqueIdentifier = "TraceCode"
	}
	if defaults.ProductionLineColumn == "" {
		defaults.ProductionLineColumn = "production_line"
	}
	if defaults.Strategy == "" {
		defaults.Strategy = models.StrategyLatestWins
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &combinerService{
		resolver: resolver,
		fetcher:  fetcher,
		store:    store,
		repo:     repo,
		defaults: defaults,
		metrics:  m,
		logger:   logger.Named("combiner"),
		now:      time.Now,
	}
}

func (s *combinerService) withDefaults(req CombineRequest) CombineRequest {
	if req.Name == "" {
		req.Name = s.defaults.Name
	}
	if req.UniqueIdentifier == "" {
		req.UniqueIdentifier = s.defaults.UniqueIdentifier
	}
	if req.TimestampColumn == "" {
		req.TimestampColumn = s.defaults.TimestampColumn
	}
	if req.ProductionLineColumn == "" {
		req.ProductionLineColumn = s.defaults.ProductionLineColumn
	}
	if req.Strategy == "" {
		req.Strategy = s.defaults.Strategy
	}
	return req
}

func (s *combinerService) Combine(ctx context.Context, req CombineRequest) (*CombineResult, error) {
	req = s.withDefaults(req)

	if !ValidStrategy(req.Strategy) {
		return nil, apperrors.Invalid(apperrors.ErrInvalidStrategy, req.Strategy, "must be latest_wins or first_occurrence")
	}
	if !storage.ValidName(req.Name) {
		return nil, apperrors.Invalid(apperrors.ErrInvalidIdentifier, req.Name, "dataset names use letters, digits, '.', '_' and '-'")
	}

	names := req.Sources
	if len(names) == 0 {
		names = s.resolver.Names()
	}
	if len(names) == 0 {
		return nil, apperrors.ErrNoSourcesConfigured
	}

	s.logger.Info("Combining production lines",
		zap.String("dataset", req.Name),
		zap.Strings("sources", names),
		zap.String("strategy", req.Strategy),
	)

	fetched, err := s.fetcher.FetchAll(ctx, names, FetchRequest{Filters: req.Filters, Limit: req.Limit, OrderColumn: s.defaults.OrderColumn})
	if err != nil {
		s.recordRun("rejected")
		return nil, err
	}

	// Lines are combined in request order, not completion order, so that
	// first_occurrence is repeatable.
	rank := make(map[string]int, len(names))
	for i, n := range names {
		if _, ok := rank[n]; !ok {
			rank[n] = i
		}
	}
	sort.SliceStable(fetched.Results, func(a, b int) bool {
		return rank[fetched.Results[a].Source] < rank[fetched.Results[b].Source]
	})

	statuses := fetched.Statuses()
	var (
		tables []*models.Table
		lines  []string
	)
	for i, res := range fetched.Results {
		if res.Err != nil || res.Table.Empty() {
			continue
		}
		if !res.Table.HasColumn(req.UniqueIdentifier) {
			mismatch := &apperrors.ColumnError{
				Kind:      apperrors.ErrSchemaMismatch,
				Column:    req.UniqueIdentifier,
				Available: res.Table.Columns(),
				Detail:    "source " + res.Source + " lacks the unique identifier",
			}
			s.logger.Warn("Skipping source without unique identifier",
				zap.String("source", res.Source),
				zap.String("unique_identifier", req.UniqueIdentifier),
			)
			statuses[i].Status = models.SourceSkipped
			statuses[i].Error = mismatch.Error()
			continue
		}
		t := res.Table.Clone()
		t.SetColumn(req.ProductionLineColumn, res.Source)
		tables = append(tables, t)
		lines = append(lines, res.Source)
	}

	if len(tables) == 0 {
		s.recordRun("no_data")
		return nil, fmt.Errorf("%w: tried %s", apperrors.ErrNoDataFetched, strings.Join(names, ", "))
	}

	combined := models.Concat(tables...)
	initial := combined.Len()

	dedup, err := Deduplicate(combined, req.UniqueIdentifier, req.Strategy, req.TimestampColumn)
	if err != nil {
		s.recordRun("failed")
		return nil, err
	}
	if req.Strategy == models.StrategyLatestWins && dedup.Strategy != req.Strategy {
		s.logger.Warn("Timestamp column missing, falling back to first_occurrence",
			zap.String("timestamp_column", req.TimestampColumn),
		)
	}
	if dups := DuplicateIDs(dedup.Table, req.UniqueIdentifier); len(dups) > 0 {
		s.recordRun("failed")
		return nil, fmt.Errorf("%w: %d ids, first %q", apperrors.ErrDedupInvariantViolation, len(dups), dups[0])
	}

	final := dedup.Table
	meta := &models.DatasetMetadata{
		ID:                uuid.New(),
		Name:              req.Name,
		Lines:             lines,
		InitialCount:      initial,
		FinalCount:        final.Len(),
		DuplicatesRemoved: dedup.Removed,
		Dedup: models.DedupInfo{
			UniqueIdentifier:  req.UniqueIdentifier,
			RequestedStrategy: req.Strategy,
			Strategy:          dedup.Strategy,
			TimestampColumn:   dedup.TimestampColumn,
		},
		LineDistribution: LineDistribution(final, req.ProductionLineColumn),
		Columns:          final.Columns(),
		CreatedAt:        s.now().UTC(),
	}

	path, err := s.store.Save(ctx, req.Name, final)
	if err != nil {
		s.recordRun("failed")
		return nil, fmt.Errorf("failed to store dataset %s: %w", req.Name, err)
	}
	meta.Path = path
	if err := s.repo.Upsert(ctx, meta, statuses); err != nil {
		s.recordRun("failed")
		return nil, fmt.Errorf("failed to register dataset %s: %w", req.Name, err)
	}

	s.recordRun("ok")
	s.metrics.IncCounter(metrics.CombineRowsTotal, float64(initial), metrics.Labels{"stage": "initial"})
	s.metrics.IncCounter(metrics.CombineRowsTotal, float64(meta.FinalCount), metrics.Labels{"stage": "final"})
	s.metrics.IncCounter(metrics.CombineRowsTotal, float64(meta.DuplicatesRemoved), metrics.Labels{"stage": "duplicates_removed"})

	s.logger.Info("Combined dataset stored",
		zap.String("dataset", req.Name),
		zap.String("id", meta.ID.String()),
		zap.Int("initial", initial),
		zap.Int("final", meta.FinalCount),
		zap.Int("duplicates_removed", meta.DuplicatesRemoved),
		zap.String("strategy", dedup.Strategy),
	)

	return &CombineResult{Table: final, Metadata: meta, Sources: statuses}, nil
}

func (s *combinerService) recordRun(status string) {
	s.metrics.IncCounter(metrics.CombineRunsTotal, 1, metrics.Labels{"status": status})
}
