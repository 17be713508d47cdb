package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/audit"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/logging"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/metrics"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/sources"
	sqlb "github.com/ekaya-inc/ekaya-lineqa/pkg/sql"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/workerpool"
)

// DefaultSourceTimeout bounds one source's resolve and query.
const DefaultSourceTimeout = 60 * time.Second

// FetchRequest selects rows from every source. A nil Limit selects all rows.
type FetchRequest struct {
	Filters     []string
	Limit       *int
	OrderColumn string
}

// SourceResult is the outcome of fetching one source. Exactly one of Table
// and Err is set.
type SourceResult struct {
	Source   string
	Table    *models.Table
	Err      error
	Duration time.Duration
}

// FetchResult is the merged fetch: tagged rows from every source that
// returned data, plus the per-source outcomes in completion order.
type FetchResult struct {
	Table   *models.Table
	Results []SourceResult
}

// Statuses summarises each source's outcome.
func (r *FetchResult) Statuses() []models.SourceStatus {
	out := make([]models.SourceStatus, 0, len(r.Results))
	for _, res := range r.Results {
		st := models.SourceStatus{Source: res.Source, Duration: res.Duration}
		switch {
		case res.Err != nil:
			st.Status = models.SourceFailed
			st.Error = res.Err.Error()
		case res.Table.Empty():
			st.Status = models.SourceEmpty
		default:
			st.Status = models.SourceOK
			st.Rows = res.Table.Len()
		}
		out = append(out, st)
	}
	return out
}

// Failed returns the sources that produced an error.
func (r *FetchResult) Failed() []SourceResult {
	var out []SourceResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Succeeded returns the sources that returned at least one row.
func (r *FetchResult) Succeeded() []SourceResult {
	var out []SourceResult
	for _, res := range r.Results {
		if res.Err == nil && !res.Table.Empty() {
			out = append(out, res)
		}
	}
	return out
}

// Fetcher queries many sources concurrently.
type Fetcher interface {
	// FetchAll runs the request against the named sources, or against every
	// configured source when names is empty. Per-source failures are
	// reported in the result and never fail the call. Input errors that do
	// not depend on a source are returned before any I/O.
	FetchAll(ctx context.Context, names []string, req FetchRequest) (*FetchResult, error)
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	SourceTimeout time.Duration
	// TagColumn receives the source name on every fetched row.
	TagColumn string
	// Auditor records rejected filters. nil disables security events.
	Auditor *audit.SecurityAuditor
}

type fetcher struct {
	resolver sources.Resolver
	pool     *workerpool.Pool
	cfg      FetcherConfig
	metrics  metrics.Backend
	logger   *zap.Logger
}

// NewFetcher creates a Fetcher. A nil metrics backend records nothing.
func NewFetcher(resolver sources.Resolver, pool *workerpool.Pool, cfg FetcherConfig, m metrics.Backend, logger *zap.Logger) Fetcher {
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = DefaultSourceTimeout
	}
	if cfg.TagColumn == "" {
		cfg.TagColumn = "source_id"
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &fetcher{
		resolver: resolver,
		pool:     pool,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.Named("fetcher"),
	}
}

func (f *fetcher) FetchAll(ctx context.Context, names []string, req FetchRequest) (*FetchResult, error) {
	// The table name is per source; everything else is checked once here.
	if _, err := sqlb.BuildQuery(sources.DefaultTable, req.Filters, req.Limit, req.OrderColumn); err != nil {
		f.auditRejected(ctx, names, err)
		return nil, err
	}
	if len(names) == 0 {
		names = f.resolver.Names()
	}

	items := make([]workerpool.WorkItem[*models.Table], 0, len(names))
	for _, name := range names {
		items = append(items, workerpool.WorkItem[*models.Table]{
			ID: name,
			Execute: func(ctx context.Context) (*models.Table, error) {
				return f.fetchOne(ctx, name, req)
			},
		})
	}

	f.logger.Info("Fetching sources",
		zap.Int("sources", len(items)),
		zap.Int("filters", len(req.Filters)),
		zap.Int("workers", f.pool.Size()),
	)

	results := workerpool.Process(ctx, f.pool, items, nil)

	out := &FetchResult{Results: make([]SourceResult, 0, len(results))}
	tables := make([]*models.Table, 0, len(results))
	for _, r := range results {
		res := SourceResult{Source: r.ID, Table: r.Result, Err: r.Err, Duration: r.Duration}
		if res.Err != nil {
			res.Table = nil
			var srcErr *apperrors.SourceError
			if !errors.As(res.Err, &srcErr) {
				res.Err = apperrors.NewSourceError(r.ID, apperrors.ErrSourceUnavailable, res.Err)
			}
		}
		f.record(res)
		out.Results = append(out.Results, res)
		if res.Err == nil && !res.Table.Empty() {
			tables = append(tables, res.Table)
		}
	}

	if len(tables) == 0 {
		out.Table = models.NewTable(nil)
	} else {
		out.Table = models.Concat(tables...)
	}

	f.logger.Info("Fetch complete",
		zap.Int("rows", out.Table.Len()),
		zap.Int("succeeded", len(out.Succeeded())),
		zap.Int("failed", len(out.Failed())),
	)
	return out, nil
}

func (f *fetcher) fetchOne(ctx context.Context, name string, req FetchRequest) (*models.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.SourceTimeout)
	defer cancel()

	tableName, err := f.resolver.TableNameFor(name)
	if err != nil {
		return nil, apperrors.NewSourceError(name, apperrors.ErrSourceUnavailable, err)
	}
	q, err := sqlb.BuildQuery(tableName, req.Filters, req.Limit, req.OrderColumn)
	if err != nil {
		return nil, apperrors.NewSourceError(name, apperrors.ErrSourceQueryFailed, err)
	}

	exec, err := f.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, apperrors.NewSourceError(name, apperrors.ErrSourceUnavailable, err)
	}
	defer func() {
		if cerr := exec.Close(); cerr != nil {
			f.logger.Warn("Failed to close source executor", zap.String("source", name), zap.Error(cerr))
		}
	}()

	table, err := exec.Query(ctx, q)
	if err != nil {
		kind := apperrors.ErrSourceQueryFailed
		if errors.Is(err, context.DeadlineExceeded) {
			kind = apperrors.ErrSourceUnavailable
			err = fmt.Errorf("timed out after %s: %w", f.cfg.SourceTimeout, err)
		}
		return nil, apperrors.NewSourceError(name, kind, err)
	}
	if table == nil {
		table = models.NewTable(nil)
	}
	table.SetColumn(f.cfg.TagColumn, name)
	return table, nil
}

func (f *fetcher) record(res SourceResult) {
	status := models.SourceOK
	switch {
	case res.Err != nil:
		status = models.SourceFailed
		f.logger.Warn("Source fetch failed, skipping",
			zap.String("source", res.Source),
			zap.Duration("duration", res.Duration),
			zap.String("error", logging.SanitizeError(res.Err)),
		)
	case res.Table.Empty():
		status = models.SourceEmpty
		f.logger.Info("Source returned no rows", zap.String("source", res.Source))
	default:
		f.logger.Debug("Source fetched",
			zap.String("source", res.Source),
			zap.Int("rows", res.Table.Len()),
			zap.Duration("duration", res.Duration),
		)
		f.metrics.IncCounter(metrics.SourceFetchRows, float64(res.Table.Len()), metrics.Labels{"source": res.Source})
	}
	labels := metrics.Labels{"source": res.Source, "status": status}
	f.metrics.IncCounter(metrics.SourceFetchTotal, 1, labels)
	f.metrics.ObserveHistogram(metrics.SourceFetchDuration, res.Duration.Seconds(), labels)
}

func (f *fetcher) auditRejected(ctx context.Context, names []string, err error) {
	if f.cfg.Auditor == nil {
		return
	}
	var inj *sqlb.InjectionError
	if errors.As(err, &inj) {
		f.cfg.Auditor.LogInjectionAttempt(ctx, names, audit.SQLInjectionDetails{
			ParamName:   inj.Hit.ParamName,
			ParamValue:  fmt.Sprint(inj.Hit.ParamValue),
			Fingerprint: inj.Hit.Fingerprint,
		})
		return
	}
	if errors.Is(err, apperrors.ErrInvalidFilter) {
		f.cfg.Auditor.LogFilterRejected(ctx, names, err.Error())
	}
}
