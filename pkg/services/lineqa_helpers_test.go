package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/metrics"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/sources"
	sqlb "github.com/ekaya-inc/ekaya-lineqa/pkg/sql"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/testhelpers"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/workerpool"
)

// fakeSource is one in-memory source served by fakeResolver.
type fakeSource struct {
	table      string
	rows       *models.Table
	resolveErr error
	queryErr   error
	delay      time.Duration
}

// fakeResolver implements sources.Resolver over in-memory tables.
type fakeResolver struct {
	mu      sync.Mutex
	sources map[string]*fakeSource
	queries map[string]*sqlb.Query
}

func newFakeResolver(srcs map[string]*fakeSource) *fakeResolver {
	return &fakeResolver{sources: srcs, queries: make(map[string]*sqlb.Query)}
}

func (r *fakeResolver) Names() []string {
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *fakeResolver) TableNameFor(name string) (string, error) {
	s, ok := r.sources[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnknownSource, name)
	}
	if s.table == "" {
		return sources.DefaultTable, nil
	}
	return s.table, nil
}

func (r *fakeResolver) Resolve(ctx context.Context, name string) (datasource.QueryExecutor, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownSource, name)
	}
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return &fakeExecutor{resolver: r, name: name, src: s}, nil
}

func (r *fakeResolver) query(name string) *sqlb.Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queries[name]
}

type fakeExecutor struct {
	resolver *fakeResolver
	name     string
	src      *fakeSource
}

func (e *fakeExecutor) Query(ctx context.Context, q *sqlb.Query) (*models.Table, error) {
	e.resolver.mu.Lock()
	e.resolver.queries[e.name] = q
	e.resolver.mu.Unlock()

	if e.src.delay > 0 {
		select {
		case <-time.After(e.src.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.src.queryErr != nil {
		return nil, e.src.queryErr
	}
	if e.src.rows == nil {
		return models.NewTable(nil), nil
	}
	return e.src.rows.Clone(), nil
}

func (e *fakeExecutor) Ping(ctx context.Context) error { return nil }
func (e *fakeExecutor) Close() error                   { return nil }

// recordingMetrics counts calls by metric key.
type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]float64
	samples  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: map[string]float64{}, samples: map[string]int{}}
}

func (m *recordingMetrics) IncCounter(name string, delta float64, labels metrics.Labels) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metrics.Key(name, labels)] += delta
}

func (m *recordingMetrics) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[metrics.Key(name, labels)]++
}

func (m *recordingMetrics) Flush() error { return nil }
func (m *recordingMetrics) Close() error { return nil }

func (m *recordingMetrics) counter(name string, labels metrics.Labels) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[metrics.Key(name, labels)]
}

// measurementTable builds a source table in the shape of the fixtures.
func measurementTable(t *testing.T, rows []testhelpers.Measurement) *models.Table {
	t.Helper()
	table := models.NewTable([]string{"TraceCode", "RefName", "Weight", "Status", "timestamp"})
	for _, m := range rows {
		if err := table.AppendRow([]any{m.TraceCode, m.RefName, m.Weight, m.Status, m.Timestamp}); err != nil {
			t.Fatalf("append row: %v", err)
		}
	}
	return table
}

func newTestFetcher(t *testing.T, r sources.Resolver, m metrics.Backend) Fetcher {
	t.Helper()
	logger := zaptest.NewLogger(t)
	pool := workerpool.New(workerpool.Config{MaxConcurrent: 4}, logger)
	return NewFetcher(r, pool, FetcherConfig{SourceTimeout: 2 * time.Second, TagColumn: "source_id"}, m, logger)
}

// newSQLiteRegistry writes each line's rows to its own SQLite file and
// returns a registry over them.
func newSQLiteRegistry(t *testing.T, lines map[string][]testhelpers.Measurement) *sources.Registry {
	t.Helper()
	cfgs := make(map[string]sources.SourceConfig, len(lines))
	for name, rows := range lines {
		cfgs[name] = sources.SourceConfig{Type: "sqlite", Path: testhelpers.NewSQLiteSource(t, name, rows)}
	}
	return sources.NewRegistry(cfgs, sources.NewEnvFileCredentials(nil, nil), datasource.NewExecutorFactory(nil), zaptest.NewLogger(t))
}

var errBoom = errors.New("boom")

func testLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

func testPool(logger *zap.Logger) *workerpool.Pool {
	return workerpool.New(workerpool.Config{MaxConcurrent: 4}, logger)
}
