package services

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/database"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/metrics"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/repositories"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/sources"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/storage"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/testhelpers"
)

type combinerFixture struct {
	svc     CombinerService
	store   *storage.ParquetStore
	repo    repositories.DatasetRepository
	metrics *recordingMetrics
}

func newCombinerFixture(t *testing.T, r sources.Resolver) *combinerFixture {
	t.Helper()
	logger := testLogger(t)

	store, err := storage.NewParquetStore(t.TempDir(), logger)
	require.NoError(t, err)
	db, err := database.Open(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := repositories.NewDatasetRepository(db.DB)

	m := newRecordingMetrics()
	svc := NewCombinerService(r, newTestFetcher(t, r, m), store, repo, CombinerDefaults{
		Name:                 "combined_production_data",
		UniqueIdentifier:     "TraceCode",
		TimestampColumn:      "timestamp",
		ProductionLineColumn: "production_line",
		Strategy:             models.StrategyLatestWins,
	}, m, logger)
	return &combinerFixture{svc: svc, store: store, repo: repo, metrics: m}
}

// overlappingLines gives line_a TC-1..TC-5 and line_b a later re-test of TC-4 and TC-5.
func overlappingLines(t *testing.T) *fakeResolver {
	t.Helper()
	later := testhelpers.SampleMeasurements("b")[3:]
	for i := range later {
		later[i].Timestamp = later[i].Timestamp.Add(10 * time.Hour)
	}
	return newFakeResolver(map[string]*fakeSource{
		"line_a": {rows: measurementTable(t, testhelpers.SampleMeasurements("a"))},
		"line_b": {rows: measurementTable(t, later)},
	})
}

func columnStrings(t *testing.T, table *models.Table, col string) []string {
	t.Helper()
	values, ok := table.Column(col)
	require.True(t, ok, col)
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = models.ToString(v)
	}
	return out
}

func TestCombine_LatestWinsAcrossLines(t *testing.T) {
	f := newCombinerFixture(t, overlappingLines(t))

	res, err := f.svc.Combine(context.Background(), CombineRequest{})
	require.NoError(t, err)

	meta := res.Metadata
	assert.Equal(t, "combined_production_data", meta.Name)
	assert.Equal(t, 7, meta.InitialCount)
	assert.Equal(t, 5, meta.FinalCount)
	assert.Equal(t, 2, meta.DuplicatesRemoved)
	assert.Equal(t, models.StrategyLatestWins, meta.Dedup.Strategy)
	require.NotNil(t, meta.Dedup.TimestampColumn)
	assert.Equal(t, "timestamp", *meta.Dedup.TimestampColumn)
	assert.Equal(t, []string{"line_a", "line_b"}, meta.Lines)

	assert.Equal(t, []string{"TC-1", "TC-2", "TC-3", "TC-4", "TC-5"}, columnStrings(t, res.Table, "TraceCode"))
	assert.Equal(t, []string{"line_a", "line_a", "line_a", "line_b", "line_b"}, columnStrings(t, res.Table, "production_line"))

	assert.Equal(t, []models.LineShare{
		{Line: "line_a", Count: 3, Percentage: 60},
		{Line: "line_b", Count: 2, Percentage: 40},
	}, meta.LineDistribution)

	assert.Equal(t, float64(7), f.metrics.counter(metrics.CombineRowsTotal, metrics.Labels{"stage": "initial"}))
	assert.Equal(t, float64(2), f.metrics.counter(metrics.CombineRowsTotal, metrics.Labels{"stage": "duplicates_removed"}))
	assert.Equal(t, float64(1), f.metrics.counter(metrics.CombineRunsTotal, metrics.Labels{"status": "ok"}))
}

func TestCombine_PersistsTableAndMetadata(t *testing.T) {
	f := newCombinerFixture(t, overlappingLines(t))
	ctx := context.Background()

	res, err := f.svc.Combine(ctx, CombineRequest{Name: "march"})
	require.NoError(t, err)
	assert.Equal(t, f.store.Path("march"), res.Metadata.Path)

	stored, err := f.repo.Get(ctx, "march")
	require.NoError(t, err)
	assert.Equal(t, res.Metadata.ID, stored.ID)
	assert.Equal(t, res.Metadata.LineDistribution, stored.LineDistribution)

	runs, err := f.repo.FetchRuns(ctx, "march")
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	loaded, err := f.store.Load(ctx, "march")
	require.NoError(t, err)
	assert.Equal(t, res.Table.Len(), loaded.Len())
	assert.ElementsMatch(t, res.Table.Columns(), loaded.Columns())
}

func TestCombine_FallsBackWithoutTimestampColumn(t *testing.T) {
	f := newCombinerFixture(t, overlappingLines(t))

	res, err := f.svc.Combine(context.Background(), CombineRequest{TimestampColumn: "measured_at"})
	require.NoError(t, err)

	assert.Equal(t, models.StrategyLatestWins, res.Metadata.Dedup.RequestedStrategy)
	assert.Equal(t, models.StrategyFirstOccurrence, res.Metadata.Dedup.Strategy)
	assert.Nil(t, res.Metadata.Dedup.TimestampColumn)
	// line_a is requested first, so its copies of TC-4 and TC-5 survive.
	assert.Equal(t, []string{"line_a", "line_a", "line_a", "line_a", "line_a"}, columnStrings(t, res.Table, "production_line"))
}

func TestCombine_FirstOccurrenceIsRepeatable(t *testing.T) {
	f := newCombinerFixture(t, overlappingLines(t))
	ctx := context.Background()
	req := CombineRequest{Strategy: models.StrategyFirstOccurrence}

	first, err := f.svc.Combine(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Combine(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Table.Records(), second.Table.Records())
	assert.NotEqual(t, first.Metadata.ID, second.Metadata.ID)
}

func TestCombine_SkipsSourceWithoutIdentifier(t *testing.T) {
	noID := models.NewTable([]string{"RefName", "Weight"})
	require.NoError(t, noID.AppendRow([]any{"Widget-A", 1.0}))

	r := newFakeResolver(map[string]*fakeSource{
		"line_a": {rows: measurementTable(t, testhelpers.SampleMeasurements("a"))},
		"line_b": {rows: noID},
	})
	f := newCombinerFixture(t, r)

	res, err := f.svc.Combine(context.Background(), CombineRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"line_a"}, res.Metadata.Lines)
	assert.Equal(t, 5, res.Metadata.FinalCount)

	byName := map[string]models.SourceStatus{}
	for _, st := range res.Sources {
		byName[st.Source] = st
	}
	assert.Equal(t, models.SourceOK, byName["line_a"].Status)
	assert.Equal(t, models.SourceSkipped, byName["line_b"].Status)
	assert.Contains(t, byName["line_b"].Error, "schema mismatch")
}

func TestCombine_NoDataFetched(t *testing.T) {
	r := newFakeResolver(map[string]*fakeSource{
		"line_a": {resolveErr: errBoom},
		"line_b": {},
	})
	f := newCombinerFixture(t, r)

	_, err := f.svc.Combine(context.Background(), CombineRequest{})
	require.ErrorIs(t, err, apperrors.ErrNoDataFetched)
	assert.Equal(t, float64(1), f.metrics.counter(metrics.CombineRunsTotal, metrics.Labels{"status": "no_data"}))

	_, err = f.repo.Get(context.Background(), "combined_production_data")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCombine_NoSourcesConfigured(t *testing.T) {
	f := newCombinerFixture(t, newFakeResolver(map[string]*fakeSource{}))

	_, err := f.svc.Combine(context.Background(), CombineRequest{})
	assert.ErrorIs(t, err, apperrors.ErrNoSourcesConfigured)
}

func TestCombine_RejectsBadInput(t *testing.T) {
	f := newCombinerFixture(t, overlappingLines(t))
	ctx := context.Background()

	_, err := f.svc.Combine(ctx, CombineRequest{Strategy: "random"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidStrategy)
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.Combine(ctx, CombineRequest{Name: "../escape"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidIdentifier)

	_, err = f.svc.Combine(ctx, CombineRequest{Filters: []string{"Status"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidFilter)
}

func TestCombine_SQLiteLinesEndToEnd(t *testing.T) {
	retest := testhelpers.SampleMeasurements("b")[:2]
	for i := range retest {
		retest[i].Timestamp = retest[i].Timestamp.Add(24 * time.Hour)
		retest[i].Weight += 100
	}
	reg := newSQLiteRegistry(t, map[string][]testhelpers.Measurement{
		"line_a": testhelpers.SampleMeasurements("a"),
		"line_b": retest,
	})
	f := newCombinerFixture(t, reg)

	res, err := f.svc.Combine(context.Background(), CombineRequest{})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Metadata.InitialCount)
	assert.Equal(t, 5, res.Metadata.FinalCount)

	ids := columnStrings(t, res.Table, "TraceCode")
	sort.Strings(ids)
	assert.Equal(t, []string{"TC-1", "TC-2", "TC-3", "TC-4", "TC-5"}, ids)

	for row := 0; row < res.Table.Len(); row++ {
		id, _ := res.Table.Value(row, "TraceCode")
		line, _ := res.Table.Value(row, "production_line")
		if id == "TC-1" || id == "TC-2" {
			assert.Equal(t, "line_b", line, "re-tested parts come from the later line")
		} else {
			assert.Equal(t, "line_a", line)
		}
	}
}
