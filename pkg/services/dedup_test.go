package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

func dedupTable(t *testing.T, rows ...[]any) *models.Table {
	t.Helper()
	table, err := models.NewTableFromRows([]string{"TraceCode", "timestamp", "production_line"}, rows)
	require.NoError(t, err)
	return table
}

func lineOf(t *testing.T, table *models.Table, row int) any {
	v, ok := table.Value(row, "production_line")
	require.True(t, ok)
	return v
}

func TestDeduplicate_LatestWinsKeepsNewest(t *testing.T) {
	table := dedupTable(t,
		[]any{"X1", "2024-06-01", "line_b"},
		[]any{"X1", "2024-01-01", "line_a"},
		[]any{"X2", "2024-02-01", "line_a"},
	)

	res, err := Deduplicate(table, "TraceCode", models.StrategyLatestWins, "timestamp")
	require.NoError(t, err)

	assert.Equal(t, models.StrategyLatestWins, res.Strategy)
	require.NotNil(t, res.TimestampColumn)
	assert.Equal(t, "timestamp", *res.TimestampColumn)
	assert.Equal(t, 1, res.Removed)
	require.Equal(t, 2, res.Table.Len())

	// Output follows timestamp order.
	id, _ := res.Table.Value(0, "TraceCode")
	assert.Equal(t, "X2", id)
	id, _ = res.Table.Value(1, "TraceCode")
	assert.Equal(t, "X1", id)
	assert.Equal(t, "line_b", lineOf(t, res.Table, 1))
}

func TestDeduplicate_LatestWinsTiesKeepLaterArrival(t *testing.T) {
	table := dedupTable(t,
		[]any{"X1", "2024-01-01", "line_a"},
		[]any{"X1", "2024-01-01", "line_b"},
	)

	res, err := Deduplicate(table, "TraceCode", models.StrategyLatestWins, "timestamp")
	require.NoError(t, err)
	require.Equal(t, 1, res.Table.Len())
	assert.Equal(t, "line_b", lineOf(t, res.Table, 0))
}

func TestDeduplicate_MissingTimestampsSortFirst(t *testing.T) {
	table := dedupTable(t,
		[]any{"X1", "2024-01-01", "line_a"},
		[]any{"X1", nil, "line_b"},
		[]any{"X1", "not a date", "line_c"},
	)

	res, err := Deduplicate(table, "TraceCode", models.StrategyLatestWins, "timestamp")
	require.NoError(t, err)
	require.Equal(t, 1, res.Table.Len())
	assert.Equal(t, "line_a", lineOf(t, res.Table, 0))
}

func TestDeduplicate_FirstOccurrence(t *testing.T) {
	table := dedupTable(t,
		[]any{"X1", "2024-06-01", "line_a"},
		[]any{"X1", "2024-01-01", "line_b"},
		[]any{int64(7), nil, "line_a"},
		[]any{"7", nil, "line_b"},
	)

	res, err := Deduplicate(table, "TraceCode", models.StrategyFirstOccurrence, "timestamp")
	require.NoError(t, err)

	assert.Equal(t, models.StrategyFirstOccurrence, res.Strategy)
	assert.Nil(t, res.TimestampColumn)
	assert.Equal(t, 2, res.Removed)
	require.Equal(t, 2, res.Table.Len())
	assert.Equal(t, "line_a", lineOf(t, res.Table, 0))
	assert.Equal(t, "line_a", lineOf(t, res.Table, 1))
}

func TestDeduplicate_LatestWinsFallsBackWithoutTimestamp(t *testing.T) {
	table, err := models.NewTableFromRows([]string{"TraceCode", "production_line"}, [][]any{
		{"X1", "line_a"},
		{"X1", "line_b"},
	})
	require.NoError(t, err)

	res, err := Deduplicate(table, "TraceCode", models.StrategyLatestWins, "timestamp")
	require.NoError(t, err)
	assert.Equal(t, models.StrategyFirstOccurrence, res.Strategy)
	assert.Nil(t, res.TimestampColumn)
	assert.Equal(t, "line_a", lineOf(t, res.Table, 0))
}

func TestDeduplicate_MissingIDsFormOneGroup(t *testing.T) {
	table := dedupTable(t,
		[]any{nil, nil, "line_a"},
		[]any{"", nil, "line_b"},
		[]any{"X1", nil, "line_a"},
	)

	res, err := Deduplicate(table, "TraceCode", models.StrategyFirstOccurrence, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Table.Len())
	assert.Empty(t, DuplicateIDs(res.Table, "TraceCode"))
}

func TestDeduplicate_Errors(t *testing.T) {
	table := dedupTable(t, []any{"X1", nil, "line_a"})

	_, err := Deduplicate(table, "TraceCode", "newest", "timestamp")
	assert.ErrorIs(t, err, apperrors.ErrInvalidStrategy)

	_, err = Deduplicate(table, "Serial", models.StrategyFirstOccurrence, "")
	assert.ErrorIs(t, err, apperrors.ErrColumnNotFound)
}

func TestDuplicateIDs(t *testing.T) {
	table := dedupTable(t,
		[]any{"X1", nil, "a"},
		[]any{"X2", nil, "a"},
		[]any{"X1", nil, "b"},
		[]any{"X1", nil, "c"},
	)
	assert.Equal(t, []string{"X1"}, DuplicateIDs(table, "TraceCode"))
	assert.Nil(t, DuplicateIDs(table, "nope"))
}

func TestLineDistribution(t *testing.T) {
	table := dedupTable(t,
		[]any{"1", nil, "line_b"},
		[]any{"2", nil, "line_a"},
		[]any{"3", nil, "line_c"},
		[]any{"4", nil, "line_c"},
	)

	dist := LineDistribution(table, "production_line")
	assert.Equal(t, []models.LineShare{
		{Line: "line_c", Count: 2, Percentage: 50},
		{Line: "line_a", Count: 1, Percentage: 25},
		{Line: "line_b", Count: 1, Percentage: 25},
	}, dist)
	assert.Nil(t, LineDistribution(table, "missing"))
}
