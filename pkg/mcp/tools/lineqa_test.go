package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/services"
	sqlb "github.com/ekaya-inc/ekaya-lineqa/pkg/sql"
)

func TestListSourcesTool(t *testing.T) {
	f := newToolFixture(t)
	f.sources.infos = []models.SourceInfo{
		{Name: "line_a", Type: "postgres", Location: "db-a:5432/prod", Table: "measurements", Credentials: models.CredentialsOK},
	}

	out := textJSON(t, callTool(t, f.server, "list_sources", nil))
	assert.Equal(t, float64(1), out["count"])
	first := out["sources"].([]any)[0].(map[string]any)
	assert.Equal(t, "db-a:5432/prod", first["location"])
}

func TestCombineLinesTool(t *testing.T) {
	f := newToolFixture(t)
	f.combiner.result = &services.CombineResult{
		Metadata: &models.DatasetMetadata{Name: "run_1", FinalCount: 5, DuplicatesRemoved: 2},
		Sources:  []models.SourceStatus{{Source: "line_a", Status: models.SourceOK, Rows: 5}},
	}

	out := textJSON(t, callTool(t, f.server, "combine_lines", map[string]any{
		"name":           "run_1",
		"sources":        []any{"line_a", " line_b "},
		"filters":        []any{"Weight > 10"},
		"limit":          50,
		"merge_strategy": "first_occurrence",
	}))

	assert.Equal(t, "run_1", f.combiner.req.Name)
	assert.Equal(t, []string{"line_a", "line_b"}, f.combiner.req.Sources)
	assert.Equal(t, []string{"Weight > 10"}, f.combiner.req.Filters)
	require.NotNil(t, f.combiner.req.Limit)
	assert.Equal(t, 50, *f.combiner.req.Limit)
	assert.Equal(t, models.StrategyFirstOccurrence, f.combiner.req.Strategy)

	dataset := out["dataset"].(map[string]any)
	assert.Equal(t, float64(2), dataset["duplicates_removed"])
}

func TestCombineLinesTool_FilterExamplesParse(t *testing.T) {
	f := newToolFixture(t)
	msg := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	raw, err := json.Marshal(f.server.HandleMessage(context.Background(), msg))
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				InputSchema struct {
					Properties map[string]struct {
						Description string `json:"description"`
					} `json:"properties"`
				} `json:"inputSchema"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))

	var desc string
	for _, tool := range resp.Result.Tools {
		if tool.Name == "combine_lines" {
			desc = tool.InputSchema.Properties["filters"].Description
		}
	}
	require.NotEmpty(t, desc)

	examples := regexp.MustCompile(`"([^"]+)"`).FindAllStringSubmatch(desc, -1)
	require.NotEmpty(t, examples)
	for _, ex := range examples {
		filter, err := sqlb.ParseFilter(ex[1])
		require.NoError(t, err, ex[1])
		assert.False(t, strings.ContainsAny(filter.Value, `'"`), "value %q is bound literally", filter.Value)
	}
}

func TestCombineLinesTool_BadParameters(t *testing.T) {
	f := newToolFixture(t)

	resp := callTool(t, f.server, "combine_lines", map[string]any{"sources": []any{1, 2}})
	assert.True(t, resp.Result.IsError)
	assert.Equal(t, "invalid_parameters", textJSON(t, resp)["code"])

	resp = callTool(t, f.server, "combine_lines", map[string]any{"limit": 2.5})
	assert.True(t, resp.Result.IsError)
	assert.Equal(t, "invalid_limit", textJSON(t, resp)["code"])
}

func TestCombineLinesTool_NoDataIsToolError(t *testing.T) {
	f := newToolFixture(t)
	f.combiner.err = fmt.Errorf("%w: tried line_a, line_b", apperrors.ErrNoDataFetched)

	resp := callTool(t, f.server, "combine_lines", nil)
	assert.True(t, resp.Result.IsError)
	out := textJSON(t, resp)
	assert.Equal(t, "no_data_fetched", out["code"])
	assert.Contains(t, out["message"], "line_b")
}

func TestCombineLinesTool_SystemFailureIsProtocolError(t *testing.T) {
	f := newToolFixture(t)
	f.combiner.err = errors.New("disk full")

	resp := callTool(t, f.server, "combine_lines", nil)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "disk full")
}

func TestAnalyzeColumnTool(t *testing.T) {
	f := newToolFixture(t)
	f.analyzer.report = &models.QualityReport{Column: "Weight", AnalyzedRecords: 5}

	out := textJSON(t, callTool(t, f.server, "analyze_column", map[string]any{
		"column":   "Weight",
		"usl":      12.5,
		"lsl":      9,
		"date_to":  "2024-03-02",
		"dataset":  "",
		"ignored":  true,
		"date_col": "x",
	}))

	assert.Equal(t, "combined_production_data", f.analyzer.dataset)
	require.NotNil(t, f.analyzer.req.USL)
	require.NotNil(t, f.analyzer.req.LSL)
	assert.Equal(t, 12.5, *f.analyzer.req.USL)
	assert.Equal(t, 9.0, *f.analyzer.req.LSL)
	assert.Equal(t, "2024-03-02", f.analyzer.req.DateTo)
	assert.Equal(t, "Weight", out["column_analyzed"])
}

func TestAnalyzeColumnTool_Errors(t *testing.T) {
	f := newToolFixture(t)

	resp := callTool(t, f.server, "analyze_column", map[string]any{"column": "  "})
	assert.True(t, resp.Result.IsError)

	f.analyzer.err = fmt.Errorf("dataset other: %w", apperrors.ErrNotFound)
	resp = callTool(t, f.server, "analyze_column", map[string]any{"column": "Weight", "dataset": "other"})
	assert.True(t, resp.Result.IsError)
	assert.Equal(t, "not_found", textJSON(t, resp)["code"])
	assert.Equal(t, "other", f.analyzer.dataset)
}

func TestListDatasetsTool(t *testing.T) {
	f := newToolFixture(t)

	out := textJSON(t, callTool(t, f.server, "list_datasets", nil))
	assert.Equal(t, float64(0), out["count"])
	assert.Equal(t, []any{}, out["datasets"])

	f.datasets.list = []*models.DatasetMetadata{{Name: "b"}, {Name: "a"}}
	out = textJSON(t, callTool(t, f.server, "list_datasets", nil))
	assert.Equal(t, float64(2), out["count"])
}

func TestSearchProductsTool(t *testing.T) {
	f := newToolFixture(t)
	f.products.search = &services.SearchResult{
		ProductsFound: 2,
		Products:      []models.ProductMatch{{ProductName: "Widget-A", TotalCount: 3}},
	}

	out := textJSON(t, callTool(t, f.server, "search_products", map[string]any{"search_pattern": "widget", "limit": 1}))
	assert.Equal(t, "widget", f.products.req.Pattern)
	assert.Equal(t, 1, f.products.req.Limit)
	assert.Equal(t, float64(2), out["products_found"])

	resp := callTool(t, f.server, "search_products", map[string]any{"limit": 0})
	assert.True(t, resp.Result.IsError)
}

func TestIsUserError(t *testing.T) {
	assert.True(t, IsUserError(apperrors.Invalid(apperrors.ErrInvalidFilter, "x", "bad")))
	assert.True(t, IsUserError(apperrors.ErrNoSourcesConfigured))
	assert.False(t, IsUserError(fmt.Errorf("line_a: %w", apperrors.ErrSourceUnavailable)))
	assert.False(t, IsUserError(nil))
}
