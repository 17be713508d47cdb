package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/testhelpers"
)

func newTestProducts(t *testing.T, r *fakeResolver) ProductService {
	t.Helper()
	return NewProductService(newTestFetcher(t, r, nil), ProductColumns{}, testLogger(t))
}

func productLines(t *testing.T) *fakeResolver {
	t.Helper()
	gadgets := testhelpers.SampleMeasurements("b")[:2]
	for i := range gadgets {
		gadgets[i].RefName = "Gadget-X"
	}
	noProduct := models.NewTable([]string{"TraceCode"})
	require.NoError(t, noProduct.AppendRow([]any{"TC-9"}))

	return newFakeResolver(map[string]*fakeSource{
		"line_a": {rows: measurementTable(t, testhelpers.SampleMeasurements("a"))},
		"line_b": {rows: measurementTable(t, append(gadgets, testhelpers.SampleMeasurements("b")[2:]...))},
		"line_c": {rows: noProduct},
		"line_d": {resolveErr: errBoom},
	})
}

func TestProductSearch_AllProducts(t *testing.T) {
	svc := newTestProducts(t, productLines(t))

	res, err := svc.Search(context.Background(), SearchRequest{Pattern: "*"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ProductsFound)
	assert.Equal(t, []models.ProductMatch{
		{ProductName: "Widget-A", TotalCount: 5, ProductionLines: 2, Lines: []string{"line_a", "line_b"}},
		{ProductName: "Widget-B", TotalCount: 3, ProductionLines: 2, Lines: []string{"line_a", "line_b"}},
		{ProductName: "Gadget-X", TotalCount: 2, ProductionLines: 1, Lines: []string{"line_b"}},
	}, res.Products)

	byName := map[string]string{}
	for _, st := range res.Sources {
		byName[st.Source] = st.Status
	}
	assert.Equal(t, models.SourceSkipped, byName["line_c"])
	assert.Equal(t, models.SourceFailed, byName["line_d"])
}

func TestProductSearch_PatternAndLimit(t *testing.T) {
	svc := newTestProducts(t, productLines(t))

	res, err := svc.Search(context.Background(), SearchRequest{Pattern: "widget", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ProductsFound)
	require.Len(t, res.Products, 1)
	assert.Equal(t, "Widget-A", res.Products[0].ProductName)
}

func TestProductExtract_MatchesAcrossLines(t *testing.T) {
	svc := newTestProducts(t, productLines(t))

	res, err := svc.Extract(context.Background(), ExtractRequest{ProductName: "widget-a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"line_a", "line_b"}, res.Lines)
	assert.Equal(t, 5, res.Table.Len())
	assert.True(t, res.Table.HasColumn("production_line"))
	assert.Empty(t, res.MissingColumns)
}

func TestProductExtract_ProjectsColumns(t *testing.T) {
	svc := newTestProducts(t, productLines(t))

	res, err := svc.Extract(context.Background(), ExtractRequest{
		ProductName: "Widget-A",
		Columns:     []string{"Weight", "Height"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"RefName", "TraceCode", "timestamp", "production_line", "Weight"}, res.Table.Columns())
	assert.Equal(t, []string{"Height"}, res.MissingColumns)
}

func TestProductExtract_DateRange(t *testing.T) {
	svc := newTestProducts(t, productLines(t))

	res, err := svc.Extract(context.Background(), ExtractRequest{
		ProductName: "Widget",
		DateFrom:    "2024-03-01T10:00:00Z",
	})
	require.NoError(t, err)
	// TC-3..TC-5 on both lines.
	assert.Equal(t, 6, res.Table.Len())

	_, err = svc.Extract(context.Background(), ExtractRequest{ProductName: "Widget", DateTo: "not a date"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidFilter)
}

func TestProductExtract_Errors(t *testing.T) {
	svc := newTestProducts(t, productLines(t))
	ctx := context.Background()

	_, err := svc.Extract(ctx, ExtractRequest{})
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Extract(ctx, ExtractRequest{ProductName: "Sprocket"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
