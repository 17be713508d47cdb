package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/services"
)

type mockSources struct {
	infos []models.SourceInfo
}

func (m *mockSources) Describe() []models.SourceInfo { return m.infos }

type mockFetcher struct {
	result *services.FetchResult
	err    error
	names  []string
	req    services.FetchRequest
	calls  int
}

func (m *mockFetcher) FetchAll(ctx context.Context, names []string, req services.FetchRequest) (*services.FetchResult, error) {
	m.calls++
	m.names = names
	m.req = req
	return m.result, m.err
}

type mockCombiner struct {
	result *services.CombineResult
	err    error
	req    services.CombineRequest
}

func (m *mockCombiner) Combine(ctx context.Context, req services.CombineRequest) (*services.CombineResult, error) {
	m.req = req
	return m.result, m.err
}

type mockAnalyzer struct {
	report  *models.QualityReport
	err     error
	dataset string
	req     services.AnalyzeRequest
}

func (m *mockAnalyzer) Analyze(table *models.Table, req services.AnalyzeRequest) (*models.QualityReport, error) {
	m.req = req
	return m.report, m.err
}

func (m *mockAnalyzer) AnalyzeDataset(ctx context.Context, name string, req services.AnalyzeRequest) (*models.QualityReport, error) {
	m.dataset = name
	m.req = req
	return m.report, m.err
}

type mockDatasets struct {
	list    []*models.DatasetMetadata
	detail  *services.DatasetDetail
	err     error
	deleted string
}

func (m *mockDatasets) List(ctx context.Context) ([]*models.DatasetMetadata, error) {
	return m.list, m.err
}

func (m *mockDatasets) Get(ctx context.Context, name string) (*services.DatasetDetail, error) {
	return m.detail, m.err
}

func (m *mockDatasets) Load(ctx context.Context, name string) (*models.Table, error) {
	return nil, m.err
}

func (m *mockDatasets) Delete(ctx context.Context, name string) error {
	m.deleted = name
	return m.err
}

type mockProducts struct {
	extract   *services.ExtractResult
	search    *services.SearchResult
	err       error
	searchReq services.SearchRequest
}

func (m *mockProducts) Extract(ctx context.Context, req services.ExtractRequest) (*services.ExtractResult, error) {
	return m.extract, m.err
}

func (m *mockProducts) Search(ctx context.Context, req services.SearchRequest) (*services.SearchResult, error) {
	m.searchReq = req
	return m.search, m.err
}

func testMetadata(name string) *models.DatasetMetadata {
	return &models.DatasetMetadata{
		ID:           uuid.New(),
		Name:         name,
		Lines:        []string{"line_a", "line_b"},
		InitialCount: 7,
		FinalCount:   5,
		Columns:      []string{"TraceCode", "Weight", "production_line"},
	}
}
