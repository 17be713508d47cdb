package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/services"
)

type mockSources struct{ infos []models.SourceInfo }

func (m *mockSources) Describe() []models.SourceInfo { return m.infos }

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
	return m.report, m.err
}

func (m *mockAnalyzer) AnalyzeDataset(ctx context.Context, name string, req services.AnalyzeRequest) (*models.QualityReport, error) {
	m.dataset = name
	m.req = req
	return m.report, m.err
}

type mockDatasets struct {
	list []*models.DatasetMetadata
	err  error
}

func (m *mockDatasets) List(ctx context.Context) ([]*models.DatasetMetadata, error) {
	return m.list, m.err
}

func (m *mockDatasets) Get(ctx context.Context, name string) (*services.DatasetDetail, error) {
	return nil, m.err
}

func (m *mockDatasets) Load(ctx context.Context, name string) (*models.Table, error) {
	return nil, m.err
}

func (m *mockDatasets) Delete(ctx context.Context, name string) error {
	return m.err
}

type mockProducts struct {
	search *services.SearchResult
	err    error
	req    services.SearchRequest
}

func (m *mockProducts) Extract(ctx context.Context, req services.ExtractRequest) (*services.ExtractResult, error) {
	return nil, m.err
}

func (m *mockProducts) Search(ctx context.Context, req services.SearchRequest) (*services.SearchResult, error) {
	m.req = req
	return m.search, m.err
}

type toolFixture struct {
	server   *server.MCPServer
	sources  *mockSources
	combiner *mockCombiner
	analyzer *mockAnalyzer
	datasets *mockDatasets
	products *mockProducts
}

func newToolFixture(t *testing.T) *toolFixture {
	t.Helper()
	f := &toolFixture{
		server:   server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true)),
		sources:  &mockSources{},
		combiner: &mockCombiner{},
		analyzer: &mockAnalyzer{},
		datasets: &mockDatasets{},
		products: &mockProducts{},
	}
	RegisterLineQATools(f.server, &Deps{
		Sources:        f.sources,
		Combiner:       f.combiner,
		Analyzer:       f.analyzer,
		Datasets:       f.datasets,
		Products:       f.products,
		DefaultDataset: "combined_production_data",
	})
	return f
}

type toolCallResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// callTool sends a tools/call message and decodes the JSON-RPC response.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) toolCallResponse {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(s.HandleMessage(context.Background(), msg))
	require.NoError(t, err)

	var resp toolCallResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

// textJSON decodes the first text content of a successful response.
func textJSON(t *testing.T, resp toolCallResponse) map[string]any {
	t.Helper()
	require.Nil(t, resp.Error)
	require.NotEmpty(t, resp.Result.Content)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Result.Content[0].Text), &out))
	return out
}
