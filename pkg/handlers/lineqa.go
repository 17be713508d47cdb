package handlers

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/services"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/storage"
)

// DefaultRowPreview caps the rows echoed back by fetch and extract.
const DefaultRowPreview = 100

// SourceLister describes configured sources without credentials.
type SourceLister interface {
	Describe() []models.SourceInfo
}

// LineQAHandler serves the fetch, combine, analyze, dataset and product APIs.
type LineQAHandler struct {
	sources  SourceLister
	fetcher  services.Fetcher
	combiner services.CombinerService
	analyzer services.AnalyzerService
	datasets services.DatasetService
	products services.ProductService
	// defaultDataset is analyzed when a request names no dataset.
	defaultDataset string
	logger         *zap.Logger
}

// NewLineQAHandler creates the API handler.
func NewLineQAHandler(
	sources SourceLister,
	fetcher services.Fetcher,
	combiner services.CombinerService,
	analyzer services.AnalyzerService,
	datasets services.DatasetService,
	products services.ProductService,
	defaultDataset string,
	logger *zap.Logger,
) *LineQAHandler {
	return &LineQAHandler{
		sources:        sources,
		fetcher:        fetcher,
		combiner:       combiner,
		analyzer:       analyzer,
		datasets:       datasets,
		products:       products,
		defaultDataset: defaultDataset,
		logger:         logger.Named("api"),
	}
}

// RegisterRoutes registers the API routes on mux.
func (h *LineQAHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sources", h.ListSources)
	mux.HandleFunc("POST /api/fetch", h.Fetch)
	mux.HandleFunc("POST /api/combine", h.Combine)
	mux.HandleFunc("POST /api/analyze", h.Analyze)
	mux.HandleFunc("GET /api/datasets", h.ListDatasets)
	mux.HandleFunc("GET /api/datasets/{name}", h.GetDataset)
	mux.HandleFunc("DELETE /api/datasets/{name}", h.DeleteDataset)
	mux.HandleFunc("POST /api/products/search", h.SearchProducts)
	mux.HandleFunc("POST /api/products/extract", h.ExtractProducts)
}

// SourceReport is the JSON form of one source's outcome.
type SourceReport struct {
	Source     string `json:"source"`
	Status     string `json:"status"`
	Rows       int    `json:"rows"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func sourceReports(statuses []models.SourceStatus) []SourceReport {
	out := make([]SourceReport, len(statuses))
	for i, st := range statuses {
		out[i] = SourceReport{
			Source:     st.Source,
			Status:     st.Status,
			Rows:       st.Rows,
			Error:      st.Error,
			DurationMS: st.Duration.Milliseconds(),
		}
	}
	return out
}

// ListSources handles GET /api/sources.
func (h *LineQAHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, map[string]any{"sources": h.sources.Describe()}); err != nil {
		h.logger.Error("Failed to encode sources", zap.Error(err))
	}
}

// FetchRequest is the body of POST /api/fetch.
type FetchRequest struct {
	Sources     []string `json:"sources,omitempty"`
	Filters     []string `json:"filters,omitempty"`
	Limit       *int     `json:"limit,omitempty"`
	OrderColumn string   `json:"order_column,omitempty"`
	// All confirms a fetch with neither filters nor limit.
	All     bool `json:"all,omitempty"`
	MaxRows int  `json:"max_rows,omitempty"`
}

// TableResponse is a table preview plus per-source outcomes.
type TableResponse struct {
	TotalRows int              `json:"total_rows"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated"`
	Sources   []SourceReport   `json:"sources,omitempty"`
}

// Fetch handles POST /api/fetch.
func (h *LineQAHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	var req FetchRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if len(req.Filters) == 0 && req.Limit == nil && !req.All {
		WriteError(w, apperrors.Invalid(apperrors.ErrInvalidFilter, "", "set filters, a limit, or all=true to fetch every row"), h.logger)
		return
	}

	res, err := h.fetcher.FetchAll(r.Context(), req.Sources, services.FetchRequest{
		Filters:     req.Filters,
		Limit:       req.Limit,
		OrderColumn: req.OrderColumn,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	resp := tablePreview(res.Table, req.MaxRows)
	resp.Sources = sourceReports(res.Statuses())
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode fetch response", zap.Error(err))
	}
}

// CombineRequest is the body of POST /api/combine.
type CombineRequest struct {
	Name                 string   `json:"name,omitempty"`
	Sources              []string `json:"sources,omitempty"`
	Filters              []string `json:"filters,omitempty"`
	Limit                *int     `json:"limit,omitempty"`
	UniqueIdentifier     string   `json:"unique_identifier,omitempty"`
	TimestampColumn      string   `json:"timestamp_column,omitempty"`
	ProductionLineColumn string   `json:"production_line_column,omitempty"`
	Strategy             string   `json:"merge_strategy,omitempty"`
}

// CombineResponse reports a completed combination run.
type CombineResponse struct {
	Dataset *models.DatasetMetadata `json:"dataset"`
	Sources []SourceReport          `json:"sources"`
}

// Combine handles POST /api/combine.
func (h *LineQAHandler) Combine(w http.ResponseWriter, r *http.Request) {
	var req CombineRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	res, err := h.combiner.Combine(r.Context(), services.CombineRequest{
		Name:                 req.Name,
		Sources:              req.Sources,
		Filters:              req.Filters,
		Limit:                req.Limit,
		UniqueIdentifier:     req.UniqueIdentifier,
		TimestampColumn:      req.TimestampColumn,
		ProductionLineColumn: req.ProductionLineColumn,
		Strategy:             req.Strategy,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	resp := CombineResponse{Dataset: res.Metadata, Sources: sourceReports(res.Sources)}
	if err := WriteJSON(w, http.StatusCreated, resp); err != nil {
		h.logger.Error("Failed to encode combine response", zap.Error(err))
	}
}

// AnalyzeRequest is the body of POST /api/analyze. Dataset defaults to the
// configured combined dataset name when empty.
type AnalyzeRequest struct {
	Dataset string `json:"dataset"`
	services.AnalyzeRequest
}

// Analyze handles POST /api/analyze.
func (h *LineQAHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.Column == "" {
		WriteError(w, apperrors.Invalid(apperrors.ErrInvalidIdentifier, "", "column is required"), h.logger)
		return
	}
	if req.Dataset == "" {
		req.Dataset = h.defaultDataset
	}

	report, err := h.analyzer.AnalyzeDataset(r.Context(), req.Dataset, req.AnalyzeRequest)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to encode analysis report", zap.Error(err))
	}
}

// ListDatasets handles GET /api/datasets.
func (h *LineQAHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	list, err := h.datasets.List(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	if list == nil {
		list = []*models.DatasetMetadata{}
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"datasets": list}); err != nil {
		h.logger.Error("Failed to encode datasets", zap.Error(err))
	}
}

// GetDataset handles GET /api/datasets/{name}.
func (h *LineQAHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	name, ok := datasetName(w, r, h.logger)
	if !ok {
		return
	}
	detail, err := h.datasets.Get(r.Context(), name)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	resp := map[string]any{"dataset": detail.DatasetMetadata, "sources": sourceReports(detail.Sources)}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode dataset", zap.Error(err))
	}
}

// DeleteDataset handles DELETE /api/datasets/{name}.
func (h *LineQAHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	name, ok := datasetName(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.datasets.Delete(r.Context(), name); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchProducts handles POST /api/products/search.
func (h *LineQAHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	var req services.SearchRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	res, err := h.products.Search(r.Context(), req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	resp := map[string]any{
		"products_found": res.ProductsFound,
		"products":       res.Products,
		"sources":        sourceReports(res.Sources),
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode product search", zap.Error(err))
	}
}

// ExtractProducts handles POST /api/products/extract. With ?format=csv the
// matching rows are returned as a CSV attachment.
func (h *LineQAHandler) ExtractProducts(w http.ResponseWriter, r *http.Request) {
	var req services.ExtractRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	res, err := h.products.Extract(r.Context(), req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "product_"+req.ProductName+".csv"))
		if err := storage.WriteCSV(w, res.Table); err != nil {
			h.logger.Error("Failed to write product csv", zap.Error(err))
		}
		return
	}

	preview := tablePreview(res.Table, 0)
	resp := map[string]any{
		"product_name":     req.ProductName,
		"records_found":    res.Table.Len(),
		"production_lines": res.Lines,
		"missing_columns":  res.MissingColumns,
		"columns":          preview.Columns,
		"rows":             preview.Rows,
		"truncated":        preview.Truncated,
		"sources":          sourceReports(res.Sources),
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode product extract", zap.Error(err))
	}
}

func datasetName(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	name := r.PathValue("name")
	if !storage.ValidName(name) {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_identifier", "invalid dataset name"); err != nil {
			logger.Error("Failed to encode error response", zap.Error(err))
		}
		return "", false
	}
	return name, true
}

// tablePreview renders up to max rows as JSON-safe records.
func tablePreview(t *models.Table, max int) TableResponse {
	if max <= 0 {
		max = DefaultRowPreview
	}
	n := t.Len()
	if n > max {
		n = max
	}
	rows := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		rec := t.Record(i)
		for k, v := range rec {
			rec[k] = jsonSafe(v)
		}
		rows[i] = rec
	}
	return TableResponse{
		TotalRows: t.Len(),
		Columns:   t.Columns(),
		Rows:      rows,
		Truncated: t.Len() > n,
	}
}

// jsonSafe replaces values encoding/json rejects.
func jsonSafe(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	return v
}
