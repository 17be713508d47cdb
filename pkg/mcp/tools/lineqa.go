package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/services"
)

// Deps holds the services the line quality tools call.
type Deps struct {
	Sources        SourceLister
	Combiner       services.CombinerService
	Analyzer       services.AnalyzerService
	Datasets       services.DatasetService
	Products       services.ProductService
	DefaultDataset string
	Logger         *zap.Logger
}

// RegisterLineQATools adds the source, combine, analyze, dataset and product
// tools to the MCP server.
func RegisterLineQATools(s *server.MCPServer, deps *Deps) {
	registerListSourcesTool(s, deps)
	registerCombineLinesTool(s, deps)
	registerAnalyzeColumnTool(s, deps)
	registerListDatasetsTool(s, deps)
	registerSearchProductsTool(s, deps)
}

func registerListSourcesTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"list_sources",
		mcp.WithDescription("Lists the configured production line databases with their type, location, table and credential state"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		infos := deps.Sources.Describe()
		if infos == nil {
			infos = []models.SourceInfo{}
		}
		return jsonResult(map[string]any{"sources": infos, "count": len(infos)})
	})
}

type combineLinesResult struct {
	Dataset *models.DatasetMetadata `json:"dataset"`
	Sources []models.SourceStatus   `json:"sources"`
}

func registerCombineLinesTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"combine_lines",
		mcp.WithDescription(
			"Fetches measurements from every production line, removes duplicate parts by unique identifier "+
				"and stores the combined dataset. Sources that fail are reported and skipped."),
		mcp.WithString("name", mcp.Description("Dataset name (default: the configured combined dataset)")),
		mcp.WithArray("sources", mcp.Description("Optional: source names to combine (default: all)"), mcp.WithStringItems()),
		mcp.WithArray("filters", mcp.Description("Optional: filters like \"Weight > 10\" or \"Status = OK\""), mcp.WithStringItems()),
		mcp.WithNumber("limit", mcp.Description("Optional: maximum rows per source")),
		mcp.WithString("unique_identifier", mcp.Description("Column identifying a part (default: TraceCode)")),
		mcp.WithString("merge_strategy",
			mcp.Description("Which duplicate survives: latest_wins or first_occurrence"),
			mcp.Enum(models.StrategyLatestWins, models.StrategyFirstOccurrence)),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names, err := getOptionalStringSlice(req, "sources")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		filters, err := getOptionalStringSlice(req, "filters")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		creq := services.CombineRequest{
			Name:             getOptionalString(req, "name"),
			Sources:          names,
			Filters:          filters,
			UniqueIdentifier: getOptionalString(req, "unique_identifier"),
			Strategy:         getOptionalString(req, "merge_strategy"),
		}
		if limit, ok := getOptionalFloat(req, "limit"); ok {
			n := int(limit)
			if float64(n) != limit {
				return NewErrorResult("invalid_limit", fmt.Sprintf("limit must be a whole number, got %v", limit)), nil
			}
			creq.Limit = &n
		}

		res, err := deps.Combiner.Combine(ctx, creq)
		if err != nil {
			return resultForError(err)
		}
		return jsonResult(combineLinesResult{Dataset: res.Metadata, Sources: res.Sources})
	})
}

func registerAnalyzeColumnTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"analyze_column",
		mcp.WithDescription(
			"Computes descriptive statistics, outliers, process stability and optional specification-limit "+
				"quality (Cp/Cpk, out-of-spec counts) for a numeric column of a stored dataset"),
		mcp.WithString("column", mcp.Required(), mcp.Description("Numeric column to analyze, e.g. Weight")),
		mcp.WithString("dataset", mcp.Description("Dataset name (default: the configured combined dataset)")),
		mcp.WithNumber("usl", mcp.Description("Optional: upper specification limit")),
		mcp.WithNumber("lsl", mcp.Description("Optional: lower specification limit")),
		mcp.WithString("date_column", mcp.Description("Optional: timestamp column used for date filtering")),
		mcp.WithString("date_from", mcp.Description("Optional: inclusive start date (YYYY-MM-DD or RFC 3339)")),
		mcp.WithString("date_to", mcp.Description("Optional: inclusive end date (YYYY-MM-DD or RFC 3339)")),
		mcp.WithString("filter_column", mcp.Description("Optional: column to filter on")),
		mcp.WithString("filter_value", mcp.Description("Optional: value filter_column must equal")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		column, err := req.RequireString("column")
		if err != nil || trimString(column) == "" {
			return NewErrorResult("invalid_parameters", "column is required"), nil
		}
		dataset := getOptionalString(req, "dataset")
		if dataset == "" {
			dataset = deps.DefaultDataset
		}

		areq := services.AnalyzeRequest{
			Column:       trimString(column),
			DateColumn:   getOptionalString(req, "date_column"),
			DateFrom:     getOptionalString(req, "date_from"),
			DateTo:       getOptionalString(req, "date_to"),
			FilterColumn: getOptionalString(req, "filter_column"),
			FilterValue:  getOptionalString(req, "filter_value"),
			USL:          getOptionalFloatPtr(req, "usl"),
			LSL:          getOptionalFloatPtr(req, "lsl"),
		}

		report, err := deps.Analyzer.AnalyzeDataset(ctx, dataset, areq)
		if err != nil {
			return resultForError(err)
		}
		return jsonResult(report)
	})
}

func registerListDatasetsTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"list_datasets",
		mcp.WithDescription("Lists stored combined datasets, newest first"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := deps.Datasets.List(ctx)
		if err != nil {
			return resultForError(err)
		}
		if list == nil {
			list = []*models.DatasetMetadata{}
		}
		return jsonResult(map[string]any{"datasets": list, "count": len(list)})
	})
}

func registerSearchProductsTool(s *server.MCPServer, deps *Deps) {
	tool := mcp.NewTool(
		"search_products",
		mcp.WithDescription("Finds product types whose name contains a pattern across all lines, with counts and the lines producing them"),
		mcp.WithString("search_pattern", mcp.Description("Case-insensitive substring; \"*\" or empty lists every product")),
		mcp.WithNumber("limit", mcp.Description("Maximum products returned (default 100)")),
		mcp.WithArray("sources", mcp.Description("Optional: source names to search (default: all)"), mcp.WithStringItems()),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names, err := getOptionalStringSlice(req, "sources")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		sreq := services.SearchRequest{Pattern: getOptionalString(req, "search_pattern"), Sources: names}
		if limit, ok := getOptionalFloat(req, "limit"); ok {
			if limit < 1 {
				return NewErrorResult(apperrors.Code(apperrors.ErrInvalidLimit), "limit must be at least 1"), nil
			}
			sreq.Limit = int(limit)
		}

		res, err := deps.Products.Search(ctx, sreq)
		if err != nil {
			return resultForError(err)
		}
		return jsonResult(res)
	})
}
