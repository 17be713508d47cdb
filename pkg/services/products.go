package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

// DefaultSearchLimit caps product search results.
const DefaultSearchLimit = 100

// ExtractRequest selects one product type's rows across lines.
type ExtractRequest struct {
	ProductName   string   `json:"product_name"`
	ProductColumn string   `json:"product_column,omitempty"`
	Columns       []string `json:"columns,omitempty"`
	DateFrom      string   `json:"date_from,omitempty"`
	DateTo        string   `json:"date_to,omitempty"`
	Sources       []string `json:"sources,omitempty"`
}

// ExtractResult holds the matching rows. MissingColumns lists requested
// columns no line provided.
type ExtractResult struct {
	Table          *models.Table         `json:"-"`
	Lines          []string              `json:"production_lines"`
	MissingColumns []string              `json:"missing_columns,omitempty"`
	Sources        []models.SourceStatus `json:"sources"`
}

// SearchRequest looks for product types whose name contains Pattern.
// "*" or an empty pattern matches every product.
type SearchRequest struct {
	Pattern       string   `json:"search_pattern"`
	ProductColumn string   `json:"product_column,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	Sources       []string `json:"sources,omitempty"`
}

// SearchResult lists matching products. ProductsFound counts all matches
// before the limit is applied.
type SearchResult struct {
	ProductsFound int                   `json:"products_found"`
	Products      []models.ProductMatch `json:"products"`
	Sources       []models.SourceStatus `json:"sources"`
}

// ProductService finds product types and their rows across every line.
type ProductService interface {
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResult, error)
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
}

// ProductColumns names the columns product queries rely on.
type ProductColumns struct {
	Product          string
	UniqueIdentifier string
	Timestamp        string
	ProductionLine   string
}

type productService struct {
	fetcher Fetcher
	cols    ProductColumns
	logger  *zap.Logger
}

// NewProductService creates a ProductService over fetcher.
func NewProductService(fetcher Fetcher, cols ProductColumns, logger *zap.Logger) ProductService {
	if cols.Product == "" {
		cols.Product = "RefName"
	}
	if cols.UniqueIdentifier == "" {
		cols.UniqueIdentifier = "TraceCode"
	}
	if cols.Timestamp == "" {
		cols.Timestamp = "timestamp"
	}
	if cols.ProductionLine == "" {
		cols.ProductionLine = "production_line"
	}
	return &productService{fetcher: fetcher, cols: cols, logger: logger.Named("products")}
}

// fetchLines fetches every row of the requested lines, ordered by source name.
func (s *productService) fetchLines(ctx context.Context, names []string) (*FetchResult, error) {
	res, err := s.fetcher.FetchAll(ctx, names, FetchRequest{})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(res.Results, func(a, b int) bool { return res.Results[a].Source < res.Results[b].Source })
	return res, nil
}

func (s *productService) Extract(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	if strings.TrimSpace(req.ProductName) == "" {
		return nil, apperrors.Invalid(apperrors.ErrInvalidFilter, "", "product name is required")
	}
	productCol := req.ProductColumn
	if productCol == "" {
		productCol = s.cols.Product
	}
	from, err := optionalDate(req.DateFrom, "date_from")
	if err != nil {
		return nil, err
	}
	to, err := optionalDate(req.DateTo, "date_to")
	if err != nil {
		return nil, err
	}

	fetched, err := s.fetchLines(ctx, req.Sources)
	if err != nil {
		return nil, err
	}

	statuses := fetched.Statuses()
	needle := strings.ToLower(req.ProductName)
	var (
		tables []*models.Table
		lines  []string
	)
	for i, res := range fetched.Results {
		if res.Err != nil || res.Table.Empty() {
			continue
		}
		if !res.Table.HasColumn(productCol) {
			s.logger.Warn("Product column missing, skipping line",
				zap.String("source", res.Source),
				zap.String("column", productCol),
			)
			statuses[i].Status = models.SourceSkipped
			statuses[i].Error = fmt.Sprintf("%s: %q", apperrors.ErrColumnNotFound, productCol)
			continue
		}

		names, _ := res.Table.Column(productCol)
		matched := res.Table.Filter(func(row int) bool {
			return !models.IsMissing(names[row]) && strings.Contains(strings.ToLower(models.ToString(names[row])), needle)
		})
		if (from != nil || to != nil) && matched.HasColumn(s.cols.Timestamp) {
			matched = filterDates(matched, s.cols.Timestamp, from, to)
		}
		if matched.Empty() {
			s.logger.Debug("No records for product", zap.String("source", res.Source), zap.String("product", req.ProductName))
			continue
		}
		matched.SetColumn(s.cols.ProductionLine, res.Source)
		tables = append(tables, matched)
		lines = append(lines, res.Source)
		s.logger.Info("Found product records",
			zap.String("source", res.Source),
			zap.String("product", req.ProductName),
			zap.Int("records", matched.Len()),
		)
	}

	if len(tables) == 0 {
		return nil, fmt.Errorf("no data for product %q: %w", req.ProductName, apperrors.ErrNotFound)
	}
	combined := models.Concat(tables...)

	out := &ExtractResult{Lines: lines, Sources: statuses}
	if len(req.Columns) > 0 {
		keep := []string{productCol, s.cols.UniqueIdentifier, s.cols.Timestamp, s.cols.ProductionLine}
		for _, c := range req.Columns {
			if combined.HasColumn(c) {
				keep = append(keep, c)
			} else {
				out.MissingColumns = append(out.MissingColumns, c)
			}
		}
		if len(out.MissingColumns) > 0 {
			s.logger.Warn("Requested columns not found", zap.Strings("columns", out.MissingColumns))
		}
		combined = combined.Select(keep)
	}
	out.Table = combined
	return out, nil
}

func (s *productService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	productCol := req.ProductColumn
	if productCol == "" {
		productCol = s.cols.Product
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	pattern := strings.ToLower(strings.TrimSpace(req.Pattern))
	matchAll := pattern == "" || pattern == "*"

	fetched, err := s.fetchLines(ctx, req.Sources)
	if err != nil {
		return nil, err
	}

	statuses := fetched.Statuses()
	found := make(map[string]*models.ProductMatch)
	for i, res := range fetched.Results {
		if res.Err != nil || res.Table.Empty() {
			continue
		}
		names, ok := res.Table.Column(productCol)
		if !ok {
			s.logger.Warn("Product column missing, skipping line",
				zap.String("source", res.Source),
				zap.String("column", productCol),
			)
			statuses[i].Status = models.SourceSkipped
			statuses[i].Error = fmt.Sprintf("%s: %q", apperrors.ErrColumnNotFound, productCol)
			continue
		}

		counts := make(map[string]int)
		for _, v := range names {
			if models.IsMissing(v) {
				continue
			}
			name := models.ToString(v)
			if matchAll || strings.Contains(strings.ToLower(name), pattern) {
				counts[name]++
			}
		}
		for name, c := range counts {
			m, ok := found[name]
			if !ok {
				m = &models.ProductMatch{ProductName: name}
				found[name] = m
			}
			m.TotalCount += c
			m.Lines = append(m.Lines, res.Source)
			m.ProductionLines = len(m.Lines)
		}
	}

	products := make([]models.ProductMatch, 0, len(found))
	for _, m := range found {
		products = append(products, *m)
	}
	sort.Slice(products, func(a, b int) bool {
		if products[a].TotalCount != products[b].TotalCount {
			return products[a].TotalCount > products[b].TotalCount
		}
		return products[a].ProductName < products[b].ProductName
	})
	total := len(products)
	if len(products) > limit {
		products = products[:limit]
	}

	s.logger.Info("Product search complete",
		zap.String("pattern", req.Pattern),
		zap.Int("found", total),
	)
	return &SearchResult{ProductsFound: total, Products: products, Sources: statuses}, nil
}

func optionalDate(s, field string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := models.ParseDate(s)
	if err != nil {
		return nil, apperrors.Invalid(apperrors.ErrInvalidFilter, s, field+" is not a date")
	}
	return &t, nil
}
