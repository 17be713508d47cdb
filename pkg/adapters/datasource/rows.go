package datasource

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

// ValueConverter normalises one scanned driver value. dbType is the
// driver's column type name, upper-case.
type ValueConverter func(v any, dbType string) any

// ScanRows drains rows into a table. Column order follows the result set.
// convert runs after the shared normalisation and may be nil.
func ScanRows(rows *sql.Rows, convert ValueConverter) (*models.Table, error) {
	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}
	typeNames := make([]string, len(columnTypes))
	for i, ct := range columnTypes {
		typeNames[i] = strings.ToUpper(ct.DatabaseTypeName())
	}

	table := models.NewTable(columnNames)
	values := make([]any, len(columnNames))
	valuePtrs := make([]any, len(columnNames))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		for i := range values {
			values[i] = nil
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			v = NormalizeValue(v, typeNames[i])
			if convert != nil {
				v = convert(v, typeNames[i])
			}
			row[i] = v
		}
		if err := table.AppendRow(row); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return table, nil
}

// NormalizeValue maps common driver representations onto the value kinds a
// table holds: int64, float64, bool, string, time.Time, nil.
// Decimal text becomes float64; other byte slices of text types become strings.
func NormalizeValue(v any, dbType string) any {
	switch x := v.(type) {
	case []byte:
		if isDecimalType(dbType) {
			if f, err := strconv.ParseFloat(string(x), 64); err == nil {
				return f
			}
		}
		if isBinaryType(dbType) {
			out := make([]byte, len(x))
			copy(out, x)
			return out
		}
		return string(x)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}

func isDecimalType(dbType string) bool {
	switch dbType {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY", "UNSIGNED DECIMAL":
		return true
	}
	return false
}

func isBinaryType(dbType string) bool {
	switch dbType {
	case "BINARY", "VARBINARY", "IMAGE", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BYTEA", "UNIQUEIDENTIFIER":
		return true
	}
	return false
}
