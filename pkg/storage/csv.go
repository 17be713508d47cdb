package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

// WriteCSV writes t with a header row. Missing cells are empty and
// timestamps are RFC 3339.
func WriteCSV(w io.Writer, t *models.Table) error {
	cw := csv.NewWriter(w)
	cols := t.Columns()
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(cols))
	for row := 0; row < t.Len(); row++ {
		for i, c := range cols {
			v, _ := t.Value(row, c)
			if models.IsMissing(v) {
				record[i] = ""
				continue
			}
			record[i] = models.ToString(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", row+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a CSV file with a header row into a table. Integer and
// decimal cells become int64 and float64; empty cells are nil; everything
// else stays text. Delimiters ',' ';' and tab are detected from the header.
func ReadCSV(r io.Reader) (*models.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	cr := csv.NewReader(strings.NewReader(string(data)))
	cr.Comma = detectDelimiter(data)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	t := models.NewTable(header)
	width := len(t.Columns())
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		row := make([]any, width)
		for i := 0; i < width && i < len(rec); i++ {
			row[i] = parseCell(rec[i])
		}
		if err := t.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func parseCell(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func detectDelimiter(data []byte) rune {
	first := string(data)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	best, bestCount := ',', strings.Count(first, ",")
	for _, d := range []rune{';', '\t'} {
		if c := strings.Count(first, string(d)); c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}
