package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

// Output formats accepted by --output.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// printer renders command results as go-pretty tables or indented JSON.
type printer struct {
	w    io.Writer
	mode string
}

func newPrinter(w io.Writer, mode string) (*printer, error) {
	switch mode {
	case "", OutputText:
		return &printer{w: w, mode: OutputText}, nil
	case OutputJSON:
		return &printer{w: w, mode: OutputJSON}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (use text or json)", mode)
}

func (p *printer) json() bool { return p.mode == OutputJSON }

func (p *printer) JSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) Println(a ...any) {
	_, _ = fmt.Fprintln(p.w, a...)
}

func (p *printer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(p.w, format, a...)
}

// Table renders rows under header with the light style.
func (p *printer) Table(header []string, rows [][]any) {
	t := table.NewWriter()
	t.SetOutputMirror(p.w)
	t.SetStyle(table.StyleLight)

	h := make(table.Row, len(header))
	for i, c := range header {
		h[i] = c
	}
	t.AppendHeader(h)
	for _, r := range rows {
		t.AppendRow(table.Row(r))
	}
	t.Render()
}

// KeyValues renders label/value pairs as a two-column table.
func (p *printer) KeyValues(title string, pairs [][2]any) {
	t := table.NewWriter()
	t.SetOutputMirror(p.w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	for _, kv := range pairs {
		t.AppendRow(table.Row{kv[0], kv[1]})
	}
	t.Render()
}

// SourceStatuses renders per-source outcomes.
func (p *printer) SourceStatuses(statuses []models.SourceStatus) {
	rows := make([][]any, len(statuses))
	for i, st := range statuses {
		rows[i] = []any{st.Source, st.Status, st.Rows, st.Duration.Round(time.Millisecond), st.Error}
	}
	p.Table([]string{"Source", "Status", "Rows", "Duration", "Error"}, rows)
}

// Preview renders up to max rows of t.
func (p *printer) Preview(t *models.Table, max int) {
	if t.Empty() {
		p.Println("(0 rows)")
		return
	}
	n := t.Len()
	if max > 0 && n > max {
		n = max
	}
	cols := t.Columns()
	rows := make([][]any, n)
	for i := 0; i < n; i++ {
		row := make([]any, len(cols))
		for j, c := range cols {
			v, _ := t.Value(i, c)
			row[j] = formatCell(v)
		}
		rows[i] = row
	}
	p.Table(cols, rows)
	if n < t.Len() {
		p.Printf("(%d of %d rows)\n", n, t.Len())
	} else {
		p.Printf("(%d rows)\n", t.Len())
	}
}

// tableJSON converts t to JSON-safe records.
func tableJSON(t *models.Table, max int) []map[string]any {
	n := t.Len()
	if max > 0 && n > max {
		n = max
	}
	out := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		rec := t.Record(i)
		for k, v := range rec {
			switch x := v.(type) {
			case float64:
				if math.IsNaN(x) || math.IsInf(x, 0) {
					rec[k] = nil
				}
			case []byte:
				rec[k] = string(x)
			}
		}
		out[i] = rec
	}
	return out
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case float64:
		if math.IsNaN(x) {
			return "NULL"
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	}
	return models.ToString(v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatFloat(*v)
}

func formatCount(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
